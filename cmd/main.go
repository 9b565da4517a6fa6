package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	grpcapi "workshop-recorder/internal/api/grpc"
	"workshop-recorder/internal/app"
	"workshop-recorder/internal/config"
	httpapi "workshop-recorder/internal/http"
	"workshop-recorder/internal/observability"
	"workshop-recorder/internal/observability/metrics"
)

const (
	statusInterval  = time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg := config.Load()

	application := app.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Build(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to build recorder")
	}
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	hub := httpapi.NewHub()
	application.AddNotifier(hub)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           httpapi.NewRouter(application, application.Recorder, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(metrics.DefaultMetrics)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics)),
	)
	health := grpcapi.Register(grpcServer)
	application.AddStartReporter(health)

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Service.GRPCPort).Msg("Failed to listen")
	}

	obsServer := observability.NewServer(":"+cfg.Service.MetricsPort, application.Ready)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.PumpStatus(gctx, application.Recorder.Status, statusInterval)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("Control API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC health listening")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		return obsServer.ListenAndServe()
	})
	g.Go(func() error {
		<-gctx.Done()

		log.Info().Msg("Shutting down")
		health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Control API shutdown")
		}
		application.Shutdown(shutdownCtx)
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Observability server shutdown")
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
	log.Info().Msg("Workshop recorder stopped")
}
