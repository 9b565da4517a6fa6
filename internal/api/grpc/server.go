// Package grpcapi exposes the recorder's health over gRPC.
package grpcapi

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"workshop-recorder/internal/service/capture"
)

// ServiceName is the health service name reported for the recorder.
const ServiceName = "workshop.recorder.ChunkedRecorder"

// Health reports recorder availability through the standard health service.
type Health struct {
	server *health.Server
}

// Register installs the health and reflection services on g. The recorder
// starts out SERVING.
func Register(g *grpc.Server) *Health {
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	h := &Health{server: hs}
	h.SetServing(true)
	return h
}

// SetServing sets the status of the overall server and the recorder service.
func (h *Health) SetServing(ok bool) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !ok {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}

// ReportStart updates the recorder status after a start attempt. Only an
// unavailable device marks the recorder NOT_SERVING; the process itself
// stays up.
func (h *Health) ReportStart(err error) {
	switch {
	case err == nil:
		h.server.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	case errors.Is(err, capture.ErrDeviceUnavailable):
		log.Warn().Err(err).Str("service", ServiceName).Msg("Recorder marked NOT_SERVING")
		h.server.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
}

// Check returns the current status of a service.
func (h *Health) Check(ctx context.Context, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.server.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Shutdown marks every service NOT_SERVING ahead of a graceful stop.
func (h *Health) Shutdown() {
	h.server.Shutdown()
}
