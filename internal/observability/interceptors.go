// Package observability provides gRPC interceptors and the metrics server.
package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"workshop-recorder/internal/observability/metrics"
)

// UnaryServerInterceptor records metrics and a log line for every unary call.
// Health checks hit this path every few seconds, so successful calls log at
// debug.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(ctx, m, info.FullMethod, "unary", start, err)
		return resp, err
	}
}

// StreamServerInterceptor records metrics and a log line when a stream ends,
// e.g. a health Watch.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		observe(ss.Context(), m, info.FullMethod, "stream", start, err)
		return err
	}
}

func observe(ctx context.Context, m *metrics.Metrics, method, kind string, start time.Time, err error) {
	elapsed := time.Since(start)
	code := status.Code(err)
	m.RecordGRPCCall(method, code.String(), elapsed.Seconds())

	ev := log.Debug()
	if lvl := levelFor(code); lvl != zerolog.DebugLevel {
		ev = log.WithLevel(lvl).Err(err)
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		ev = ev.Str("peer", p.Addr.String())
	}
	ev.Str("method", method).
		Str("kind", kind).
		Str("code", code.String()).
		Dur("duration", elapsed).
		Msg("gRPC call")
}

// levelFor picks the log level for a status code. Client mistakes are warnings,
// server faults are errors.
func levelFor(code codes.Code) zerolog.Level {
	switch code {
	case codes.OK, codes.Canceled:
		return zerolog.DebugLevel
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.FailedPrecondition,
		codes.OutOfRange, codes.Unauthenticated, codes.PermissionDenied, codes.DeadlineExceeded:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
