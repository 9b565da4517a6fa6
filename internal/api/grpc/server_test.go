package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	"workshop-recorder/internal/service/capture"
)

func status(t *testing.T, h *Health, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	st, err := h.Check(context.Background(), service)
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return st
}

func TestRegister_ServingByDefault(t *testing.T) {
	h := Register(grpc.NewServer())

	if got := status(t, h, ""); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected overall SERVING, got %v", got)
	}
	if got := status(t, h, ServiceName); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected recorder SERVING, got %v", got)
	}
}

func TestHealth_ReportStart(t *testing.T) {
	h := Register(grpc.NewServer())

	h.ReportStart(fmt.Errorf("%w: no microphone", capture.ErrDeviceUnavailable))
	if got := status(t, h, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING after device failure, got %v", got)
	}
	if got := status(t, h, ""); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected process to stay SERVING, got %v", got)
	}

	h.ReportStart(errors.New("recording already in progress"))
	if got := status(t, h, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("unrelated errors must not change status, got %v", got)
	}

	h.ReportStart(nil)
	if got := status(t, h, ServiceName); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING after successful start, got %v", got)
	}
}

func TestHealth_Shutdown(t *testing.T) {
	h := Register(grpc.NewServer())
	h.Shutdown()

	if got := status(t, h, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING after shutdown, got %v", got)
	}
}
