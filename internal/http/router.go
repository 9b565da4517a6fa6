// Package http provides the recorder control API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"workshop-recorder/internal/observability/metrics"
	"workshop-recorder/internal/service/capture"
	"workshop-recorder/internal/service/recorder"
	"workshop-recorder/internal/service/segment"
)

// Controller is the recorder surface the API drives.
type Controller interface {
	StartRecording(ctx context.Context) (string, error)
	StopRecording(ctx context.Context) error
	Ready() error
}

// StatusSource exposes recorder state.
type StatusSource interface {
	Status() recorder.Snapshot
	Outcomes() []segment.Outcome
}

type startResponse struct {
	SessionID string            `json:"sessionId"`
	Status    recorder.Snapshot `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(ctl Controller, src StatusSource, hub *Hub) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument(metrics.DefaultMetrics))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if err := ctl.Ready(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1/recording", func(r chi.Router) {
		r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
			id, err := ctl.StartRecording(r.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, startResponse{SessionID: id, Status: src.Status()})
		})
		r.Post("/stop", func(w http.ResponseWriter, r *http.Request) {
			if err := ctl.StopRecording(r.Context()); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, src.Status())
		})
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, src.Status())
		})
		r.Get("/segments", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, src.Outcomes())
		})
		if hub != nil {
			r.Get("/events", hub.ServeWS)
		}
	})

	return r
}

// statusFor maps recorder errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, recorder.ErrAlreadyRecording):
		return http.StatusConflict
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Recording request failed")
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// instrument records request metrics per route pattern.
func instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.RecordHTTPRequest(route, status, time.Since(start).Seconds())
		})
	}
}
