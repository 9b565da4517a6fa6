// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "workshop_recorder"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal     prometheus.Counter
	SessionsActive    prometheus.Gauge
	SessionsFailed    *prometheus.CounterVec
	SessionDuration   prometheus.Histogram
	SessionsCompleted prometheus.Counter

	// Segment metrics
	SegmentsDispatched *prometheus.CounterVec
	SegmentsCompleted  prometheus.Counter
	SegmentsFailed     prometheus.Counter
	SegmentsEmpty      *prometheus.CounterVec
	SegmentsInFlight   prometheus.Gauge
	SegmentAudioBytes  prometheus.Histogram
	SegmentLatency     *prometheus.HistogramVec
	SplitLatency       prometheus.Histogram

	// Audio metrics
	AudioLevel prometheus.Gauge

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// STT metrics
	STTLatency *prometheus.HistogramVec
	STTErrors  *prometheus.CounterVec

	// Upload metrics
	UploadLatency *prometheus.HistogramVec
	UploadErrors  *prometheus.CounterVec

	// Request metrics
	GRPCRequests *prometheus.CounterVec
	GRPCLatency  *prometheus.HistogramVec
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
	EventClients prometheus.Gauge
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Session metrics
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of recording sessions started",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions capturing or waiting on segments",
		}),
		SessionsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of sessions that failed to start",
		}, []string{"reason"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Recorded audio length per session in seconds",
			Buckets:   []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
		}),
		SessionsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Total number of sessions whose completion signal fired",
		}),

		// Segment metrics
		SegmentsDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_dispatched_total",
			Help:      "Total number of segments handed to the processor",
		}, []string{"final"}),
		SegmentsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_completed_total",
			Help:      "Total number of segments processed successfully",
		}),
		SegmentsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_failed_total",
			Help:      "Total number of segments whose processing failed",
		}),
		SegmentsEmpty: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_empty_total",
			Help:      "Total number of empty flushes discarded",
		}, []string{"trigger"}),
		SegmentsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "segments_in_flight",
			Help:      "Number of segments currently being processed",
		}),
		SegmentAudioBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_audio_bytes",
			Help:      "Size of dispatched segments in bytes",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 8),
		}),
		SegmentLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_processing_seconds",
			Help:      "Time from dispatch to terminal outcome",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"state"}),
		SplitLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "split_latency_seconds",
			Help:      "Time to flush one capture and start the next",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),

		// Audio metrics
		AudioLevel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audio_level",
			Help:      "Most recent RMS input level in [0, 1]",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// STT metrics
		STTLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_latency_seconds",
			Help:      "Speech-to-text latency per segment in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider"}),
		STTErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT errors",
		}, []string{"provider", "error_type"}),

		// Upload metrics
		UploadLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_latency_seconds",
			Help:      "Backend upload and analyze latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"step"}),
		UploadErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_errors_total",
			Help:      "Total number of backend upload errors",
		}, []string{"step"}),

		// Request metrics
		GRPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC calls",
		}, []string{"method", "code"}),
		GRPCLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_latency_seconds",
			Help:      "gRPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of control API requests",
		}, []string{"route", "status"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_latency_seconds",
			Help:      "Control API latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		EventClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_clients",
			Help:      "Number of connected websocket event clients",
		}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionStartFailed records a session that could not acquire the device.
func (m *Metrics) RecordSessionStartFailed(reason string) {
	m.SessionsFailed.WithLabelValues(reason).Inc()
}

// RecordSessionComplete records the completion signal for a session.
func (m *Metrics) RecordSessionComplete(recordedSeconds int) {
	m.SessionsActive.Dec()
	m.SessionsCompleted.Inc()
	m.SessionDuration.Observe(float64(recordedSeconds))
}

// RecordSegmentDispatched records a segment handed to the processor.
func (m *Metrics) RecordSegmentDispatched(final bool, audioBytes int) {
	label := "false"
	if final {
		label = "true"
	}
	m.SegmentsDispatched.WithLabelValues(label).Inc()
	m.SegmentsInFlight.Inc()
	m.SegmentAudioBytes.Observe(float64(audioBytes))
}

// RecordSegmentResolved records a terminal outcome.
func (m *Metrics) RecordSegmentResolved(failed bool, latencySeconds float64) {
	m.SegmentsInFlight.Dec()
	if failed {
		m.SegmentsFailed.Inc()
		m.SegmentLatency.WithLabelValues("failed").Observe(latencySeconds)
		return
	}
	m.SegmentsCompleted.Inc()
	m.SegmentLatency.WithLabelValues("completed").Observe(latencySeconds)
}

// RecordSegmentEmpty records a discarded empty flush.
func (m *Metrics) RecordSegmentEmpty(trigger string) {
	m.SegmentsEmpty.WithLabelValues(trigger).Inc()
}

// RecordSplit records how long a capture rotation took.
func (m *Metrics) RecordSplit(latencySeconds float64) {
	m.SplitLatency.Observe(latencySeconds)
}

// RecordAudioLevel records the latest input level.
func (m *Metrics) RecordAudioLevel(level float64) {
	m.AudioLevel.Set(level)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSTT records one transcription call.
func (m *Metrics) RecordSTT(provider string, err error, latencySeconds float64) {
	m.STTLatency.WithLabelValues(provider).Observe(latencySeconds)
	if err != nil {
		m.STTErrors.WithLabelValues(provider, errorType(err)).Inc()
	}
}

// RecordUpload records one backend call.
func (m *Metrics) RecordUpload(step string, err error, latencySeconds float64) {
	m.UploadLatency.WithLabelValues(step).Observe(latencySeconds)
	if err != nil {
		m.UploadErrors.WithLabelValues(step).Inc()
	}
}

// RecordGRPCCall records one gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string, latencySeconds float64) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
	m.GRPCLatency.WithLabelValues(method).Observe(latencySeconds)
}

// RecordHTTPRequest records one control API request.
func (m *Metrics) RecordHTTPRequest(route string, status int, latencySeconds float64) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(latencySeconds)
}
