package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"workshop-recorder/internal/config"
	"workshop-recorder/internal/events"
	"workshop-recorder/internal/models"
	"workshop-recorder/internal/observability/logging"
	"workshop-recorder/internal/observability/metrics"
	"workshop-recorder/internal/service/capture"
	"workshop-recorder/internal/service/processor"
	"workshop-recorder/internal/service/recorder"
	"workshop-recorder/internal/service/segment"
	"workshop-recorder/internal/service/stt"
)

// Notifier receives recorder outcomes, e.g. the websocket hub.
type Notifier interface {
	OnOutcome(sessionID string, outcome segment.Outcome)
	OnComplete(sessionID string, completed, failed []segment.Outcome)
}

// StartReporter is told about every start attempt, e.g. gRPC health.
type StartReporter interface {
	ReportStart(err error)
}

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Recorder    *recorder.Recorder
	Publisher   *events.Publisher

	transcriber stt.Transcriber

	mu        sync.Mutex
	notifiers []Notifier
	reporters []StartReporter
	startErr  error
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().
		Str("configFile", cfg.File).
		Msg("Workshop recorder application created")
	return a
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:  a.Cfg.Observability.LogLevel,
		Format: a.Cfg.Observability.LogFormat,
	})
	a.Logger = logging.Logger().With().
		Str("service", "workshop-recorder").
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", a.Cfg.Observability.LogFormat).
		Msg("Logger setup completed")
}

// Build constructs the capture device, processor pipeline, publisher and
// recorder and wires the recorder callbacks.
func (a *Application) Build(ctx context.Context) error {
	device, err := NewDevice(a.Cfg.Capture)
	if err != nil {
		return err
	}
	return a.BuildWith(ctx, device)
}

// BuildWith is Build with a caller-supplied device.
func (a *Application) BuildWith(ctx context.Context, device capture.Device) error {
	transcriber, err := NewTranscriber(ctx, a.Cfg.STT)
	if err != nil {
		return err
	}
	a.transcriber = transcriber

	var proc recorder.Processor = processor.NewPipeline(transcriber, NewUploader(a.Cfg.Upload))
	proc = processor.WithTimeout(proc, a.Cfg.Recorder.ProcessorTimeout)
	proc = processor.Limit(proc, int64(a.Cfg.Recorder.MaxInFlight))

	rec, err := recorder.New(device, proc, recorder.Config{
		ChunkDurationSeconds: a.Cfg.Recorder.ChunkDurationSeconds,
		TickInterval:         a.Cfg.Recorder.TickInterval,
		LevelInterval:        a.Cfg.Recorder.LevelInterval,
		NotifyOnEmpty:        a.Cfg.Recorder.NotifyOnEmpty,
		Metrics:              metrics.DefaultMetrics,
	})
	if err != nil {
		return fmt.Errorf("create recorder: %w", err)
	}
	rec.SetOutcomeCallback(a.onOutcome)
	rec.SetCompletionCallback(a.onComplete)
	a.Recorder = rec

	a.Publisher = events.New(&events.Config{
		Enabled:       a.Cfg.Kafka.Enabled,
		Brokers:       a.Cfg.Kafka.Brokers,
		TopicSegments: a.Cfg.Kafka.TopicSegments,
		TopicSessions: a.Cfg.Kafka.TopicSessions,
		Principal:     a.Cfg.Kafka.Principal,
	})

	a.Logger.Info().
		Str("captureSource", a.Cfg.Capture.Source).
		Str("sttProvider", a.Cfg.STT.Provider).
		Bool("upload", a.Cfg.Upload.Enabled).
		Int("chunkDurationSeconds", a.Cfg.Recorder.ChunkDurationSeconds).
		Msg("Recorder pipeline built")
	return nil
}

// AddNotifier registers a receiver for recorder outcomes.
func (a *Application) AddNotifier(n Notifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifiers = append(a.notifiers, n)
}

// AddStartReporter registers a receiver for start results.
func (a *Application) AddStartReporter(r StartReporter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reporters = append(a.reporters, r)
}

// StartRecording starts a session and records the result for readiness.
func (a *Application) StartRecording(ctx context.Context) (string, error) {
	id, err := a.Recorder.Start(ctx)

	a.mu.Lock()
	if err == nil || errors.Is(err, capture.ErrDeviceUnavailable) {
		a.startErr = err
	}
	reporters := append([]StartReporter(nil), a.reporters...)
	a.mu.Unlock()

	for _, r := range reporters {
		r.ReportStart(err)
	}
	return id, err
}

// StopRecording stops the current session.
func (a *Application) StopRecording(ctx context.Context) error {
	return a.Recorder.Stop(ctx)
}

// Ready reports an error while the last start attempt found no device.
func (a *Application) Ready() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startErr
}

func (a *Application) onOutcome(sessionID string, o segment.Outcome) {
	if err := a.Publisher.PublishSegment(context.Background(), models.NewSegmentEvent(sessionID, o)); err != nil {
		a.Logger.Warn().Err(err).Str("sessionId", sessionID).Int("segmentIndex", o.Index).Msg("Failed to publish segment event")
	}
	for _, n := range a.snapshotNotifiers() {
		n.OnOutcome(sessionID, o)
	}
}

func (a *Application) onComplete(sessionID string, completed, failed []segment.Outcome) {
	ev := models.NewSessionEvent(sessionID, recordedSeconds(completed, failed), completed, failed)
	if err := a.Publisher.PublishSession(context.Background(), ev); err != nil {
		a.Logger.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to publish session event")
	}
	for _, n := range a.snapshotNotifiers() {
		n.OnComplete(sessionID, completed, failed)
	}
}

func (a *Application) snapshotNotifiers() []Notifier {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Notifier(nil), a.notifiers...)
}

// recordedSeconds sums the dispatched segment durations.
func recordedSeconds(completed, failed []segment.Outcome) int {
	total := 0
	for _, o := range completed {
		total += o.DurationSeconds
	}
	for _, o := range failed {
		total += o.DurationSeconds
	}
	return total
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Workshop recorder starting")

	return nil
}

// Shutdown stops any live recording, waits for its segments within ctx and
// releases clients.
func (a *Application) Shutdown(ctx context.Context) {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Msg("Workshop recorder shutting down")

	if a.Recorder != nil {
		if a.Recorder.Status().IsRecording {
			if err := a.Recorder.Stop(ctx); err != nil {
				shutdownLogger.Error().Err(err).Msg("Failed to stop recording")
			}
		}
		if err := a.Recorder.Wait(ctx); err != nil && !errors.Is(err, recorder.ErrNoSession) {
			shutdownLogger.Warn().Err(err).Msg("Segments still processing at shutdown")
		}
	}
	if a.Publisher != nil {
		a.Publisher.Close()
	}
	if a.transcriber != nil {
		a.transcriber.Close()
	}
}
