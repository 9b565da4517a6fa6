// Command replay feeds a WAV file through the chunked recorder and prints
// every segment outcome. It exercises the same pipeline as the service
// without a microphone.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"workshop-recorder/internal/app"
	"workshop-recorder/internal/config"
	"workshop-recorder/internal/models"
	"workshop-recorder/internal/service/capture/wavfile"
	"workshop-recorder/internal/service/segment"
)

// printer writes outcomes to stdout.
type printer struct {
	done chan struct{}
}

func (p *printer) OnOutcome(sessionID string, o segment.Outcome) {
	line := fmt.Sprintf("segment %d [%s] %ds final=%t latency=%s",
		o.Index, o.State, o.DurationSeconds, o.IsFinal, o.Latency.Round(time.Millisecond))
	if o.Error != "" {
		line += " error=" + o.Error
	}
	if r, ok := o.Result.(*models.SegmentResult); ok && r.Transcript != nil {
		line += fmt.Sprintf(" text=%q", r.Transcript.Text)
	}
	fmt.Println(line)
}

func (p *printer) OnComplete(sessionID string, completed, failed []segment.Outcome) {
	fmt.Printf("session %s complete: %d completed, %d failed\n", sessionID, len(completed), len(failed))
	close(p.done)
}

func main() {
	audioFile := flag.String("audio", "", "Path to a PCM WAV file (required)")
	chunk := flag.Int("chunk", 5, "Chunk duration in seconds")
	tick := flag.Duration("tick", time.Second, "Wall time per recorded second")
	realtime := flag.Bool("realtime", true, "Pace the file at playback speed")
	provider := flag.String("stt", "mock", "Speech-to-Text provider: mock, google, none")
	uploadURL := flag.String("upload", "", "Analysis backend base URL, empty disables upload")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall replay timeout")
	flag.Parse()

	if *audioFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	cfg.Observability.LogFormat = "console"
	cfg.Recorder.ChunkDurationSeconds = *chunk
	cfg.Recorder.TickInterval = *tick
	cfg.Capture.Source = "wav"
	cfg.Capture.WAVPath = *audioFile
	cfg.Capture.Realtime = *realtime
	cfg.STT.Provider = *provider
	cfg.Kafka.Enabled = false
	if *uploadURL != "" {
		cfg.Upload.Enabled = true
		cfg.Upload.BaseURL = *uploadURL
	}

	application := app.New(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	eof := make(chan struct{}, 1)
	device := wavfile.New(wavfile.Config{
		Path:     cfg.Capture.WAVPath,
		Realtime: cfg.Capture.Realtime,
		OnEOF: func() {
			select {
			case eof <- struct{}{}:
			default:
			}
		},
	})
	if err := application.BuildWith(ctx, device); err != nil {
		log.Fatal().Err(err).Msg("Failed to build recorder")
	}

	out := &printer{done: make(chan struct{})}
	application.AddNotifier(out)

	sessionID, err := application.StartRecording(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("audio", *audioFile).Msg("Failed to start replay")
	}
	log.Info().Str("sessionId", sessionID).Str("audio", *audioFile).Msg("Replaying")

	select {
	case <-eof:
	case <-ctx.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := application.StopRecording(stopCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop recording")
	}

	select {
	case <-out.done:
	case <-ctx.Done():
		log.Warn().Msg("Gave up waiting for segments")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	application.Shutdown(shutdownCtx)

	if ctx.Err() != nil {
		os.Exit(1)
	}
}
