package app

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"workshop-recorder/internal/config"
	"workshop-recorder/internal/service/capture"
	"workshop-recorder/internal/service/capture/pcm"
	"workshop-recorder/internal/service/segment"
)

type streamDevice struct {
	mu     sync.Mutex
	err    error
	stream *pcm.Stream
}

func (d *streamDevice) Open(ctx context.Context) (capture.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.stream = pcm.NewStream(capture.DefaultFormat(), nil)
	return d.stream, nil
}

func (d *streamDevice) write(p []byte) {
	d.mu.Lock()
	s := d.stream
	d.mu.Unlock()
	s.Write(p)
}

type completion struct {
	sessionID string
	completed []segment.Outcome
	failed    []segment.Outcome
}

type fakeNotifier struct {
	mu       sync.Mutex
	outcomes []segment.Outcome
	done     chan completion
}

func (n *fakeNotifier) OnOutcome(sessionID string, o segment.Outcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, o)
}

func (n *fakeNotifier) OnComplete(sessionID string, completed, failed []segment.Outcome) {
	n.done <- completion{sessionID, completed, failed}
}

type fakeReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *fakeReporter) ReportStart(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func testConfig() *config.Configuration {
	cfg := config.Defaults()
	cfg.Observability.LogLevel = "error"
	cfg.Recorder.ChunkDurationSeconds = 1
	cfg.Recorder.TickInterval = 10 * time.Millisecond
	cfg.Recorder.LevelInterval = 0
	cfg.STT.Provider = "mock"
	return cfg
}

func TestApplication_RecordingFlow(t *testing.T) {
	a := New(testConfig())
	dev := &streamDevice{}
	if err := a.BuildWith(context.Background(), dev); err != nil {
		t.Fatalf("BuildWith: %v", err)
	}
	n := &fakeNotifier{done: make(chan completion, 1)}
	a.AddNotifier(n)

	id, err := a.StartRecording(context.Background())
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for a.Recorder.Status().RecordingSeconds < 3 && time.Now().Before(deadline) {
		dev.write(bytes.Repeat([]byte{0x01, 0x00}, 160))
		time.Sleep(2 * time.Millisecond)
	}
	if err := a.StopRecording(context.Background()); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	select {
	case c := <-n.done:
		if c.sessionID != id {
			t.Errorf("expected session %s, got %s", id, c.sessionID)
		}
		if len(c.completed) == 0 {
			t.Error("expected completed segments")
		}
		if len(c.failed) != 0 {
			t.Errorf("expected no failures, got %d", len(c.failed))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("completion not delivered to notifier")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.outcomes) == 0 {
		t.Error("expected outcomes delivered to notifier")
	}
	if err := a.Ready(); err != nil {
		t.Errorf("expected ready, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	a.Shutdown(ctx)
}

func TestApplication_DeviceUnavailable(t *testing.T) {
	a := New(testConfig())
	dev := &streamDevice{err: errors.New("no microphone")}
	if err := a.BuildWith(context.Background(), dev); err != nil {
		t.Fatalf("BuildWith: %v", err)
	}
	r := &fakeReporter{}
	a.AddStartReporter(r)

	_, err := a.StartRecording(context.Background())
	if !errors.Is(err, capture.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if !errors.Is(a.Ready(), capture.ErrDeviceUnavailable) {
		t.Errorf("expected not ready, got %v", a.Ready())
	}
	if len(r.errs) != 1 || !errors.Is(r.errs[0], capture.ErrDeviceUnavailable) {
		t.Errorf("expected reporter to see the failure, got %v", r.errs)
	}

	dev.mu.Lock()
	dev.err = nil
	dev.mu.Unlock()
	if _, err := a.StartRecording(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if err := a.Ready(); err != nil {
		t.Errorf("expected ready after successful start, got %v", err)
	}
	a.Shutdown(context.Background())
}

func TestNewDevice(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.CaptureConfig
		wantErr bool
	}{
		{"ffmpeg", config.CaptureConfig{Source: "ffmpeg", SampleRateHz: 44100}, false},
		{"default", config.CaptureConfig{}, false},
		{"wav", config.CaptureConfig{Source: "wav", WAVPath: "/tmp/in.wav"}, false},
		{"wav without path", config.CaptureConfig{Source: "wav"}, true},
		{"unknown", config.CaptureConfig{Source: "portaudio"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := NewDevice(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewDevice() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && dev == nil {
				t.Error("expected a device")
			}
		})
	}
}

func TestNewTranscriber(t *testing.T) {
	tr, err := NewTranscriber(context.Background(), config.STTConfig{Provider: "none"})
	if err != nil || tr != nil {
		t.Errorf("expected no transcriber for provider none, got %v %v", tr, err)
	}

	tr, err = NewTranscriber(context.Background(), config.STTConfig{Provider: "mock"})
	if err != nil || tr == nil {
		t.Errorf("expected mock transcriber, got %v %v", tr, err)
	}

	if _, err := NewTranscriber(context.Background(), config.STTConfig{Provider: "whisper"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewUploader(t *testing.T) {
	if u := NewUploader(config.UploadConfig{Enabled: false}); u != nil {
		t.Errorf("expected nil uploader when disabled, got %v", u)
	}
	if u := NewUploader(config.UploadConfig{Enabled: true, BaseURL: "http://localhost:1"}); u == nil {
		t.Error("expected uploader when enabled")
	}
}

func TestRecordedSeconds(t *testing.T) {
	completed := []segment.Outcome{{DurationSeconds: 5}, {DurationSeconds: 2}}
	failed := []segment.Outcome{{DurationSeconds: 5}}

	if got := recordedSeconds(completed, failed); got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
}
