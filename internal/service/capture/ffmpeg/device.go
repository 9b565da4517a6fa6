// Package ffmpeg provides a microphone capture device backed by an ffmpeg
// child process writing raw PCM to stdout.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"workshop-recorder/internal/observability/logging"
	"workshop-recorder/internal/service/capture"
	"workshop-recorder/internal/service/capture/pcm"
)

// Config holds ffmpeg capture settings.
type Config struct {
	Binary       string
	InputFormat  string // avfoundation, pulse, dshow
	InputDevice  string // ":default", "default", "audio=..."
	Format       capture.Format
	StartTimeout time.Duration // how long to wait for the first audio bytes
}

// DefaultConfig returns platform defaults for the system microphone.
func DefaultConfig() Config {
	cfg := Config{
		Binary:       "ffmpeg",
		Format:       capture.DefaultFormat(),
		StartTimeout: 5 * time.Second,
	}
	switch runtime.GOOS {
	case "darwin":
		cfg.InputFormat, cfg.InputDevice = "avfoundation", ":default"
	case "windows":
		cfg.InputFormat, cfg.InputDevice = "dshow", "audio=default"
	default:
		cfg.InputFormat, cfg.InputDevice = "pulse", "default"
	}
	return cfg
}

// Device opens the microphone through ffmpeg.
type Device struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates an ffmpeg device.
func New(cfg Config) *Device {
	return &Device{
		cfg:    cfg,
		logger: logging.WithComponent("capture.ffmpeg"),
	}
}

// Args returns the ffmpeg command line used to capture audio.
func (d *Device) Args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", d.cfg.InputFormat,
		"-i", d.cfg.InputDevice,
		"-ac", strconv.Itoa(d.cfg.Format.Channels),
		"-ar", strconv.Itoa(d.cfg.Format.SampleRateHz),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"pipe:1",
	}
}

// Open starts ffmpeg and waits until the first audio arrives. A missing
// binary, a process that exits early (permission denied, no input) or no
// audio within StartTimeout all wrap capture.ErrDeviceUnavailable.
func (d *Device) Open(ctx context.Context) (capture.Stream, error) {
	bin, err := exec.LookPath(d.cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found: %v", capture.ErrDeviceUnavailable, err)
	}

	cmd := exec.Command(bin, d.Args()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", capture.ErrDeviceUnavailable, err)
	}

	exited := make(chan struct{})
	firstData := make(chan struct{})
	var waitErr error

	stream := pcm.NewStream(d.cfg.Format, func() error {
		return stopProcess(cmd, exited)
	})

	go func() {
		pump(stdout, stream, firstData)
		waitErr = cmd.Wait()
		close(exited)
	}()

	timeout := d.cfg.StartTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-firstData:
		d.logger.Info().
			Strs("args", d.Args()).
			Int("sampleRateHz", d.cfg.Format.SampleRateHz).
			Msg("Microphone capture started")
		return stream, nil
	case <-exited:
		stream.Close()
		return nil, fmt.Errorf("%w: ffmpeg exited: %v: %s", capture.ErrDeviceUnavailable, waitErr, bytes.TrimSpace(stderr.Bytes()))
	case <-timer.C:
		stream.Close()
		return nil, fmt.Errorf("%w: no audio within %v", capture.ErrDeviceUnavailable, timeout)
	case <-ctx.Done():
		stream.Close()
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, ctx.Err())
	}
}

// pump copies stdout into the stream until EOF or the stream is closed.
func pump(r io.Reader, w io.Writer, firstData chan struct{}) {
	var once sync.Once
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			once.Do(func() { close(firstData) })
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// stopProcess asks ffmpeg to finish, killing it if it does not exit promptly.
func stopProcess(cmd *exec.Cmd, exited <-chan struct{}) error {
	if cmd.Process == nil {
		return nil
	}
	select {
	case <-exited:
		return nil
	default:
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		return cmd.Process.Kill()
	}
	select {
	case <-exited:
		return nil
	case <-time.After(2 * time.Second):
		return cmd.Process.Kill()
	}
}
