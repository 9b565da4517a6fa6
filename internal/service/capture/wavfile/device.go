// Package wavfile replays a PCM WAV file as a capture device.
package wavfile

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"workshop-recorder/internal/observability/logging"
	"workshop-recorder/internal/service/capture"
	"workshop-recorder/internal/service/capture/pcm"
)

// DefaultFrameDuration is the replay frame size, 100ms of audio per write.
const DefaultFrameDuration = 100 * time.Millisecond

// Config holds replay settings.
type Config struct {
	Path          string
	Realtime      bool          // pace frames at playback speed
	FrameDuration time.Duration // audio per write
	OnEOF         func()        // called once the whole file has been written
}

// Device replays a WAV file.
type Device struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates a WAV replay device.
func New(cfg Config) *Device {
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = DefaultFrameDuration
	}
	return &Device{
		cfg:    cfg,
		logger: logging.WithComponent("capture.wavfile"),
	}
}

// Open opens the file and starts feeding its samples into a new stream.
func (d *Device) Open(ctx context.Context) (capture.Stream, error) {
	f, err := os.Open(d.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}

	format, err := capture.DecodeWAVHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}

	done := make(chan struct{})
	var once sync.Once
	stopFeed := func() { once.Do(func() { close(done) }) }

	stream := pcm.NewStream(format, func() error {
		stopFeed()
		return nil
	})

	d.logger.Info().
		Str("path", d.cfg.Path).
		Int("sampleRateHz", format.SampleRateHz).
		Int("channels", format.Channels).
		Bool("realtime", d.cfg.Realtime).
		Msg("WAV replay started")

	go d.feed(f, stream, format, done)
	return stream, nil
}

func (d *Device) feed(f *os.File, w io.Writer, format capture.Format, done <-chan struct{}) {
	defer f.Close()

	frameBytes := int(int64(format.BytesPerSecond()) * int64(d.cfg.FrameDuration) / int64(time.Second))
	if fs := format.FrameSize(); fs > 0 {
		frameBytes -= frameBytes % fs
	}
	if frameBytes <= 0 {
		frameBytes = 4096
	}

	var ticker *time.Ticker
	if d.cfg.Realtime {
		ticker = time.NewTicker(d.cfg.FrameDuration)
		defer ticker.Stop()
	}

	buf := make([]byte, frameBytes)
	var total int64
	for {
		select {
		case <-done:
			return
		default:
		}

		n, err := io.ReadFull(f, buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			total += int64(n)
		}
		if err != nil {
			d.logger.Info().Int64("bytes", total).Msg("WAV replay reached end of file")
			if d.cfg.OnEOF != nil {
				d.cfg.OnEOF()
			}
			return
		}

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-done:
				return
			}
		}
	}
}
