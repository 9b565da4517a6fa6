// Package capture defines the audio capture device contract used by the
// chunked recorder.
package capture

import (
	"context"
	"errors"
	"time"
)

// Errors returned by capture devices and streams.
var (
	// ErrDeviceUnavailable is returned when the device cannot be acquired
	// (permission denied, no hardware, missing capture binary).
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrStreamClosed      = errors.New("capture stream closed")
	ErrCaptureActive     = errors.New("a capture is already live on this stream")
	ErrCaptureStopped    = errors.New("capture already stopped")
)

// Format describes raw PCM audio produced by a stream.
type Format struct {
	SampleRateHz  int
	Channels      int
	BitsPerSample int
}

// DefaultFormat is 16kHz 16-bit mono, the format the transcription backends expect.
func DefaultFormat() Format {
	return Format{
		SampleRateHz:  16000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRateHz * f.Channels * f.BitsPerSample / 8
}

// FrameSize returns the number of bytes in one sample frame.
func (f Format) FrameSize() int {
	return f.Channels * f.BitsPerSample / 8
}

// Duration returns the playback duration of n bytes.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// Device acquires a live audio stream.
type Device interface {
	// Open acquires the device. Failures wrap ErrDeviceUnavailable.
	Open(ctx context.Context) (Stream, error)
}

// Stream is a live audio source. Successive captures on the same stream
// cover the audio contiguously: bytes that arrive between one capture's
// Stop and the next Record belong to the next capture.
type Stream interface {
	// Format returns the PCM format of the stream.
	Format() Format

	// Record begins a new capture. At most one capture is live at a time.
	Record() (Capture, error)

	// Level returns the RMS level of the most recent audio, in [0, 1].
	Level() float64

	// Close releases the device. Idempotent.
	Close() error
}

// Capture is one recording on a stream.
type Capture interface {
	// Stop ends the capture and returns every byte buffered since it began.
	Stop(ctx context.Context) ([]byte, error)
}
