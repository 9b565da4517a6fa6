// Package pcm provides a capture.Stream backed by raw PCM frames written by
// a device.
package pcm

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"sync"

	"workshop-recorder/internal/service/capture"
)

// Stream buffers PCM frames into the live capture.
//
// Frames written while no capture is live are held in a pending buffer and
// handed to the next capture, so stopping one capture and recording the next
// never loses or duplicates audio.
type Stream struct {
	mu      sync.Mutex
	format  capture.Format
	live    *Capture
	pending bytes.Buffer
	level   float64
	closed  bool
	release func() error
}

// NewStream creates a stream in the given format. release is called once on
// Close to free the underlying device; it may be nil.
func NewStream(format capture.Format, release func() error) *Stream {
	return &Stream{
		format:  format,
		release: release,
	}
}

// Format returns the stream format.
func (s *Stream) Format() capture.Format {
	return s.format
}

// Write appends frames from the device. Writes after Close are discarded.
func (s *Stream) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	level := rms16(p)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, capture.ErrStreamClosed
	}
	s.level = level
	if s.live != nil {
		s.live.buf.Write(p)
	} else {
		s.pending.Write(p)
	}
	return len(p), nil
}

// Record starts a new capture seeded with any pending frames.
func (s *Stream) Record() (capture.Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, capture.ErrStreamClosed
	}
	if s.live != nil {
		return nil, capture.ErrCaptureActive
	}

	c := &Capture{stream: s}
	if s.pending.Len() > 0 {
		c.buf.Write(s.pending.Bytes())
		s.pending.Reset()
	}
	s.live = c
	return c, nil
}

// Level returns the RMS level of the most recent write.
func (s *Stream) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// Pending returns the number of bytes waiting for the next capture.
func (s *Stream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

// Close releases the device. Idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.live = nil
	s.pending.Reset()
	s.level = 0
	release := s.release
	s.mu.Unlock()

	if release != nil {
		return release()
	}
	return nil
}

// Capture is a single recording on a Stream.
type Capture struct {
	stream  *Stream
	buf     bytes.Buffer
	stopped bool
}

// Stop detaches the capture from the stream and returns its whole frames.
func (c *Capture) Stop(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := c.stream
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.stopped {
		return nil, capture.ErrCaptureStopped
	}
	c.stopped = true
	if s.live == c {
		s.live = nil
	}

	// A partial frame at the end stays with the stream for the next capture.
	n := c.buf.Len()
	if fs := s.format.FrameSize(); fs > 0 {
		n -= n % fs
	}
	data := c.buf.Bytes()
	if n < len(data) {
		tail := append([]byte(nil), data[n:]...)
		tail = append(tail, s.pending.Bytes()...)
		s.pending.Reset()
		s.pending.Write(tail)
	}

	out := make([]byte, n)
	copy(out, data[:n])
	c.buf.Reset()
	return out, nil
}

// rms16 computes the normalised RMS of little-endian signed 16-bit samples.
func rms16(p []byte) float64 {
	n := len(p) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(p[2*i:]))) / math.MaxInt16
		sum += v * v
	}
	level := math.Sqrt(sum / float64(n))
	if level > 1 {
		level = 1
	}
	return level
}
