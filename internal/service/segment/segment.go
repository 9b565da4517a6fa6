package segment

import (
	"errors"
	"fmt"
	"sync/atomic"

	"workshop-recorder/internal/service/capture"
)

// ErrEmpty marks a flush that produced no audio or no elapsed time. Empty
// segments are discarded and never reach the processor.
var ErrEmpty = errors.New("empty segment")

// Segment is one contiguous slice of captured audio.
type Segment struct {
	SessionID       string
	Index           int
	Audio           []byte
	Format          capture.Format
	DurationSeconds int
	IsFinal         bool
}

// ID returns the segment identifier, e.g. "3f1c...-seg-2".
func (s Segment) ID() string {
	return ID(s.SessionID, s.Index)
}

// Validate returns ErrEmpty if the segment carries no audio or no duration.
func (s Segment) Validate() error {
	if len(s.Audio) == 0 || s.DurationSeconds <= 0 {
		return ErrEmpty
	}
	return nil
}

// ID formats a segment identifier for a session and index.
func ID(sessionID string, index int) string {
	return fmt.Sprintf("%s-seg-%d", sessionID, index)
}

// Generator hands out 0-based segment indices for one session.
type Generator struct {
	counter int64
}

// New returns a generator whose first index is 0.
func New() *Generator {
	return &Generator{counter: -1}
}

// Next returns the next index.
func (g *Generator) Next() int {
	return int(atomic.AddInt64(&g.counter, 1))
}

// Issued returns how many indices have been handed out.
func (g *Generator) Issued() int {
	return int(atomic.LoadInt64(&g.counter) + 1)
}
