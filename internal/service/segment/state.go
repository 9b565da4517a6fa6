// Package segment provides segment indexing and outcome lifecycle management.
package segment

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the processing state of a dispatched segment.
type State int

const (
	// StateProcessing - Segment handed to the processor, no result yet.
	StateProcessing State = iota
	// StateCompleted - Processor returned a result.
	StateCompleted
	// StateFailed - Processor returned an error. Not retried here.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateProcessing:
		return "PROCESSING"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// MarshalText renders the state in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateProcessing, StateCompleted, StateFailed} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown segment state %q", text)
}

// IsTerminal returns true if the state is terminal (COMPLETED or FAILED).
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ErrAlreadyResolved is returned for a second terminal transition.
var ErrAlreadyResolved = errors.New("segment outcome already resolved")

// Outcome is a point-in-time view of a dispatched segment.
type Outcome struct {
	Index           int           `json:"index"`
	SegmentID       string        `json:"segmentId"`
	DurationSeconds int           `json:"durationSeconds"`
	IsFinal         bool          `json:"isFinal"`
	State           State         `json:"state"`
	Result          any           `json:"result,omitempty"`
	Err             error         `json:"-"`
	Error           string        `json:"error,omitempty"`
	Latency         time.Duration `json:"latencyNs,omitempty"`
}

// Lifecycle manages the state machine for a single dispatched segment.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	PROCESSING ──→ Complete() ──→ COMPLETED
//	     │
//	     └──────→ Fail() ──────→ FAILED
//
// Exactly one terminal transition is accepted; later ones return
// ErrAlreadyResolved and leave the outcome untouched.
type Lifecycle struct {
	mu           sync.RWMutex
	index        int
	segmentId    string
	duration     int
	isFinal      bool
	state        State
	result       any
	err          error
	dispatchedAt time.Time
	resolvedAt   time.Time
}

// NewLifecycle creates a lifecycle in PROCESSING state for a dispatched segment.
func NewLifecycle(seg Segment) *Lifecycle {
	return &Lifecycle{
		index:        seg.Index,
		segmentId:    seg.ID(),
		duration:     seg.DurationSeconds,
		isFinal:      seg.IsFinal,
		state:        StateProcessing,
		dispatchedAt: time.Now(),
	}
}

// Index returns the segment index.
func (l *Lifecycle) Index() int {
	return l.index
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Complete records a successful result.
func (l *Lifecycle) Complete(result any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return ErrAlreadyResolved
	}
	l.state = StateCompleted
	l.result = result
	l.resolvedAt = time.Now()
	return nil
}

// Fail records a processing failure.
func (l *Lifecycle) Fail(err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return ErrAlreadyResolved
	}
	l.state = StateFailed
	l.err = err
	l.resolvedAt = time.Now()
	return nil
}

// Outcome returns a snapshot of the lifecycle.
func (l *Lifecycle) Outcome() Outcome {
	l.mu.RLock()
	defer l.mu.RUnlock()

	o := Outcome{
		Index:           l.index,
		SegmentID:       l.segmentId,
		DurationSeconds: l.duration,
		IsFinal:         l.isFinal,
		State:           l.state,
		Result:          l.result,
		Err:             l.err,
	}
	if l.err != nil {
		o.Error = l.err.Error()
	}
	if l.state.IsTerminal() {
		o.Latency = l.resolvedAt.Sub(l.dispatchedAt)
	}
	return o
}
