package segment

import (
	"errors"
	"sort"
	"sync"
)

// ErrUnknownSegment is returned when resolving an index never dispatched.
var ErrUnknownSegment = errors.New("unknown segment index")

// Tally counts dispatched and resolved segments for a session.
type Tally struct {
	Dispatched int `json:"dispatched"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Processing returns the number of segments still waiting on the processor.
func (t Tally) Processing() int {
	return t.Dispatched - t.Completed - t.Failed
}

// Settled reports whether every dispatched segment has a terminal outcome.
func (t Tally) Settled() bool {
	return t.Processing() == 0
}

// Done reports whether a session's completion signal is due: capture has
// stopped and nothing is still processing.
func Done(t Tally, stopped bool) bool {
	return stopped && t.Settled()
}

// Board tracks the outcomes of one session's segments. Outcomes are
// append-only and the tally is updated in the same critical section as the
// transition it counts.
type Board struct {
	mu      sync.RWMutex
	byIndex map[int]*Lifecycle
	tally   Tally
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{byIndex: make(map[int]*Lifecycle)}
}

// Dispatch registers a segment as PROCESSING.
func (b *Board) Dispatch(seg Segment) *Lifecycle {
	lc := NewLifecycle(seg)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.byIndex[seg.Index] = lc
	b.tally.Dispatched++
	return lc
}

// Resolve moves a segment to COMPLETED (err == nil) or FAILED and returns
// the updated tally. Resolving twice returns ErrAlreadyResolved.
func (b *Board) Resolve(index int, result any, err error) (Outcome, Tally, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lc, ok := b.byIndex[index]
	if !ok {
		return Outcome{}, b.tally, ErrUnknownSegment
	}

	if err != nil {
		if ferr := lc.Fail(err); ferr != nil {
			return lc.Outcome(), b.tally, ferr
		}
		b.tally.Failed++
	} else {
		if cerr := lc.Complete(result); cerr != nil {
			return lc.Outcome(), b.tally, cerr
		}
		b.tally.Completed++
	}
	return lc.Outcome(), b.tally, nil
}

// Tally returns the current counts.
func (b *Board) Tally() Tally {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tally
}

// Outcomes returns every outcome ordered by index.
func (b *Board) Outcomes() []Outcome {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Outcome, 0, len(b.byIndex))
	for _, lc := range b.byIndex {
		out = append(out, lc.Outcome())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Partition splits terminal outcomes into completed and failed, each ordered
// by index.
func (b *Board) Partition() (completed, failed []Outcome) {
	completed = []Outcome{}
	failed = []Outcome{}
	for _, o := range b.Outcomes() {
		switch o.State {
		case StateCompleted:
			completed = append(completed, o)
		case StateFailed:
			failed = append(failed, o)
		}
	}
	return completed, failed
}
