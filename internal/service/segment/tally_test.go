package segment

import (
	"errors"
	"sync"
	"testing"
)

func TestTally_Done(t *testing.T) {
	tests := []struct {
		name    string
		tally   Tally
		stopped bool
		want    bool
	}{
		{"recording, nothing dispatched", Tally{}, false, false},
		{"stopped, nothing dispatched", Tally{}, true, true},
		{"stopped, one processing", Tally{Dispatched: 3, Completed: 1, Failed: 1}, true, false},
		{"stopped, all resolved", Tally{Dispatched: 3, Completed: 2, Failed: 1}, true, true},
		{"recording, all resolved", Tally{Dispatched: 2, Completed: 2}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Done(tt.tally, tt.stopped); got != tt.want {
				t.Errorf("Done(%+v, %v) = %v, want %v", tt.tally, tt.stopped, got, tt.want)
			}
		})
	}
}

func TestBoard_ResolveUpdatesTally(t *testing.T) {
	b := NewBoard()
	for i := 0; i < 3; i++ {
		b.Dispatch(Segment{SessionID: "s", Index: i, Audio: []byte{1}, DurationSeconds: 1})
	}

	if got := b.Tally(); got.Processing() != 3 {
		t.Fatalf("expected 3 processing, got %+v", got)
	}

	// Out of order completion.
	b.Resolve(2, "c", nil)
	b.Resolve(0, "a", nil)
	_, tally, err := b.Resolve(1, nil, errors.New("upload failed"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if tally.Completed != 2 || tally.Failed != 1 || !tally.Settled() {
		t.Errorf("unexpected tally %+v", tally)
	}

	completed, failed := b.Partition()
	if len(completed) != 2 || completed[0].Index != 0 || completed[1].Index != 2 {
		t.Errorf("expected completed [0 2], got %+v", completed)
	}
	if len(failed) != 1 || failed[0].Index != 1 {
		t.Errorf("expected failed [1], got %+v", failed)
	}
}

func TestBoard_ResolveTwice(t *testing.T) {
	b := NewBoard()
	b.Dispatch(Segment{SessionID: "s", Index: 0})

	b.Resolve(0, "ok", nil)
	_, tally, err := b.Resolve(0, nil, errors.New("late"))
	if err != ErrAlreadyResolved {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}
	if tally.Completed != 1 || tally.Failed != 0 {
		t.Errorf("second resolve must not be counted, got %+v", tally)
	}
}

func TestBoard_ResolveUnknown(t *testing.T) {
	b := NewBoard()
	if _, _, err := b.Resolve(7, nil, nil); err != ErrUnknownSegment {
		t.Errorf("expected ErrUnknownSegment for unknown index, got %v", err)
	}
}

func TestBoard_ConcurrentResolve(t *testing.T) {
	b := NewBoard()
	n := 50
	for i := 0; i < n; i++ {
		b.Dispatch(Segment{SessionID: "s", Index: i})
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			var err error
			if idx%5 == 0 {
				err = errors.New("boom")
			}
			b.Resolve(idx, idx, err)
		}(i)
	}
	wg.Wait()

	tally := b.Tally()
	if tally.Completed != 40 || tally.Failed != 10 || !tally.Settled() {
		t.Errorf("unexpected tally %+v", tally)
	}

	outcomes := b.Outcomes()
	for i, o := range outcomes {
		if o.Index != i {
			t.Fatalf("outcomes not ordered by index: position %d has %d", i, o.Index)
		}
	}
}

func TestBoard_PartitionEmpty(t *testing.T) {
	completed, failed := NewBoard().Partition()
	if completed == nil || failed == nil {
		t.Error("expected empty, non-nil lists")
	}
	if len(completed) != 0 || len(failed) != 0 {
		t.Errorf("expected empty lists, got %v %v", completed, failed)
	}
}
