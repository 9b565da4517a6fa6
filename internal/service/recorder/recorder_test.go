package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"workshop-recorder/internal/observability/metrics"
	"workshop-recorder/internal/service/capture"
	"workshop-recorder/internal/service/capture/pcm"
	"workshop-recorder/internal/service/segment"
)

// testMetrics is shared so the registry is only populated once.
var testMetrics = metrics.NewMetrics(prometheus.NewRegistry())

// --- fakes ---

type manualTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.c }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

type tickerSource struct {
	mu      sync.Mutex
	current *manualTicker
}

func (s *tickerSource) New(time.Duration) Ticker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &manualTicker{c: make(chan time.Time)}
	return s.current
}

func (s *tickerSource) get() *manualTicker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// gatedCapture blocks Stop until its gate is closed.
type gatedCapture struct {
	inner capture.Capture
	gate  chan struct{}
	stops *int32
}

func (g *gatedCapture) Stop(ctx context.Context) ([]byte, error) {
	atomic.AddInt32(g.stops, 1)
	if g.gate != nil {
		<-g.gate
	}
	return g.inner.Stop(ctx)
}

// testStream wraps a pcm.Stream so tests can count flushes and hold them.
type testStream struct {
	*pcm.Stream
	mu    sync.Mutex
	gate  chan struct{}
	stops int32
}

func (s *testStream) Record() (capture.Capture, error) {
	c, err := s.Stream.Record()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	return &gatedCapture{inner: c, gate: gate, stops: &s.stops}, nil
}

func (s *testStream) holdFlushes() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	return s.gate
}

type fakeDevice struct {
	mu       sync.Mutex
	err      error
	stream   *testStream
	opens    int
	released int32
}

func (d *fakeDevice) Open(ctx context.Context) (capture.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	if d.err != nil {
		return nil, d.err
	}
	d.stream = &testStream{Stream: pcm.NewStream(capture.DefaultFormat(), func() error {
		atomic.AddInt32(&d.released, 1)
		return nil
	})}
	return d.stream, nil
}

func (d *fakeDevice) current() *testStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream
}

type fakeProcessor struct {
	mu      sync.Mutex
	calls   []segment.Segment
	fail    map[int]error
	gates   map[int]chan struct{}
	panicOn map[int]bool
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		fail:    make(map[int]error),
		gates:   make(map[int]chan struct{}),
		panicOn: make(map[int]bool),
	}
}

func (p *fakeProcessor) Process(ctx context.Context, seg segment.Segment) (any, error) {
	p.mu.Lock()
	p.calls = append(p.calls, seg)
	gate := p.gates[seg.Index]
	err := p.fail[seg.Index]
	pan := p.panicOn[seg.Index]
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if pan {
		panic("processor exploded")
	}
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("result-%d", seg.Index), nil
}

func (p *fakeProcessor) hold(index int) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	g := make(chan struct{})
	p.gates[index] = g
	return g
}

func (p *fakeProcessor) segments() []segment.Segment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]segment.Segment{}, p.calls...)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (p *fakeProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// --- harness ---

type completion struct {
	sessionID string
	completed []segment.Outcome
	failed    []segment.Outcome
}

type harness struct {
	t           *testing.T
	rec         *Recorder
	dev         *fakeDevice
	proc        *fakeProcessor
	ticks       *tickerSource
	completions chan completion
	seconds     int
}

func newHarness(t *testing.T, chunkSeconds int, tweak ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		t:           t,
		dev:         &fakeDevice{},
		proc:        newFakeProcessor(),
		ticks:       &tickerSource{},
		completions: make(chan completion, 10),
	}
	cfg := Config{
		ChunkDurationSeconds: chunkSeconds,
		NotifyOnEmpty:        true,
		NewTicker:            h.ticks.New,
		Metrics:              testMetrics,
	}
	for _, fn := range tweak {
		fn(&cfg)
	}

	rec, err := New(h.dev, h.proc, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec.SetCompletionCallback(func(id string, completed, failed []segment.Outcome) {
		h.completions <- completion{id, completed, failed}
	})
	h.rec = rec
	return h
}

func (h *harness) start() string {
	h.t.Helper()
	id, err := h.rec.Start(context.Background())
	if err != nil {
		h.t.Fatalf("Start: %v", err)
	}
	h.seconds = 0
	return id
}

// second writes one second of audio, ticks, and waits for any split it
// triggered to finish.
func (h *harness) second(audio []byte) {
	h.t.Helper()
	h.tickOnly(audio)
	want := h.seconds
	waitFor(h.t, func() bool {
		s := h.rec.Status()
		return s.RecordingSeconds == want && s.State != StateSplitting
	})
}

// tickOnly writes and ticks without waiting for a split.
func (h *harness) tickOnly(audio []byte) {
	h.t.Helper()
	if len(audio) > 0 {
		h.dev.current().Write(audio)
	}
	h.seconds++
	select {
	case h.ticks.get().c <- time.Now():
	case <-time.After(2 * time.Second):
		h.t.Fatal("timer did not accept tick")
	}
}

func (h *harness) stop() {
	h.t.Helper()
	if err := h.rec.Stop(context.Background()); err != nil {
		h.t.Fatalf("Stop: %v", err)
	}
}

func (h *harness) awaitCompletion() completion {
	h.t.Helper()
	select {
	case c := <-h.completions:
		return c
	case <-time.After(2 * time.Second):
		h.t.Fatal("completion did not fire")
		return completion{}
	}
}

func (h *harness) assertNoCompletion(within time.Duration) {
	h.t.Helper()
	select {
	case c := <-h.completions:
		h.t.Fatalf("unexpected completion: %+v", c)
	case <-time.After(within):
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func indices(outcomes []segment.Outcome) []int {
	out := make([]int, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, o.Index)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func secondOfAudio(n int) []byte {
	return bytes.Repeat([]byte{byte(n)}, 10)
}

// --- tests ---

func TestNew_Validation(t *testing.T) {
	if _, err := New(&fakeDevice{}, newFakeProcessor(), Config{}); !errors.Is(err, ErrInvalidChunkDuration) {
		t.Errorf("expected ErrInvalidChunkDuration, got %v", err)
	}
	if _, err := New(&fakeDevice{}, nil, Config{ChunkDurationSeconds: 5}); !errors.Is(err, ErrNoProcessor) {
		t.Errorf("expected ErrNoProcessor, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.TickInterval != time.Second {
		t.Errorf("expected 1s tick, got %v", cfg.TickInterval)
	}
	if !cfg.NotifyOnEmpty {
		t.Error("expected completion for empty sessions by default")
	}
	if cfg.ChunkDurationSeconds <= 0 {
		t.Errorf("expected positive chunk duration, got %d", cfg.ChunkDurationSeconds)
	}
}

func TestRecorder_TwelveSecondsInFiveSecondChunks(t *testing.T) {
	h := newHarness(t, 5)
	id := h.start()

	var written []byte
	for i := 1; i <= 12; i++ {
		audio := secondOfAudio(i)
		written = append(written, audio...)
		h.second(audio)
	}
	h.stop()

	c := h.awaitCompletion()
	if c.sessionID != id {
		t.Errorf("expected completion for %s, got %s", id, c.sessionID)
	}

	segs := h.proc.segments()
	if len(segs) != 3 {
		t.Fatalf("expected 3 processor calls, got %d", len(segs))
	}

	wantDurations := []int{5, 5, 2}
	var covered []byte
	for i, seg := range segs {
		if seg.Index != i {
			t.Errorf("expected index %d, got %d", i, seg.Index)
		}
		if seg.DurationSeconds != wantDurations[i] {
			t.Errorf("segment %d: expected duration %d, got %d", i, wantDurations[i], seg.DurationSeconds)
		}
		if seg.IsFinal != (i == 2) {
			t.Errorf("segment %d: unexpected isFinal=%v", i, seg.IsFinal)
		}
		if seg.SessionID != id {
			t.Errorf("segment %d: expected session %s, got %s", i, id, seg.SessionID)
		}
		covered = append(covered, seg.Audio...)
	}

	if !bytes.Equal(covered, written) {
		t.Errorf("segments do not cover the recording exactly: got %d bytes, wrote %d", len(covered), len(written))
	}
	if got := indices(c.completed); !equalInts(got, []int{0, 1, 2}) {
		t.Errorf("expected completed [0 1 2], got %v", got)
	}
}

func TestRecorder_CompletionFiresOnceAfterLastSegment(t *testing.T) {
	h := newHarness(t, 1)
	h.proc.fail[1] = errors.New("network error")
	gate := h.proc.hold(2)

	h.start()
	h.second(secondOfAudio(1)) // segment 0
	h.second(secondOfAudio(2)) // segment 1
	h.dev.current().Write(secondOfAudio(3))
	h.second(nil) // segment 2, held by the gate
	h.stop()

	waitFor(t, func() bool {
		s := h.rec.Status()
		return s.Completed == 1 && s.Failed == 1
	})
	h.assertNoCompletion(50 * time.Millisecond)

	if s := h.rec.Status(); !s.SessionActive || s.Processing != 1 {
		t.Errorf("expected active session with 1 processing, got %+v", s)
	}

	close(gate)
	c := h.awaitCompletion()

	if got := indices(c.completed); !equalInts(got, []int{0, 2}) {
		t.Errorf("expected completed [0 2], got %v", got)
	}
	if got := indices(c.failed); !equalInts(got, []int{1}) {
		t.Errorf("expected failed [1], got %v", got)
	}
	h.assertNoCompletion(50 * time.Millisecond)

	if s := h.rec.Status(); s.SessionActive {
		t.Errorf("expected inactive session after completion, got %+v", s)
	}
}

func TestRecorder_ProcessorFailureDoesNotStopCapture(t *testing.T) {
	h := newHarness(t, 2)
	networkErr := errors.New("network error")
	h.proc.fail[0] = networkErr

	h.start()
	for i := 1; i <= 6; i++ {
		h.second(secondOfAudio(i))
	}

	if s := h.rec.Status(); !s.IsRecording {
		t.Fatalf("expected recording to continue after a failure, got %+v", s)
	}
	h.stop()
	c := h.awaitCompletion()

	if got := indices(c.failed); !equalInts(got, []int{0}) {
		t.Errorf("expected failed [0], got %v", got)
	}
	if got := indices(c.completed); !equalInts(got, []int{1, 2}) {
		t.Errorf("expected completed [1 2], got %v", got)
	}

	var segErr *SegmentError
	if !errors.As(c.failed[0].Err, &segErr) || segErr.Index != 0 {
		t.Errorf("expected SegmentError for index 0, got %v", c.failed[0].Err)
	}
	if !errors.Is(c.failed[0].Err, networkErr) {
		t.Errorf("expected cause to unwrap to network error, got %v", c.failed[0].Err)
	}
}

func TestRecorder_StopImmediatelyDispatchesNothing(t *testing.T) {
	h := newHarness(t, 5)
	h.start()
	h.stop()

	c := h.awaitCompletion()
	if len(c.completed) != 0 || len(c.failed) != 0 {
		t.Errorf("expected empty lists, got %v %v", c.completed, c.failed)
	}
	if h.proc.count() != 0 {
		t.Errorf("expected no processor calls, got %d", h.proc.count())
	}
	if err := h.rec.Wait(context.Background()); err != nil {
		t.Errorf("Wait: %v", err)
	}
}

func TestRecorder_StopBeforeFirstTickDropsAudio(t *testing.T) {
	h := newHarness(t, 5)
	h.start()
	h.dev.current().Write(secondOfAudio(1))
	h.stop()

	h.awaitCompletion()
	if h.proc.count() != 0 {
		t.Errorf("expected zero-duration final segment to be dropped, got %d calls", h.proc.count())
	}
}

func TestRecorder_EmptySessionWithoutNotify(t *testing.T) {
	h := newHarness(t, 5, func(c *Config) { c.NotifyOnEmpty = false })
	h.start()
	h.stop()

	h.assertNoCompletion(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.rec.Wait(ctx); err != nil {
		t.Errorf("expected Wait to return for a finished empty session, got %v", err)
	}
}

func TestRecorder_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, 5)
	h.start()
	h.second(secondOfAudio(1))

	h.stop()
	h.stop()

	h.awaitCompletion()
	h.assertNoCompletion(50 * time.Millisecond)

	if n := atomic.LoadInt32(&h.dev.released); n != 1 {
		t.Errorf("expected device released once, got %d", n)
	}
	if h.proc.count() != 1 {
		t.Errorf("expected exactly one final segment, got %d", h.proc.count())
	}
	if !h.ticks.get().stopped.Load() {
		t.Error("expected timer stopped")
	}
}

func TestRecorder_StopWhenIdle(t *testing.T) {
	h := newHarness(t, 5)
	if err := h.rec.Stop(context.Background()); err != nil {
		t.Errorf("expected no-op stop, got %v", err)
	}
	if err := h.rec.Wait(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestRecorder_StartDeviceUnavailable(t *testing.T) {
	h := newHarness(t, 5)
	h.dev.err = errors.New("permission denied")

	_, err := h.rec.Start(context.Background())
	if !errors.Is(err, capture.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if s := h.rec.Status(); s.State != StateIdle || s.IsRecording {
		t.Errorf("expected idle recorder, got %+v", s)
	}

	h.dev.err = nil
	h.start()
	if s := h.rec.Status(); !s.IsRecording {
		t.Errorf("expected recording after retry, got %+v", s)
	}
	h.stop()
}

func TestRecorder_StartWhileRecording(t *testing.T) {
	h := newHarness(t, 5)
	h.start()
	defer h.stop()

	if _, err := h.rec.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("expected ErrAlreadyRecording, got %v", err)
	}
}

func TestRecorder_NoOverlappingSplits(t *testing.T) {
	h := newHarness(t, 1)
	h.start()
	stream := h.dev.current()
	gate := stream.holdFlushes()

	// Replace the live capture with a gated one by rotating once.
	h.second(secondOfAudio(1))

	h.tickOnly(secondOfAudio(2)) // starts a split that blocks in Stop
	waitFor(t, func() bool { return h.rec.Status().State == StateSplitting })

	h.tickOnly(secondOfAudio(3)) // would split again if not guarded
	h.tickOnly(secondOfAudio(4))
	waitFor(t, func() bool { return h.rec.Status().RecordingSeconds == 4 })

	if n := atomic.LoadInt32(&stream.stops); n != 2 {
		t.Fatalf("expected 2 flushes (one per split), got %d", n)
	}

	close(gate)
	waitFor(t, func() bool { return h.rec.Status().State == StateCapturing })
	h.stop()
	h.awaitCompletion()

	segs := h.proc.segments()
	for i, seg := range segs {
		if seg.Index != i {
			t.Fatalf("expected indices 0..n-1, got %d at position %d", seg.Index, i)
		}
	}
	// Seconds 3 and 4 were ticked while the held capture was still live,
	// so they belong to segment 1. Nothing follows, so the final flush is
	// empty and dropped.
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[1].DurationSeconds != 3 {
		t.Errorf("expected segment 1 to last 3s, got %d", segs[1].DurationSeconds)
	}
	assertDurationsMatchAudio(t, segs, 4)
}

func TestRecorder_StopWaitsForInFlightSplit(t *testing.T) {
	h := newHarness(t, 1)
	h.start()
	stream := h.dev.current()
	gate := stream.holdFlushes()

	h.second(secondOfAudio(1))
	h.tickOnly(secondOfAudio(2))
	waitFor(t, func() bool { return h.rec.Status().State == StateSplitting })
	h.tickOnly(secondOfAudio(3))
	waitFor(t, func() bool { return h.rec.Status().RecordingSeconds == 3 })

	stopped := make(chan struct{})
	go func() {
		h.rec.Stop(context.Background())
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight split finished")
	case <-time.After(50 * time.Millisecond):
	}
	if s := h.rec.Status(); s.State != StateFinalizing {
		t.Errorf("expected FINALIZING, got %s", s.State)
	}
	if err := h.rec.Stop(context.Background()); err != nil {
		t.Errorf("second Stop while finalizing: %v", err)
	}

	close(gate)
	<-stopped
	h.awaitCompletion()

	segs := h.proc.segments()
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	// The held capture stays live until its flush, so it carries second 3
	// and its tick. The final flush is empty.
	want := append(secondOfAudio(2), secondOfAudio(3)...)
	if !bytes.Equal(segs[1].Audio, want) {
		t.Errorf("expected split segment to carry seconds 2 and 3, got %v", segs[1].Audio)
	}
	if segs[1].IsFinal {
		t.Error("split segment must not be final")
	}
	assertDurationsMatchAudio(t, segs, 3)
}

// assertDurationsMatchAudio checks every segment's duration against its
// byte count and that the durations add up to the recorded seconds.
func assertDurationsMatchAudio(t *testing.T, segs []segment.Segment, recorded int) {
	t.Helper()
	total := 0
	for _, seg := range segs {
		if got := len(seg.Audio) / len(secondOfAudio(0)); got != seg.DurationSeconds {
			t.Errorf("segment %d: duration %ds but %ds of audio", seg.Index, seg.DurationSeconds, got)
		}
		total += seg.DurationSeconds
	}
	if total != recorded {
		t.Errorf("expected durations to sum to %d, got %d", recorded, total)
	}
}

func TestRecorder_OutOfOrderCompletion(t *testing.T) {
	h := newHarness(t, 1)
	gate0 := h.proc.hold(0)

	var mu sync.Mutex
	var order []int
	h.rec.SetOutcomeCallback(func(_ string, o segment.Outcome) {
		mu.Lock()
		order = append(order, o.Index)
		mu.Unlock()
	})

	h.start()
	h.second(secondOfAudio(1))
	h.second(secondOfAudio(2))
	h.stop()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 1
	})
	close(gate0)
	c := h.awaitCompletion()

	mu.Lock()
	defer mu.Unlock()
	if !equalInts(order, []int{1, 0}) {
		t.Errorf("expected segment 1 to resolve before 0, got %v", order)
	}
	if got := indices(c.completed); !equalInts(got, []int{0, 1}) {
		t.Errorf("expected completed ordered by index [0 1], got %v", got)
	}

	outcomes := h.rec.Outcomes()
	if len(outcomes) != 2 || outcomes[0].Result != "result-0" || outcomes[1].Result != "result-1" {
		t.Errorf("unexpected outcomes %+v", outcomes)
	}
}

func TestRecorder_ProcessorPanicFailsSegment(t *testing.T) {
	h := newHarness(t, 1)
	h.proc.panicOn[0] = true

	h.start()
	h.second(secondOfAudio(1))
	h.stop()

	c := h.awaitCompletion()
	if got := indices(c.failed); !equalInts(got, []int{0}) {
		t.Errorf("expected failed [0], got %v", got)
	}
}

func TestRecorder_EmptySplitDoesNotConsumeIndex(t *testing.T) {
	h := newHarness(t, 2)
	h.start()

	h.second(nil)
	h.second(nil) // empty split
	h.second(secondOfAudio(3))
	h.second(secondOfAudio(4))
	h.stop()
	h.awaitCompletion()

	segs := h.proc.segments()
	if len(segs) != 1 {
		t.Fatalf("expected one segment, got %d", len(segs))
	}
	if segs[0].Index != 0 || segs[0].DurationSeconds != 2 {
		t.Errorf("expected index 0 of 2s, got %+v", segs[0])
	}
}

func TestRecorder_StatusCounters(t *testing.T) {
	h := newHarness(t, 3)
	id := h.start()

	h.second(secondOfAudio(1))
	h.second(secondOfAudio(2))

	s := h.rec.Status()
	if s.SessionID != id || s.State != StateCapturing || !s.IsRecording {
		t.Errorf("unexpected status %+v", s)
	}
	if s.RecordingSeconds != 2 || s.ChunkSeconds != 2 || s.ChunkDurationSeconds != 3 {
		t.Errorf("unexpected counters %+v", s)
	}

	h.second(secondOfAudio(3))
	s = h.rec.Status()
	if s.RecordingSeconds != 3 || s.ChunkSeconds != 0 {
		t.Errorf("expected chunk counter reset after split, got %+v", s)
	}

	h.stop()
	h.awaitCompletion()
	if s := h.rec.Status(); s.IsRecording || s.State != StateIdle {
		t.Errorf("expected idle after stop, got %+v", s)
	}
}

func TestRecorder_NewSessionResetsState(t *testing.T) {
	h := newHarness(t, 1)
	first := h.start()
	h.second(secondOfAudio(1))
	h.stop()
	h.awaitCompletion()

	second := h.start()
	if first == second {
		t.Error("expected a new session id")
	}
	s := h.rec.Status()
	if s.RecordingSeconds != 0 || s.Completed != 0 || s.Failed != 0 {
		t.Errorf("expected reset counters, got %+v", s)
	}
	if len(h.rec.Outcomes()) != 0 {
		t.Errorf("expected empty outcomes for new session")
	}
	h.stop()
	h.awaitCompletion()
}

func TestRecorder_LevelMonitoring(t *testing.T) {
	h := newHarness(t, 5, func(c *Config) { c.LevelInterval = 2 * time.Millisecond })

	var readings atomic.Int32
	h.rec.SetLevelCallback(func(float64) { readings.Add(1) })

	h.start()
	loud := make([]byte, 320)
	for i := 0; i < len(loud); i += 2 {
		loud[i] = 0xff
		loud[i+1] = 0x7f
	}
	h.dev.current().Write(loud)

	waitFor(t, func() bool { return h.rec.Level() > 0.5 })
	h.stop()

	if h.rec.Level() != 0 {
		t.Errorf("expected level reset after stop, got %f", h.rec.Level())
	}
	if readings.Load() == 0 {
		t.Error("expected level callback to fire")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "IDLE"},
		{StateAcquiring, "ACQUIRING"},
		{StateCapturing, "CAPTURING"},
		{StateSplitting, "SPLITTING"},
		{StateFinalizing, "FINALIZING"},
		{State(42), "UNKNOWN(42)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %v, want %v", tt.state, got, tt.expected)
		}
	}
}

func TestState_TextRoundTrip(t *testing.T) {
	var s State
	if err := s.UnmarshalText([]byte("SPLITTING")); err != nil || s != StateSplitting {
		t.Errorf("UnmarshalText(SPLITTING) = %v, %v", s, err)
	}
	if err := s.UnmarshalText([]byte("PAUSED")); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestRecorder_CompletionWaitsForOutcomeCallbacks(t *testing.T) {
	h := newHarness(t, 1)
	release := make(chan struct{})
	entered := make(chan struct{})
	var reported atomic.Bool
	h.rec.SetOutcomeCallback(func(_ string, o segment.Outcome) {
		if o.Index == 0 {
			close(entered)
			<-release
		}
		reported.Store(true)
	})

	h.start()
	h.second(secondOfAudio(1))
	<-entered
	h.stop()

	// Segment 0 is resolved but its callback has not returned yet.
	h.assertNoCompletion(50 * time.Millisecond)

	close(release)
	c := h.awaitCompletion()
	if !reported.Load() {
		t.Error("completion fired before the outcome callback returned")
	}
	if !equalInts(indices(c.completed), []int{0}) {
		t.Errorf("expected completed [0], got %v", indices(c.completed))
	}
}
