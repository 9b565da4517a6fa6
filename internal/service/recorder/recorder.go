// Package recorder provides the chunked recorder: it owns a microphone
// capture session, rotates the capture every ChunkDurationSeconds without
// losing audio, and hands each finished segment to a processor while the
// next one keeps recording.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"workshop-recorder/internal/observability/logging"
	"workshop-recorder/internal/observability/metrics"
	"workshop-recorder/internal/service/capture"
	"workshop-recorder/internal/service/segment"
)

// State is the recorder state.
type State int

const (
	// StateIdle - No capture. Start is allowed.
	StateIdle State = iota
	// StateAcquiring - Waiting for the device (may be a permission prompt).
	StateAcquiring
	// StateCapturing - Audio is being buffered into the current segment.
	StateCapturing
	// StateSplitting - Rotating the capture. Further splits are refused.
	StateSplitting
	// StateFinalizing - Stop in progress. A second Stop is a no-op.
	StateFinalizing
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAcquiring:
		return "ACQUIRING"
	case StateCapturing:
		return "CAPTURING"
	case StateSplitting:
		return "SPLITTING"
	case StateFinalizing:
		return "FINALIZING"
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
	for st := StateIdle; st <= StateFinalizing; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown recorder state %q", text)
}

// Errors returned by the recorder.
var (
	ErrAlreadyRecording     = errors.New("recording already in progress")
	ErrNoSession            = errors.New("no recording session")
	ErrInvalidChunkDuration = errors.New("chunk duration must be greater than zero")
	ErrNoProcessor          = errors.New("segment processor is required")
)

// SegmentError records why a segment's processing failed.
type SegmentError struct {
	Index int
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d processing failed: %v", e.Index, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}

// Processor uploads and analyzes a finished segment. Its result is opaque to
// the recorder. An error fails that segment only.
type Processor interface {
	Process(ctx context.Context, seg segment.Segment) (any, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, seg segment.Segment) (any, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, seg segment.Segment) (any, error) {
	return f(ctx, seg)
}

// CompletionFunc is called once per session after Stop, when every
// dispatched segment has a terminal outcome. Lists are ordered by index.
type CompletionFunc func(sessionID string, completed, failed []segment.Outcome)

// OutcomeFunc is called whenever a segment reaches a terminal outcome.
type OutcomeFunc func(sessionID string, outcome segment.Outcome)

// LevelFunc receives throttled input level readings.
type LevelFunc func(level float64)

// Config holds recorder settings.
type Config struct {
	ChunkDurationSeconds int           // target segment length, > 0
	TickInterval         time.Duration // one timer second; shortened only in tests and replays
	LevelInterval        time.Duration // audio level cadence; 0 disables monitoring
	NotifyOnEmpty        bool          // fire completion for sessions that produced no segments
	NewTicker            TickerFunc
	Metrics              *metrics.Metrics
}

// DefaultConfig returns the default recorder settings.
func DefaultConfig() Config {
	return Config{
		ChunkDurationSeconds: 300,
		TickInterval:         time.Second,
		LevelInterval:        100 * time.Millisecond,
		NotifyOnEmpty:        true,
	}
}

// Snapshot is the observable recorder state for a host UI.
type Snapshot struct {
	SessionID            string  `json:"sessionId,omitempty"`
	State                State   `json:"state"`
	IsRecording          bool    `json:"isRecording"`
	RecordingSeconds     int     `json:"recordingTimeSeconds"`
	ChunkSeconds         int     `json:"currentChunkTimeSeconds"`
	ChunkDurationSeconds int     `json:"chunkDurationSeconds"`
	SessionActive        bool    `json:"sessionActive"`
	Processing           int     `json:"processing"`
	Completed            int     `json:"completed"`
	Failed               int     `json:"failed"`
	Level                float64 `json:"level"`
}

// session holds per-session state. Fields are guarded by Recorder.mu.
type session struct {
	id               string
	ctx              context.Context
	logger           zerolog.Logger
	gen              *segment.Generator
	board            *segment.Board
	recordingSeconds int
	chunkSeconds     int
	reported         int
	stopped          bool
	notified         bool
	done             chan struct{}
}

// Recorder is the chunked recorder.
//
// State transitions:
//
//	IDLE → Start() → ACQUIRING → CAPTURING
//	CAPTURING → chunk time reached → SPLITTING → CAPTURING
//	CAPTURING | SPLITTING → Stop() → FINALIZING → IDLE
//
// Exactly one capture is live at any time. Segments are indexed 0, 1, 2...
// in dispatch order and processed concurrently; completion order is not
// guaranteed, so outcomes are tracked by index.
type Recorder struct {
	device    capture.Device
	processor Processor
	cfg       Config
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mu        sync.Mutex
	state     State
	session   *session
	stream    capture.Stream
	capture   capture.Capture
	ticker    Ticker
	stopTick  chan struct{}
	tickDone  chan struct{}
	stopLevel chan struct{}
	levelDone chan struct{}
	splitDone chan struct{}

	onComplete CompletionFunc
	onOutcome  OutcomeFunc
	onLevel    LevelFunc

	level atomic.Uint64
}

// New creates a recorder.
func New(device capture.Device, processor Processor, cfg Config) (*Recorder, error) {
	if cfg.ChunkDurationSeconds <= 0 {
		return nil, ErrInvalidChunkDuration
	}
	if processor == nil {
		return nil, ErrNoProcessor
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewTimeTicker
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}

	return &Recorder{
		device:    device,
		processor: processor,
		cfg:       cfg,
		metrics:   m,
		logger:    logging.WithComponent("recorder"),
	}, nil
}

// SetCompletionCallback sets the completion notifier.
func (r *Recorder) SetCompletionCallback(cb CompletionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onComplete = cb
}

// SetOutcomeCallback sets a callback for every terminal segment outcome.
func (r *Recorder) SetOutcomeCallback(cb OutcomeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onOutcome = cb
}

// SetLevelCallback sets a callback for audio level readings.
func (r *Recorder) SetLevelCallback(cb LevelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLevel = cb
}

// Start acquires the device and begins a new session. Device failures are
// returned to the caller wrapped in capture.ErrDeviceUnavailable and the
// recorder stays idle.
func (r *Recorder) Start(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return "", ErrAlreadyRecording
	}
	r.state = StateAcquiring
	r.mu.Unlock()

	stream, err := r.device.Open(ctx)
	if err != nil {
		return "", r.abortStart(nil, err)
	}
	first, err := stream.Record()
	if err != nil {
		return "", r.abortStart(stream, err)
	}

	id := uuid.New().String()
	sess := &session{
		id:     id,
		ctx:    context.WithoutCancel(ctx),
		logger: logging.WithSession(id),
		gen:    segment.New(),
		board:  segment.NewBoard(),
		done:   make(chan struct{}),
	}
	ticker := r.cfg.NewTicker(r.cfg.TickInterval)
	stopTick := make(chan struct{})
	tickDone := make(chan struct{})

	r.mu.Lock()
	r.session = sess
	r.stream = stream
	r.capture = first
	r.ticker = ticker
	r.stopTick = stopTick
	r.tickDone = tickDone
	r.splitDone = nil
	r.state = StateCapturing
	if r.cfg.LevelInterval > 0 {
		r.stopLevel = make(chan struct{})
		r.levelDone = make(chan struct{})
		go r.monitorLevel(stream, r.stopLevel, r.levelDone)
	}
	r.mu.Unlock()

	go r.runTimer(sess, ticker, stopTick, tickDone)

	r.metrics.RecordSessionStart()
	sess.logger.Info().
		Int("chunkDurationSeconds", r.cfg.ChunkDurationSeconds).
		Int("sampleRateHz", stream.Format().SampleRateHz).
		Msg("Recording started")

	return id, nil
}

func (r *Recorder) abortStart(stream capture.Stream, err error) error {
	if stream != nil {
		stream.Close()
	}
	r.mu.Lock()
	r.state = StateIdle
	r.mu.Unlock()

	if !errors.Is(err, capture.ErrDeviceUnavailable) {
		err = fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}
	r.metrics.RecordSessionStartFailed("device_unavailable")
	r.logger.Error().Err(err).Msg("Recording failed to start")
	return err
}

// runTimer ticks until stopTick is closed.
func (r *Recorder) runTimer(sess *session, ticker Ticker, stopTick <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stopTick:
			return
		case <-ticker.C():
			r.tick(sess)
		}
	}
}

// tick advances both counters and starts a split once the chunk is full.
// While a split is in flight the old capture is still live, so ticks keep
// counting into chunkSeconds and split folds them into the flushed segment.
// They cannot start another split.
func (r *Recorder) tick(sess *session) {
	r.mu.Lock()
	if r.session != sess || (r.state != StateCapturing && r.state != StateSplitting) {
		r.mu.Unlock()
		return
	}
	sess.recordingSeconds++
	sess.chunkSeconds++

	if r.state != StateCapturing || r.capture == nil || sess.chunkSeconds < r.cfg.ChunkDurationSeconds {
		r.mu.Unlock()
		return
	}

	r.state = StateSplitting
	old := r.capture
	stream := r.stream
	duration := sess.chunkSeconds
	sess.chunkSeconds = 0
	done := make(chan struct{})
	r.splitDone = done
	r.mu.Unlock()

	go r.split(sess, stream, old, duration, done)
}

// split flushes the finished capture, starts the next one on the same
// stream and dispatches the flushed bytes. Seconds ticked while the flush
// was pending belong to the flushed segment. Audio written after the flush
// is held by the stream for the next capture.
func (r *Recorder) split(sess *session, stream capture.Stream, old capture.Capture, duration int, done chan struct{}) {
	defer close(done)
	start := time.Now()

	data, err := old.Stop(sess.ctx)
	if err != nil {
		sess.logger.Error().Err(err).Msg("Failed to flush capture during split")
	}

	r.mu.Lock()
	duration += sess.chunkSeconds
	sess.chunkSeconds = 0
	next, recErr := stream.Record()
	r.capture = next
	if recErr != nil {
		r.capture = nil
		sess.logger.Error().Err(recErr).Msg("Failed to start next capture")
	}
	if r.state == StateSplitting {
		r.state = StateCapturing
	}
	r.splitDone = nil
	seg, ok := r.prepare(sess, data, duration, false, "split")
	r.mu.Unlock()

	r.metrics.RecordSplit(time.Since(start).Seconds())
	sess.logger.Debug().
		Int("durationSeconds", duration).
		Int("bytes", len(data)).
		Dur("latency", time.Since(start)).
		Msg("Capture rotated")

	if ok {
		r.dispatch(sess, seg)
	}
}

// prepare indexes and registers a flushed segment. Empty flushes are
// dropped without consuming an index. Caller holds r.mu.
func (r *Recorder) prepare(sess *session, data []byte, duration int, final bool, trigger string) (segment.Segment, bool) {
	seg := segment.Segment{
		SessionID:       sess.id,
		Audio:           data,
		DurationSeconds: duration,
		IsFinal:         final,
	}
	if r.stream != nil {
		seg.Format = r.stream.Format()
	}

	if err := seg.Validate(); err != nil {
		r.metrics.RecordSegmentEmpty(trigger)
		sess.logger.Debug().
			Str("trigger", trigger).
			Int("bytes", len(data)).
			Int("durationSeconds", duration).
			Msg("Empty segment discarded")
		return seg, false
	}

	seg.Index = sess.gen.Next()
	sess.board.Dispatch(seg)
	return seg, true
}

// dispatch processes the segment on its own goroutine.
func (r *Recorder) dispatch(sess *session, seg segment.Segment) {
	r.metrics.RecordSegmentDispatched(seg.IsFinal, len(seg.Audio))
	segLogger := logging.WithSegment(sess.id, seg.Index)
	segLogger.Info().
		Int("durationSeconds", seg.DurationSeconds).
		Int("bytes", len(seg.Audio)).
		Bool("isFinal", seg.IsFinal).
		Msg("Segment dispatched")

	go r.process(sess, seg)
}

func (r *Recorder) process(sess *session, seg segment.Segment) {
	start := time.Now()
	result, err := r.invoke(sess.ctx, seg)
	if err != nil {
		err = &SegmentError{Index: seg.Index, Err: err}
	}

	r.mu.Lock()
	outcome, _, rerr := sess.board.Resolve(seg.Index, result, err)
	onOutcome := r.onOutcome
	r.mu.Unlock()

	if rerr != nil {
		sess.logger.Error().Err(rerr).Int("segmentIndex", seg.Index).Msg("Segment outcome rejected")
		return
	}

	r.metrics.RecordSegmentResolved(err != nil, time.Since(start).Seconds())
	segLogger := logging.WithSegment(sess.id, seg.Index)
	if err != nil {
		segLogger.Warn().Err(err).Dur("latency", time.Since(start)).Msg("Segment processing failed")
	} else {
		segLogger.Info().Dur("latency", time.Since(start)).Msg("Segment processed")
	}

	if onOutcome != nil {
		onOutcome(sess.id, outcome)
	}

	r.mu.Lock()
	sess.reported++
	fire := r.shouldNotify(sess, sess.board.Tally())
	var completed, failed []segment.Outcome
	if fire {
		completed, failed = sess.board.Partition()
	}
	recorded := sess.recordingSeconds
	r.mu.Unlock()

	if fire {
		r.notify(sess, recorded, completed, failed)
	}
}

// invoke calls the processor, turning a panic into a segment failure.
func (r *Recorder) invoke(ctx context.Context, seg segment.Segment) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("processor panic: %v", p)
		}
	}()
	return r.processor.Process(ctx, seg)
}

// shouldNotify decides, from the tally, whether the session's completion is
// due, and claims it. Completion waits until every resolved outcome has been
// handed to the outcome callback. Caller holds r.mu.
func (r *Recorder) shouldNotify(sess *session, tally segment.Tally) bool {
	if sess.notified || !segment.Done(tally, sess.stopped) {
		return false
	}
	if sess.reported < tally.Completed+tally.Failed {
		return false
	}
	if tally.Dispatched == 0 && !r.cfg.NotifyOnEmpty {
		return false
	}
	sess.notified = true
	return true
}

func (r *Recorder) notify(sess *session, recordedSeconds int, completed, failed []segment.Outcome) {
	r.mu.Lock()
	cb := r.onComplete
	r.mu.Unlock()

	r.metrics.RecordSessionComplete(recordedSeconds)
	sess.logger.Info().
		Int("completed", len(completed)).
		Int("failed", len(failed)).
		Int("recordingSeconds", recordedSeconds).
		Msg("All segments resolved")

	defer close(sess.done)
	if cb != nil {
		cb(sess.id, completed, failed)
	}
}

// Stop halts the timer, flushes the current capture as the final segment
// and releases the device. Calling Stop while idle or already stopping is a
// no-op. In-flight segments are not cancelled.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateCapturing && r.state != StateSplitting {
		r.mu.Unlock()
		return nil
	}
	sess := r.session
	r.state = StateFinalizing
	ticker, stopTick, tickDone := r.ticker, r.stopTick, r.tickDone
	splitDone := r.splitDone
	r.ticker, r.stopTick, r.tickDone = nil, nil, nil
	r.mu.Unlock()

	close(stopTick)
	ticker.Stop()
	<-tickDone

	if splitDone != nil {
		<-splitDone
	}

	r.mu.Lock()
	current := r.capture
	stream := r.stream
	stopLevel, levelDone := r.stopLevel, r.levelDone
	duration := sess.chunkSeconds
	r.capture = nil
	r.stopLevel, r.levelDone = nil, nil
	r.mu.Unlock()

	r.finalize(sess, stream, current, duration, stopLevel, levelDone)

	r.mu.Lock()
	r.stream = nil
	r.state = StateIdle
	sess.stopped = true
	tally := sess.board.Tally()
	fire := r.shouldNotify(sess, tally)
	var completed, failed []segment.Outcome
	if fire {
		completed, failed = sess.board.Partition()
	}
	silent := !fire && !sess.notified && tally.Dispatched == 0
	if silent {
		sess.notified = true
	}
	recorded := sess.recordingSeconds
	r.mu.Unlock()

	sess.logger.Info().
		Int("recordingSeconds", recorded).
		Int("segments", tally.Dispatched).
		Int("processing", tally.Processing()).
		Msg("Recording stopped")

	switch {
	case fire:
		r.notify(sess, recorded, completed, failed)
	case silent:
		r.metrics.RecordSessionComplete(recorded)
		close(sess.done)
	}
	return nil
}

// finalize flushes the last capture and releases the stream and the level
// monitor whatever happens while dispatching.
func (r *Recorder) finalize(sess *session, stream capture.Stream, current capture.Capture, duration int, stopLevel, levelDone chan struct{}) {
	defer func() {
		if stopLevel != nil {
			close(stopLevel)
			<-levelDone
		}
		if stream != nil {
			if err := stream.Close(); err != nil {
				sess.logger.Warn().Err(err).Msg("Failed to release capture device")
			}
		}
		r.level.Store(0)
	}()

	if current == nil {
		return
	}
	data, err := current.Stop(sess.ctx)
	if err != nil {
		sess.logger.Error().Err(err).Msg("Failed to flush final capture")
		return
	}

	r.mu.Lock()
	seg, ok := r.prepare(sess, data, duration, true, "stop")
	r.mu.Unlock()
	if ok {
		r.dispatch(sess, seg)
	}
}

// monitorLevel samples the stream level on its own cadence so level
// reporting never competes with the timer.
func (r *Recorder) monitorLevel(stream capture.Stream, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(r.cfg.LevelInterval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			lvl := stream.Level()
			r.level.Store(math.Float64bits(lvl))
			r.metrics.RecordAudioLevel(lvl)

			r.mu.Lock()
			cb := r.onLevel
			r.mu.Unlock()
			if cb != nil {
				cb(lvl)
			}
		}
	}
}

// Level returns the most recent audio level reading.
func (r *Recorder) Level() float64 {
	return math.Float64frombits(r.level.Load())
}

// Status returns the observable state.
func (r *Recorder) Status() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		State:                r.state,
		IsRecording:          r.state == StateCapturing || r.state == StateSplitting,
		ChunkDurationSeconds: r.cfg.ChunkDurationSeconds,
		Level:                r.Level(),
	}
	if sess := r.session; sess != nil {
		tally := sess.board.Tally()
		snap.SessionID = sess.id
		snap.RecordingSeconds = sess.recordingSeconds
		snap.ChunkSeconds = sess.chunkSeconds
		snap.SessionActive = !sess.notified
		snap.Processing = tally.Processing()
		snap.Completed = tally.Completed
		snap.Failed = tally.Failed
	}
	return snap
}

// Outcomes returns the current session's segment outcomes ordered by index.
func (r *Recorder) Outcomes() []segment.Outcome {
	r.mu.Lock()
	sess := r.session
	r.mu.Unlock()

	if sess == nil {
		return []segment.Outcome{}
	}
	return sess.board.Outcomes()
}

// Wait blocks until the current session has signalled completion.
func (r *Recorder) Wait(ctx context.Context) error {
	r.mu.Lock()
	sess := r.session
	r.mu.Unlock()

	if sess == nil {
		return ErrNoSession
	}
	select {
	case <-sess.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
