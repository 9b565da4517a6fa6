// Package models defines the data structures for segment results and events.
package models

import (
	"time"

	"workshop-recorder/internal/service/segment"
)

// Event types published for segment outcomes and session completion.
const (
	EventSegmentCompleted = "segment.completed"
	EventSegmentFailed    = "segment.failed"
	EventSessionCompleted = "session.completed"
)

// Transcript is the text recognised for one segment.
type Transcript struct {
	Text         string  `json:"text"`
	Confidence   float64 `json:"confidence" validate:"gte=0,lte=1"`
	LanguageCode string  `json:"languageCode,omitempty"`
	Provider     string  `json:"provider" validate:"required"`
}

// Upload describes a segment stored by the analysis backend.
type Upload struct {
	ChunkID        string `json:"chunkId" validate:"required"`
	Analyzed       bool   `json:"analyzed"`
	AnalysisStatus string `json:"analysisStatus,omitempty"`
}

// SegmentResult is the processor pipeline's result for a segment.
type SegmentResult struct {
	SegmentID  string      `json:"segmentId" validate:"required"`
	Index      int         `json:"index" validate:"gte=0"`
	WAVBytes   int         `json:"wavBytes" validate:"gt=0"`
	Transcript *Transcript `json:"transcript,omitempty"`
	Upload     *Upload     `json:"upload,omitempty"`
}

// SegmentEvent is published when a segment reaches a terminal outcome.
type SegmentEvent struct {
	EventType       string `json:"eventType" validate:"required,oneof=segment.completed segment.failed"`
	SessionID       string `json:"sessionId" validate:"required"`
	SegmentID       string `json:"segmentId" validate:"required"`
	Index           int    `json:"index" validate:"gte=0"`
	Timestamp       int64  `json:"timestamp" validate:"required"`
	DurationSeconds int    `json:"durationSeconds" validate:"gt=0"`
	IsFinal         bool   `json:"isFinal"`
	LatencyMs       int64  `json:"latencyMs" validate:"gte=0"`
	Error           string `json:"error,omitempty" validate:"required_if=EventType segment.failed"`
	Result          any    `json:"result,omitempty"`
}

// SessionEvent is published once per session after every segment resolved.
type SessionEvent struct {
	EventType        string `json:"eventType" validate:"required,eq=session.completed"`
	SessionID        string `json:"sessionId" validate:"required"`
	Timestamp        int64  `json:"timestamp" validate:"required"`
	RecordingSeconds int    `json:"recordingSeconds" validate:"gte=0"`
	Completed        []int  `json:"completed"`
	Failed           []int  `json:"failed"`
}

// NewSegmentEvent builds the event for a resolved outcome.
func NewSegmentEvent(sessionID string, o segment.Outcome) SegmentEvent {
	ev := SegmentEvent{
		EventType:       EventSegmentCompleted,
		SessionID:       sessionID,
		SegmentID:       o.SegmentID,
		Index:           o.Index,
		Timestamp:       time.Now().UnixMilli(),
		DurationSeconds: o.DurationSeconds,
		IsFinal:         o.IsFinal,
		LatencyMs:       o.Latency.Milliseconds(),
		Result:          o.Result,
	}
	if o.State == segment.StateFailed {
		ev.EventType = EventSegmentFailed
		ev.Error = o.Error
		ev.Result = nil
	}
	return ev
}

// NewSessionEvent builds the completion event from the partitioned outcomes.
func NewSessionEvent(sessionID string, recordingSeconds int, completed, failed []segment.Outcome) SessionEvent {
	return SessionEvent{
		EventType:        EventSessionCompleted,
		SessionID:        sessionID,
		Timestamp:        time.Now().UnixMilli(),
		RecordingSeconds: recordingSeconds,
		Completed:        outcomeIndices(completed),
		Failed:           outcomeIndices(failed),
	}
}

func outcomeIndices(outcomes []segment.Outcome) []int {
	out := make([]int, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, o.Index)
	}
	return out
}
