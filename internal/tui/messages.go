package tui

import (
	"workshop-recorder/internal/service/recorder"
	"workshop-recorder/internal/service/segment"
)

// StatusMsg carries a status poll result.
type StatusMsg struct {
	Snapshot recorder.Snapshot
	Segments []segment.Outcome
}

// StartedMsg is sent when a session started.
type StartedMsg struct {
	SessionID string
}

// StoppedMsg is sent when the session stopped.
type StoppedMsg struct{}

// ErrMsg reports a failed API call. Poll marks a failed status poll.
type ErrMsg struct {
	Err  error
	Poll bool
}

// PollMsg triggers the next status poll.
type PollMsg struct{}

// ClearErrorMsg clears a transient error.
type ClearErrorMsg struct{}
