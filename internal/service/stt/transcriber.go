// Package stt defines the interface for Speech-to-Text transcribers.
package stt

import (
	"context"
	"errors"

	"workshop-recorder/internal/models"
	"workshop-recorder/internal/service/segment"
)

// Errors returned by transcribers.
var (
	ErrEmptyAudio = errors.New("segment has no audio")
	ErrClosed     = errors.New("transcriber is closed")
)

// Transcriber defines the interface for STT providers (Google, mock, etc.).
type Transcriber interface {
	// Transcribe recognises the speech in one finished segment.
	Transcribe(ctx context.Context, seg segment.Segment) (*models.Transcript, error)

	// Close releases provider resources.
	Close() error
}
