// Package mock provides a mock STT transcriber for running without cloud
// credentials. It returns canned workshop phrases keyed by segment index.
package mock

import (
	"context"
	"sync/atomic"
	"time"

	"workshop-recorder/internal/models"
	"workshop-recorder/internal/service/segment"
	"workshop-recorder/internal/service/stt"
)

// Provider is the provider label used in transcripts.
const Provider = "mock"

// Phrase is a canned transcript.
type Phrase struct {
	Text       string
	Confidence float64
}

// DefaultPhrases provides sample workshop speech.
var DefaultPhrases = []Phrase{
	{Text: "Welcome everyone, let's start by going around the room", Confidence: 0.94},
	{Text: "The main goal for today is to agree on the roadmap", Confidence: 0.91},
	{Text: "Can someone put that on the whiteboard", Confidence: 0.97},
	{Text: "Let's take a ten minute break and come back to the open questions", Confidence: 0.89},
	{Text: "Thanks everyone, I'll send the notes after the session", Confidence: 0.98},
}

// Transcriber implements stt.Transcriber with canned responses.
type Transcriber struct {
	phrases []Phrase
	delay   time.Duration
	calls   atomic.Int64
	closed  atomic.Bool
}

// New creates a mock transcriber with the default phrases and a short
// simulated recognition delay.
func New() *Transcriber {
	return NewWithPhrases(DefaultPhrases, 50*time.Millisecond)
}

// NewWithPhrases creates a mock transcriber cycling through phrases.
func NewWithPhrases(phrases []Phrase, delay time.Duration) *Transcriber {
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	return &Transcriber{phrases: phrases, delay: delay}
}

// Transcribe returns the phrase for the segment's index after the delay.
func (t *Transcriber) Transcribe(ctx context.Context, seg segment.Segment) (*models.Transcript, error) {
	if t.closed.Load() {
		return nil, stt.ErrClosed
	}
	if len(seg.Audio) == 0 {
		return nil, stt.ErrEmptyAudio
	}
	t.calls.Add(1)

	if t.delay > 0 {
		timer := time.NewTimer(t.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	p := t.phrases[seg.Index%len(t.phrases)]
	return &models.Transcript{
		Text:         p.Text,
		Confidence:   p.Confidence,
		LanguageCode: "en-US",
		Provider:     Provider,
	}, nil
}

// Calls returns how many segments were transcribed.
func (t *Transcriber) Calls() int {
	return int(t.calls.Load())
}

// Close marks the transcriber closed.
func (t *Transcriber) Close() error {
	t.closed.Store(true)
	return nil
}
