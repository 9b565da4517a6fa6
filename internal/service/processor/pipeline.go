// Package processor builds the segment processor handed to the recorder:
// each finished segment is packaged as WAV, uploaded to the analysis backend
// and transcribed.
package processor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"workshop-recorder/internal/models"
	"workshop-recorder/internal/observability/logging"
	"workshop-recorder/internal/service/capture"
	"workshop-recorder/internal/service/recorder"
	"workshop-recorder/internal/service/segment"
	"workshop-recorder/internal/service/stt"
)

// Uploader stores a segment with the analysis backend.
type Uploader interface {
	Upload(ctx context.Context, seg segment.Segment, wav []byte) (*models.Upload, error)
}

// Pipeline implements recorder.Processor. Either stage may be nil.
type Pipeline struct {
	transcriber stt.Transcriber
	uploader    Uploader
}

// NewPipeline creates a pipeline.
func NewPipeline(transcriber stt.Transcriber, uploader Uploader) *Pipeline {
	return &Pipeline{transcriber: transcriber, uploader: uploader}
}

// Process uploads and transcribes the segment concurrently. Any stage error
// fails the segment.
func (p *Pipeline) Process(ctx context.Context, seg segment.Segment) (any, error) {
	format := seg.Format
	if format.SampleRateHz == 0 {
		format = capture.DefaultFormat()
	}
	wav := capture.EncodeWAV(seg.Audio, format)

	res := &models.SegmentResult{
		SegmentID: seg.ID(),
		Index:     seg.Index,
		WAVBytes:  len(wav),
	}

	g, gctx := errgroup.WithContext(ctx)
	if p.uploader != nil {
		g.Go(func() error {
			up, err := p.uploader.Upload(gctx, seg, wav)
			if err != nil {
				return err
			}
			res.Upload = up
			return nil
		})
	}
	if p.transcriber != nil {
		g.Go(func() error {
			tr, err := p.transcriber.Transcribe(gctx, seg)
			if err != nil {
				return fmt.Errorf("transcribe: %w", err)
			}
			res.Transcript = tr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	segLogger := logging.WithSegment(seg.SessionID, seg.Index)
	segLogger.Debug().
		Int("wavBytes", res.WAVBytes).
		Bool("uploaded", res.Upload != nil).
		Bool("transcribed", res.Transcript != nil).
		Msg("Segment pipeline finished")
	return res, nil
}

// WithTimeout bounds every call to p.
func WithTimeout(p recorder.Processor, d time.Duration) recorder.Processor {
	if d <= 0 {
		return p
	}
	return recorder.ProcessorFunc(func(ctx context.Context, seg segment.Segment) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return p.Process(ctx, seg)
	})
}

// Limit allows at most n concurrent calls to p. n <= 0 means unbounded.
func Limit(p recorder.Processor, n int64) recorder.Processor {
	if n <= 0 {
		return p
	}
	sem := semaphore.NewWeighted(n)
	return recorder.ProcessorFunc(func(ctx context.Context, seg segment.Segment) (any, error) {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer sem.Release(1)
		return p.Process(ctx, seg)
	})
}
