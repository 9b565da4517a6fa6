// Package google provides a Google Cloud Speech-to-Text transcriber.
package google

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"workshop-recorder/internal/models"
	"workshop-recorder/internal/observability/metrics"
	"workshop-recorder/internal/service/segment"
	"workshop-recorder/internal/service/stt"
)

// Provider is the provider label used in transcripts and metrics.
const Provider = "google"

// syncLimit is the longest audio the synchronous Recognize call accepts.
const syncLimit = 60 * time.Second

// Config holds Google STT configuration.
type Config struct {
	LanguageCode       string
	SampleRateHz       int
	AudioEncoding      string
	Model              string
	EnablePunctuation  bool
	LongRunningTimeout time.Duration
}

// DefaultConfig returns the default Google STT configuration.
func DefaultConfig() Config {
	return Config{
		LanguageCode:       "en-US",
		SampleRateHz:       16000,
		AudioEncoding:      "LINEAR16",
		EnablePunctuation:  true,
		LongRunningTimeout: 10 * time.Minute,
	}
}

// parseAudioEncoding converts a string encoding name to the Google Speech enum.
// Unknown names fall back to LINEAR16.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// Transcriber implements stt.Transcriber using Google Cloud Speech-to-Text.
type Transcriber struct {
	client  *speech.Client
	cfg     Config
	metrics *metrics.Metrics
	closed  atomic.Bool
}

// New creates a Google transcriber.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Transcriber, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &Transcriber{client: c, cfg: cfg, metrics: metrics.DefaultMetrics}, nil
}

// Transcribe sends the segment's PCM to Google. Segments longer than a minute
// go through LongRunningRecognize.
func (t *Transcriber) Transcribe(ctx context.Context, seg segment.Segment) (*models.Transcript, error) {
	if t.closed.Load() {
		return nil, stt.ErrClosed
	}
	if len(seg.Audio) == 0 {
		return nil, stt.ErrEmptyAudio
	}

	start := time.Now()
	results, err := t.recognize(ctx, seg)
	t.metrics.RecordSTT(Provider, err, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return joinResults(results, t.cfg.LanguageCode), nil
}

func (t *Transcriber) recognize(ctx context.Context, seg segment.Segment) ([]*speechpb.SpeechRecognitionResult, error) {
	cfg := recognitionConfig(t.cfg, seg)
	audio := &speechpb.RecognitionAudio{
		AudioSource: &speechpb.RecognitionAudio_Content{Content: seg.Audio},
	}

	if time.Duration(seg.DurationSeconds)*time.Second <= syncLimit {
		resp, err := t.client.Recognize(ctx, &speechpb.RecognizeRequest{Config: cfg, Audio: audio})
		if err != nil {
			return nil, fmt.Errorf("recognize segment %d: %w", seg.Index, err)
		}
		return resp.GetResults(), nil
	}

	if t.cfg.LongRunningTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.LongRunningTimeout)
		defer cancel()
	}
	op, err := t.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{Config: cfg, Audio: audio})
	if err != nil {
		return nil, fmt.Errorf("start long running recognize for segment %d: %w", seg.Index, err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait long running recognize for segment %d: %w", seg.Index, err)
	}
	return resp.GetResults(), nil
}

// recognitionConfig prefers the segment's own format over the configured rate.
func recognitionConfig(cfg Config, seg segment.Segment) *speechpb.RecognitionConfig {
	rate := cfg.SampleRateHz
	if seg.Format.SampleRateHz > 0 {
		rate = seg.Format.SampleRateHz
	}
	channels := seg.Format.Channels
	if channels <= 0 {
		channels = 1
	}
	return &speechpb.RecognitionConfig{
		Encoding:                   parseAudioEncoding(cfg.AudioEncoding),
		SampleRateHertz:            int32(rate),
		AudioChannelCount:          int32(channels),
		LanguageCode:               cfg.LanguageCode,
		Model:                      cfg.Model,
		EnableAutomaticPunctuation: cfg.EnablePunctuation,
	}
}

// joinResults concatenates the top alternative of every result. Confidence
// is the mean over results that reported one.
func joinResults(results []*speechpb.SpeechRecognitionResult, languageCode string) *models.Transcript {
	var (
		parts []string
		sum   float64
		n     int
	)
	for _, r := range results {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		alt := alts[0]
		if text := strings.TrimSpace(alt.GetTranscript()); text != "" {
			parts = append(parts, text)
		}
		if alt.GetConfidence() > 0 {
			sum += float64(alt.GetConfidence())
			n++
		}
		if lc := r.GetLanguageCode(); lc != "" {
			languageCode = lc
		}
	}

	tr := &models.Transcript{
		Text:         strings.Join(parts, " "),
		LanguageCode: languageCode,
		Provider:     Provider,
	}
	if n > 0 {
		tr.Confidence = sum / float64(n)
	}
	return tr
}

// Close closes the underlying client.
func (t *Transcriber) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.client.Close()
}
