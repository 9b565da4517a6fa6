// Package upload sends finished segments to the analysis backend.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"workshop-recorder/internal/models"
	"workshop-recorder/internal/observability/logging"
	"workshop-recorder/internal/observability/metrics"
	"workshop-recorder/internal/service/segment"
)

// ErrRejected is returned when the backend answers with a non-2xx status.
var ErrRejected = errors.New("backend rejected request")

// Config holds backend client configuration.
type Config struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
	Analyze  bool
}

// DefaultConfig returns the default backend configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8000",
		Timeout: 60 * time.Second,
		Analyze: true,
	}
}

// ChunkResponse is the backend's answer to a chunk upload.
type ChunkResponse struct {
	ChunkID string `json:"chunkId"`
	Status  string `json:"status"`
}

// AnalyzeResponse is the backend's answer to an analysis trigger.
type AnalyzeResponse struct {
	Status string `json:"status"`
}

type apiError struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// Client uploads segments and triggers their analysis.
type Client struct {
	http    *resty.Client
	cfg     Config
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a backend client.
func New(cfg Config) *Client {
	h := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIToken != "" {
		h.SetAuthToken(cfg.APIToken)
	}

	return &Client{
		http:    h,
		cfg:     cfg,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("upload"),
	}
}

// Upload stores the segment's WAV and, when enabled, requests its analysis.
func (c *Client) Upload(ctx context.Context, seg segment.Segment, wav []byte) (*models.Upload, error) {
	chunk, err := c.UploadChunk(ctx, seg, wav)
	if err != nil {
		return nil, err
	}

	up := &models.Upload{ChunkID: chunk.ChunkID}
	if !c.cfg.Analyze {
		return up, nil
	}

	res, err := c.Analyze(ctx, seg.SessionID, chunk.ChunkID)
	if err != nil {
		return nil, err
	}
	up.Analyzed = true
	up.AnalysisStatus = res.Status
	return up, nil
}

// UploadChunk posts the WAV as multipart form data.
func (c *Client) UploadChunk(ctx context.Context, seg segment.Segment, wav []byte) (*ChunkResponse, error) {
	start := time.Now()
	var out ChunkResponse
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("sessionId", seg.SessionID).
		SetFileReader("audio", seg.ID()+".wav", bytes.NewReader(wav)).
		SetFormData(map[string]string{
			"segmentId":       seg.ID(),
			"chunkIndex":      strconv.Itoa(seg.Index),
			"durationSeconds": strconv.Itoa(seg.DurationSeconds),
			"isFinal":         strconv.FormatBool(seg.IsFinal),
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/sessions/{sessionId}/chunks")

	err = checkResponse(resp, err, &apiErr)
	if err == nil && out.ChunkID == "" {
		out.ChunkID = seg.ID()
	}
	c.metrics.RecordUpload("chunk", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("upload segment %d: %w", seg.Index, err)
	}

	c.logger.Debug().
		Str("sessionId", seg.SessionID).
		Str("chunkId", out.ChunkID).
		Int("bytes", len(wav)).
		Dur("latency", time.Since(start)).
		Msg("Segment uploaded")
	return &out, nil
}

// Analyze asks the backend to analyze a stored chunk.
func (c *Client) Analyze(ctx context.Context, sessionID, chunkID string) (*AnalyzeResponse, error) {
	start := time.Now()
	var out AnalyzeResponse
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"sessionId": sessionID, "chunkId": chunkID}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/sessions/{sessionId}/chunks/{chunkId}/analyze")

	err = checkResponse(resp, err, &apiErr)
	c.metrics.RecordUpload("analyze", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("analyze chunk %s: %w", chunkID, err)
	}
	return &out, nil
}

func checkResponse(resp *resty.Response, err error, apiErr *apiError) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	msg := apiErr.Error
	if apiErr.Detail != "" {
		msg = apiErr.Detail
	}
	if msg == "" {
		msg = resp.Status()
	}
	return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode(), msg)
}
