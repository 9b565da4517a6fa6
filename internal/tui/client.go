package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"workshop-recorder/internal/service/recorder"
	"workshop-recorder/internal/service/segment"
)

// Client talks to the recorder control API.
type Client struct {
	http *resty.Client
}

type startResponse struct {
	SessionID string            `json:"sessionId"`
	Status    recorder.Snapshot `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient creates a control API client for baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

// Status fetches the recorder snapshot.
func (c *Client) Status(ctx context.Context) (recorder.Snapshot, error) {
	var snap recorder.Snapshot
	resp, err := c.http.R().SetContext(ctx).SetResult(&snap).SetError(&errorResponse{}).Get("/v1/recording/status")
	if err := check(resp, err); err != nil {
		return recorder.Snapshot{}, err
	}
	return snap, nil
}

// Segments fetches the current session's outcomes.
func (c *Client) Segments(ctx context.Context) ([]segment.Outcome, error) {
	var outcomes []segment.Outcome
	resp, err := c.http.R().SetContext(ctx).SetResult(&outcomes).SetError(&errorResponse{}).Get("/v1/recording/segments")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// Start begins a session and returns its ID.
func (c *Client) Start(ctx context.Context) (string, error) {
	var out startResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).SetError(&errorResponse{}).Post("/v1/recording/start")
	if err := check(resp, err); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// Stop ends the current session.
func (c *Client) Stop(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).SetError(&errorResponse{}).Post("/v1/recording/stop")
	return check(resp, err)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	if e, ok := resp.Error().(*errorResponse); ok && e.Error != "" {
		return fmt.Errorf("%s: %w", resp.Status(), errors.New(e.Error))
	}
	return fmt.Errorf("unexpected status %s", resp.Status())
}
