// Package client talks to the clipgif HTTP API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iconidentify/clipgif/internal/api/handler"
	"github.com/iconidentify/clipgif/internal/encoder"
)

// Client wraps clipgif API access.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server the client points at.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Queue fetches the queue summary and tracked jobs.
func (c *Client) Queue(ctx context.Context) (*handler.QueueResponse, error) {
	var out handler.QueueResponse
	if err := c.getJSON(ctx, "/api/v1/queue", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Jobs lists jobs, optionally restricted to one status.
func (c *Client) Jobs(ctx context.Context, status string) ([]handler.JobView, error) {
	var q url.Values
	if status != "" {
		q = url.Values{"status": {status}}
	}
	var out struct {
		Jobs []handler.JobView `json:"jobs"`
	}
	if err := c.getJSON(ctx, "/api/v1/jobs", q, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Encoders lists the registered encoder backends.
func (c *Client) Encoders(ctx context.Context) ([]encoder.Info, error) {
	var out struct {
		Encoders []encoder.Info `json:"encoders"`
	}
	if err := c.getJSON(ctx, "/api/v1/encoders", nil, &out); err != nil {
		return nil, err
	}
	return out.Encoders, nil
}

// Events fetches the most recent hub messages.
func (c *Client) Events(ctx context.Context, limit int) (*handler.MessageListResponse, error) {
	var out handler.MessageListResponse
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.getJSON(ctx, "/api/v1/events", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel cancels a job.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/api/v1/jobs/"+url.PathEscape(jobID), nil)
	return err
}

// Ready reports whether the server passes its readiness check.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/ready", nil)
	return err
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	raw, err := c.doRequest(ctx, http.MethodGet, path, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, q url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "clipgif-tui")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("clipgif api (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("clipgif api (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}
