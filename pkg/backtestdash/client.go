// Package backtestdash is a Go SDK for the backtesting job API.
package backtestdash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"backtestdash/internal/domain"
	"backtestdash/internal/util"
)

// RequestIDHeader carries a per-request UUID for correlating client and
// server logs.
const RequestIDHeader = "X-Request-ID"

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backtest api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backtest api: %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client provides a Go SDK for interacting with the backtest API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *util.RateLimiter
	logger     *slog.Logger
	attempts   int
	retryDelay time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit caps outgoing requests per minute. Zero disables limiting.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) { c.limiter = util.NewRateLimiter(perMinute, 10) }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetries sets how many attempts idempotent reads of large payloads
// (results, chart data) get. Status and list calls are never retried here;
// their callers poll again.
func WithRetries(attempts int, baseDelay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		c.retryDelay = baseDelay
	}
}

// NewClient creates a new API client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		attempts:   3,
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// ---------------------------------------------------------------------------
// Endpoints
// ---------------------------------------------------------------------------

// JobStatus retrieves the status of one job.
// GET /api/v1/jobs/{id}/status
func (c *Client) JobStatus(ctx context.Context, jobID string) (domain.StatusUpdate, error) {
	var u domain.StatusUpdate
	body, err := c.do(ctx, http.MethodGet, jobPath(jobID, "status"), nil)
	if err != nil {
		return u, err
	}
	if err := json.Unmarshal(body, &u); err != nil {
		return u, fmt.Errorf("decode job status: %w", err)
	}
	return u, nil
}

// Job retrieves one job record.
// GET /api/v1/jobs/{id}
func (c *Client) Job(ctx context.Context, jobID string) (domain.Job, error) {
	var j domain.Job
	body, err := c.do(ctx, http.MethodGet, jobPath(jobID, ""), nil)
	if err != nil {
		return j, err
	}
	if err := json.Unmarshal(body, &j); err != nil {
		return j, fmt.Errorf("decode job: %w", err)
	}
	return j, nil
}

// ListJobs returns the raw list payload; its shape varies between backend
// versions and is normalized by the caller.
// GET /api/v1/jobs?limit=N
func (c *Client) ListJobs(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	body, err := c.do(ctx, http.MethodGet, "/api/v1/jobs?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// CancelJob requests cancellation.
// POST /api/v1/jobs/{id}/cancel
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	_, err := c.do(ctx, http.MethodPost, jobPath(jobID, "cancel"), nil)
	return err
}

// DeleteJob removes a job and its results.
// DELETE /api/v1/jobs/{id}
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	_, err := c.do(ctx, http.MethodDelete, jobPath(jobID, ""), nil)
	return err
}

// JobResults retrieves the arbitrary result payload of a finished job.
// GET /api/v1/jobs/{id}/results
func (c *Client) JobResults(ctx context.Context, jobID string) (json.RawMessage, error) {
	var body []byte
	err := c.retry(ctx, func() error {
		var err error
		body, err = c.do(ctx, http.MethodGet, jobPath(jobID, "results"), nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// ChartData retrieves candles, indicators, markers, trades and equity for a
// job's chart.
// GET /api/v1/jobs/{id}/chart-data
func (c *Client) ChartData(ctx context.Context, jobID string) (*domain.ChartData, error) {
	var body []byte
	err := c.retry(ctx, func() error {
		var err error
		body, err = c.do(ctx, http.MethodGet, jobPath(jobID, "chart-data"), nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	var cd domain.ChartData
	if err := json.Unmarshal(body, &cd); err != nil {
		return nil, fmt.Errorf("decode chart data: %w", err)
	}
	return &cd, nil
}

// BacktestRequest submits a new backtest.
type BacktestRequest struct {
	Strategy       string         `json:"strategy"`
	Dataset        string         `json:"dataset"`
	Symbol         string         `json:"symbol,omitempty"`
	StartDate      string         `json:"start_date,omitempty"`
	EndDate        string         `json:"end_date,omitempty"`
	InitialCapital float64        `json:"initial_capital,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
}

// SubmitBacktest creates a backtest job.
// POST /api/v1/backtests
func (c *Client) SubmitBacktest(ctx context.Context, r BacktestRequest) (domain.Job, error) {
	var j domain.Job
	if r.Strategy == "" || r.Dataset == "" {
		return j, errors.New("submit backtest: strategy and dataset are required")
	}
	body, err := c.do(ctx, http.MethodPost, "/api/v1/backtests", r)
	if err != nil {
		return j, err
	}
	if err := json.Unmarshal(body, &j); err != nil {
		return j, fmt.Errorf("decode submitted job: %w", err)
	}
	if j.Status == "" {
		j.Status = domain.JobPending
	}
	return j, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func jobPath(jobID, action string) string {
	p := "/api/v1/jobs/" + url.PathEscape(jobID)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) retry(ctx context.Context, fn func() error) error {
	return util.Retry(ctx, c.attempts, c.retryDelay, func() error {
		err := fn()
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return util.Permanent(err)
		}
		return err
	})
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("api request failed", "method", method, "path", path, "request_id", reqID, "error", err)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// maxErrorRunes caps plain-text error bodies kept in APIError.
const maxErrorRunes = 200

// errorMessage extracts a message from common error body shapes:
// {"detail": "..."}, {"error": "..."}, {"message": "..."} or plain text.
func errorMessage(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err == nil {
		for _, k := range []string{"detail", "error", "message"} {
			if s, ok := m[k].(string); ok && s != "" {
				return s
			}
		}
	}
	s := strings.TrimSpace(string(body))
	if r := []rune(s); len(r) > maxErrorRunes {
		s = string(r[:maxErrorRunes])
	}
	return s
}
