// Package httpx provides the shared resilient HTTP helper used for all
// outbound calls: per-request timeout, a small bounded retry count, and
// exponential backoff between attempts.
package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 500 * time.Millisecond
	maxResponseBytes   = 4 << 20 // 4 MB
)

// Client wraps http.Client with retry semantics shared by the LLM client
// and the notifier.
type Client struct {
	http        *http.Client
	maxAttempts int
	baseBackoff time.Duration
	logger      *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithMaxAttempts overrides the retry budget (total attempts, not retries).
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBaseBackoff overrides the first backoff interval. Each subsequent
// attempt doubles it.
func WithBaseBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseBackoff = d
		}
	}
}

// New creates a Client with the given per-request timeout.
func New(timeout time.Duration, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		http:        &http.Client{Timeout: timeout},
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostJSON sends body to url with the given headers and returns the
// response body. Transport errors, HTTP 429 and 5xx responses are retried
// with exponential backoff until the attempt budget runs out.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error) {
	return c.request(ctx, http.MethodPost, url, body, headers)
}

// Get fetches url with the same retry semantics as PostJSON.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return c.request(ctx, http.MethodGet, url, nil, headers)
}

func (c *Client) request(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.baseBackoff << (attempt - 2)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		data, retryable, err := c.do(ctx, method, url, body, headers)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		c.logger.Warn("request failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, headers map[string]string) (data []byte, retryable bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, false, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Context cancellation is not worth retrying.
		if ctx.Err() != nil {
			return nil, false, err
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		return data, false, nil
	}
	return nil, isRetryableStatus(resp.StatusCode),
		fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(data), 200))
}

func isRetryableStatus(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
