// Package gateway talks to the venue, bank and automation services over their HTTP gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "http://localhost:1317"

	// Quotes are cheap; anything that moves funds shares a tighter budget.
	defaultQueryRatePerSec = 50
	defaultTxRatePerSec    = 10

	maxRetries    = 3
	baseRetryWait = 250 * time.Millisecond
)

// rejection is the body the gateway sends with a 422 when the venue refuses a call.
type rejection struct {
	Error string `json:"error"`
}

// Client is the gateway HTTP client with rate limiting and retries.
type Client struct {
	http         *http.Client
	base         string
	queryLimiter *rate.Limiter
	txLimiter    *rate.Limiter
	retryWait    time.Duration
}

// Option tweaks a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps query and transaction calls per second.
func WithRateLimit(queryPerSec, txPerSec float64) Option {
	return func(c *Client) {
		if queryPerSec > 0 {
			c.queryLimiter = rate.NewLimiter(rate.Limit(queryPerSec), int(math.Max(1, queryPerSec/5)))
		}
		if txPerSec > 0 {
			c.txLimiter = rate.NewLimiter(rate.Limit(txPerSec), int(math.Max(1, txPerSec/5)))
		}
	}
}

// WithRetryWait sets the first backoff step.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) { c.retryWait = d }
}

// NewClient creates a Client for baseURL, falling back to a local gateway when empty.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		http:         &http.Client{Timeout: 15 * time.Second},
		base:         baseURL,
		queryLimiter: rate.NewLimiter(defaultQueryRatePerSec, 10),
		txLimiter:    rate.NewLimiter(defaultTxRatePerSec, 2),
		retryWait:    baseRetryWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get does a rate limited GET with retries.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doWithRetry(ctx, c.queryLimiter, true, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// post does a rate limited JSON POST. Posts move funds, so only a 429 is retried.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.doWithRetry(ctx, c.txLimiter, false, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry runs fn with exponential backoff. Transport errors and 5xx are only
// retried when idempotent. A 422 is a venue rejection and comes back as a classified
// *domain.VenueError.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, idempotent bool, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if !idempotent || attempt == maxRetries || errors.Is(err, context.Canceled) {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("gateway: rate limited", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if !idempotent {
				return fmt.Errorf("server error %d", resp.StatusCode)
			}
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusUnprocessableEntity {
			var rej rejection
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err := json.Unmarshal(body, &rej); err != nil || rej.Error == "" {
				rej.Error = string(body)
			}
			return ClassifyVenueMessage(rej.Error)
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep waits with exponential backoff, honouring the context.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
