package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/gratbox/graph-csv-sync/internal/metrics"
)

const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 2 * time.Second
	DefaultMaxDelay   = 60 * time.Second
)

type Httper interface {
	Do(req *http.Request) (*http.Response, error)
}

// Caller issues a single logical request with bounded exponential backoff on
// transient failures. Fatal failures propagate immediately; exhausting the
// retry budget surfaces the last transient failure.
type Caller struct {
	http       Httper
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	metrics    *metrics.Metrics

	// sleep is swapped out under test to capture delays
	sleep func(ctx context.Context, d time.Duration) error
}

type CallerOpts struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Limiter    *rate.Limiter
}

func NewCaller(httper Httper, opts CallerOpts, metrics *metrics.Metrics) *Caller {
	if httper == nil {
		httper = &http.Client{Timeout: 2 * time.Minute}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	return &Caller{
		http:       httper,
		limiter:    opts.Limiter,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
		metrics:    metrics,
		sleep:      sleepCtx,
	}
}

// Call performs method url with the given body, retrying transient failures.
// The body is kept so each attempt sends a fresh request. A non-2xx response
// is drained, closed and converted to an APIError; the raw response is only
// returned on success and the caller owns closing it.
func (c *Caller) Call(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter wait: %w", err)
			}
		}

		resp, err := c.attempt(ctx, method, url, body, header)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return nil, err
		}
		if attempt == c.maxRetries+1 {
			break
		}
		c.metrics.IncGraphRetry(method)

		delay := c.delay(attempt)
		slog.Warn("fail graph request, retrying", "method", method, "attempt", attempt, "max", c.maxRetries, "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("backoff wait: %w", err)
		}
	}

	return nil, fmt.Errorf("retries exhausted after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Caller) attempt(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &APIError{Message: err.Error()}
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.IncGraphRequest(method, 0)
		return nil, &APIError{Message: err.Error(), Retryable: matchesTransientPattern(err)}
	}

	c.metrics.IncGraphRequest(method, resp.StatusCode)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	apiErr := decodeError(resp)
	resp.Body.Close()
	return nil, apiErr
}

// delay for the n-th failed attempt, 1-based: base*2^(n-1) capped at max.
func (c *Caller) delay(attempt int) time.Duration {
	d := c.baseDelay * time.Duration(1<<uint(attempt-1))
	if d > c.maxDelay || d <= 0 {
		d = c.maxDelay
	}
	return d
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Retryable:  retryableStatus(resp.StatusCode),
	}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil && json.Unmarshal(raw, &body) == nil && body.Error.Code != "" {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
