package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
)

// maxRetryAfter caps how long an upstream may ask us to wait between attempts.
const maxRetryAfter = 5 * time.Second

// HTTPClient sends requests through a Breaker and retries transport errors,
// 429 and 5xx responses. Any other status is handed back on the first attempt.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	Target      string
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	// Timeout bounds each attempt; it falls back to Client.Timeout.
	Timeout time.Duration
}

// StatusError carries the last retryable status once attempts run out.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return "resilience: upstream responded " + e.Status }

// Do sends req, replaying its body on each attempt. ErrOpenCircuit is returned
// as soon as the breaker refuses an attempt.
func (c HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	body, err := drain(req)
	if err != nil {
		return nil, err
	}
	attempts := max(c.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; ; attempt++ {
		if c.Breaker != nil && !c.Breaker.Allow(ctx) {
			if lastErr != nil {
				return nil, errors.Join(ErrOpenCircuit, lastErr)
			}
			return nil, ErrOpenCircuit
		}

		resp, err := c.attempt(ctx, req, body)
		var wait time.Duration
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			lastErr = &StatusError{Code: resp.StatusCode, Status: resp.Status}
			wait = retryAfter(resp.Header.Get("Retry-After"))
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
			_ = resp.Body.Close()
		default:
			c.report(ctx, true)
			return resp, nil
		}
		c.report(ctx, false)

		if attempt >= attempts {
			return nil, lastErr
		}
		if wait <= 0 {
			wait = Backoff(c.BaseBackoff, attempt, c.Jitter)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (c HTTPClient) report(ctx context.Context, ok bool) {
	if c.Breaker != nil {
		c.Breaker.Report(ctx, ok)
	}
}

func (c HTTPClient) attempt(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = c.Client.Timeout
	}
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}

	out := req.Clone(callCtx)
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
		out.ContentLength = int64(len(body))
	}
	resp, err := c.Client.Do(out)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose keeps the attempt context alive until the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

func drain(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer func() { _ = req.Body.Close() }()
	return io.ReadAll(req.Body)
}

// retryAfter understands the delay-seconds form only.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}
