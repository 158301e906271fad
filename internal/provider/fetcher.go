package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/waifeed/internal/domain"
	"github.com/timmy/waifeed/internal/logger"
)

const (
	defaultFetchTimeout = 10 * time.Second
	retryWait           = 250 * time.Millisecond
)

// FetcherConfig holds configuration for the batch fetcher.
type FetcherConfig struct {
	Timeout   time.Duration // per attempt
	Retries   int           // extra attempts for GET requests only
	UserAgent string
}

// Fetcher executes provider requests and normalizes the results.
type Fetcher struct {
	client  *resty.Client
	timeout time.Duration
	retries int
}

// NewFetcher creates a new Fetcher.
// Parameters:
//   - cfg: fetcher configuration; nil uses defaults.
//
// Returns:
//   - *Fetcher: initialized fetcher.
func NewFetcher(cfg *FetcherConfig) *Fetcher {
	if cfg == nil {
		cfg = &FetcherConfig{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}

	client := resty.New()
	client.SetHeader("Accept", "application/json")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	client.SetTimeout(timeout)

	return &Fetcher{client: client, timeout: timeout, retries: retries}
}

// Fetch runs req and parses the body with the adapter.
// Every failure is returned as *domain.FetchError; a 2xx response with zero
// images returns an empty slice and no error.
func (f *Fetcher) Fetch(ctx context.Context, a Adapter, req *Request) ([]string, error) {
	// Only replayable requests are retried.
	attempts := 1
	if req.Method == http.MethodGet {
		attempts += f.retries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, lastErr
			case <-time.After(retryWait):
			}
			logger.CtxDebug(ctx, "Retrying fetch: attempt=%d, url=%s", attempt+1, req.URL)
		}

		urls, retryable, err := f.do(ctx, a, req)
		if err == nil {
			return urls, nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (f *Fetcher) do(ctx context.Context, a Adapter, req *Request) ([]string, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	fail := func(status int, err error) *domain.FetchError {
		return &domain.FetchError{Provider: a.Provider(), URL: req.URL, StatusCode: status, Err: err}
	}

	r := f.client.R().SetContext(reqCtx)
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}

	start := time.Now()
	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, true, fail(0, fmt.Errorf("timed out after %s: %w", f.timeout, context.DeadlineExceeded))
		}
		return nil, true, fail(0, err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		retryable := resp.StatusCode() >= 500 || resp.StatusCode() == http.StatusTooManyRequests
		return nil, retryable, fail(resp.StatusCode(), fmt.Errorf("unexpected status: %s", truncate(resp.String(), 200)))
	}

	urls, err := a.ParseResponse(resp.Body())
	if err != nil {
		return nil, false, fail(resp.StatusCode(), fmt.Errorf("malformed response: %w", err))
	}

	logger.With(logger.Fields{logger.FieldProvider: string(a.Provider())}).
		WithCount(len(urls)).
		WithDuration(time.Since(start).Milliseconds()).
		Debug(ctx, "Batch fetched: method=%s, url=%s", req.Method, req.URL)

	return urls, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
