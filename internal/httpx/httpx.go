// Package httpx is the shared HTTP layer for provider adapters. It owns
// request construction, bounded retries with jittered backoff, and the
// mapping from HTTP failures to the provider error taxonomy.
package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/provider"
)

//go:generate mockgen -destination=mocks/doer.go -package=mocks github.com/rickgao/quote-gateway/internal/httpx Doer

// Doer abstracts the HTTP transport so tests can mock it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client performs JSON GETs against one provider's base URL.
type Client struct {
	source  model.Source
	baseURL string
	doer    Doer
	headers map[string]string
	logger  *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithDoer replaces the underlying transport.
func WithDoer(d Doer) Option {
	return func(c *Client) { c.doer = d }
}

// WithHeader sets a header on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for one provider.
func New(source model.Source, baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		source:  source,
		baseURL: baseURL,
		doer: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   3 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost: 16,
				ForceAttemptHTTP2:   true,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		headers:      map[string]string{"Accept": "application/json"},
		logger:       slog.Default(),
		maxRetries:   2,
		retryBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON fetches baseURL+path with query and decodes the body into out.
// Failures come back as taxonomy errors: 404 → NotFound, 429 → RateLimited
// (with the Retry-After hint when present), network/timeout/5xx → Transient,
// undecodable body → Validation. Only transient failures are retried, at
// most maxRetries times with jittered exponential backoff.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.getWithRetry(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &provider.ValidationError{
			Source: c.source,
			Field:  "(body)",
			Reason: fmt.Sprintf("decode %s: %v", path, err),
		}
	}
	return nil
}

func (c *Client) getWithRetry(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Jitter: backoff * (0.5 to 1.5).
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			c.logger.Debug("retrying request",
				"source", c.source,
				"path", path,
				"attempt", attempt,
				"backoff", jitter,
			)
			select {
			case <-ctx.Done():
				return nil, &provider.TransientError{Source: c.source, Op: "GET " + path, Err: ctx.Err()}
			case <-time.After(jitter):
			}
			backoff *= 2
		}

		body, err := c.get(ctx, path, query)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !provider.IsTransient(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, &provider.TransientError{Source: c.source, Op: "GET " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.TransientError{Source: c.source, Op: "read " + path, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &provider.NotFoundError{Source: c.source}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &provider.RateLimitedError{
			Source:     c.source,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return nil, &provider.TransientError{
			Source: c.source,
			Op:     "GET " + path,
			Err:    fmt.Errorf("upstream status %d", resp.StatusCode),
		}
	case resp.StatusCode >= 400:
		return nil, &provider.ValidationError{
			Source: c.source,
			Field:  "(request)",
			Reason: fmt.Sprintf("upstream rejected %s with status %d", path, resp.StatusCode),
		}
	}

	return body, nil
}

// parseRetryAfter handles the delta-seconds form of the header. The HTTP-date
// form is rare on the APIs we call and is treated as no hint.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
