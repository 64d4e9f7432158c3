// Package httpclient provides the outbound HTTP client shared by the
// dependency loader and the package-search and publish collaborators.
//
// Built on go-resty/resty over a hashicorp/go-retryablehttp transport:
//   - Retries with exponential backoff (disabled when Retries is 0)
//   - One circuit breaker per remote host
//   - Optional client-side rate limiting
//   - Context-based cancellation
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/jsbench/internal/infrastructure/resilience"
)

// Options configures a Client
type Options struct {
	Timeout   time.Duration
	Retries   int
	MinWait   time.Duration
	MaxWait   time.Duration
	UserAgent string
	// RateLimit is requests per second across all hosts; 0 means unlimited
	RateLimit float64
	Breaker   resilience.Settings
}

// DefaultOptions returns settings suited to fetching dependencies from a CDN
func DefaultOptions() Options {
	return Options{
		Timeout:   30 * time.Second,
		Retries:   2,
		MinWait:   200 * time.Millisecond,
		MaxWait:   2 * time.Second,
		UserAgent: "jsbench/1.0",
		Breaker: resilience.Settings{
			Threshold: 5,
			Cooldown:  30 * time.Second,
		},
	}
}

// Client wraps resty with per-host circuit breakers and rate limiting
type Client struct {
	Resty    *resty.Client
	Limiter  *rate.Limiter
	Breakers *resilience.Group
	Mu       sync.RWMutex
}

// New creates a client from options
func New(opts Options) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.Retries
	retryClient.RetryWaitMin = opts.MinWait
	retryClient.RetryWaitMax = opts.MaxWait
	retryClient.Logger = nil
	// Hand the final response back to resty instead of an opaque "giving up" error.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient())
	restyClient.SetTimeout(opts.Timeout)
	if opts.UserAgent != "" {
		restyClient.SetHeader("User-Agent", opts.UserAgent)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	breaker := opts.Breaker
	if breaker.IsFailure == nil {
		breaker.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}

	return &Client{
		Resty:    restyClient,
		Limiter:  limiter,
		Breakers: resilience.NewGroup(breaker),
	}
}

// SetHeader adds a default header
func (c *Client) SetHeader(key, value string) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetHeader(key, value)
}

// StatusError reports a non-2xx response
type StatusError struct {
	Method string
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Status)
}

// Do runs a request built by build against rawURL's host, guarded by that
// host's breaker. Responses with status >= 500 count as breaker failures;
// other non-2xx statuses are returned as *StatusError without tripping it.
func (c *Client) Do(ctx context.Context, rawURL string, build func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.Mu.RLock()
	req := c.Resty.R().SetContext(ctx)
	c.Mu.RUnlock()

	var resp *resty.Response
	var statusErr *StatusError
	err = c.Breakers.For(u.Host).Do(func() error {
		r, err := build(req)
		if err != nil {
			return err
		}
		resp = r
		if r.StatusCode() >= 500 {
			return &StatusError{Method: r.Request.Method, URL: rawURL, Status: r.StatusCode()}
		}
		if r.IsError() {
			statusErr = &StatusError{Method: r.Request.Method, URL: rawURL, Status: r.StatusCode()}
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("%s unavailable: %w", u.Host, err)
	}
	if err != nil {
		return nil, err
	}
	if statusErr != nil {
		return resp, statusErr
	}
	return resp, nil
}

// Get fetches rawURL
func (c *Client) Get(ctx context.Context, rawURL string) (*resty.Response, error) {
	return c.Do(ctx, rawURL, func(r *resty.Request) (*resty.Response, error) {
		return r.Get(rawURL)
	})
}
