// Package publish forwards a benchmark to the shortcode worker and returns
// the short code it assigns.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/GriffinCanCode/jsbench/internal/infrastructure/httpclient"
)

var ErrNotConfigured = errors.New("publish worker url is not configured")

// Response is the worker's reply
type Response struct {
	Code string `json:"code"`
}

// Client talks to the shortcode worker
type Client struct {
	http      *httpclient.Client
	workerURL string
}

// New creates a publish client; an empty workerURL disables publishing
func New(http *httpclient.Client, workerURL string) *Client {
	return &Client{
		http:      http,
		workerURL: strings.TrimRight(workerURL, "/"),
	}
}

// Enabled reports whether a worker is configured
func (c *Client) Enabled() bool {
	return c.workerURL != ""
}

// Publish posts body, a JSON document, to <worker>/api/shortcode. Every
// attempt of one call carries the same Idempotency-Key. Errors are returned
// unchanged.
func (c *Client) Publish(ctx context.Context, body []byte) (*Response, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	if !sonic.Valid(body) {
		return nil, errors.New("publish body is not valid JSON")
	}

	endpoint := c.workerURL + "/api/shortcode"
	key := uuid.NewString()
	resp, err := c.http.Do(ctx, endpoint, func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetHeader("Content-Type", "application/json").
			SetHeader("Idempotency-Key", key).
			SetBody(body).
			Post(endpoint)
	})
	if err != nil {
		return nil, err
	}

	var out Response
	if err := sonic.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode worker response: %w", err)
	}
	if out.Code == "" {
		return nil, errors.New("worker response has no code")
	}
	return &out, nil
}
