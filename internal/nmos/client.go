package nmos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default limits for outbound requests.
const (
	// DefaultTimeout bounds each request when no timeout is configured.
	DefaultTimeout = 5 * time.Second

	// maxResponseBody caps how much of a response is read into memory.
	maxResponseBody = 32 << 20
)

// Observer receives one call per completed request. status is 0 when no
// response was received.
type Observer interface {
	ObserveRequest(method string, status int, elapsed time.Duration)
}

// Response is a fully read HTTP response.
type Response struct {
	Status      int
	Header      http.Header
	ContentType string
	Body        []byte
}

// Client performs JSON requests against registries and device control
// endpoints.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	http     *http.Client
	timeout  time.Duration
	observer Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithObserver registers a request observer, typically the metrics package.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a Client with a DefaultTimeout per request.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Do issues a request and reads the whole response.
//
// A non-nil body is encoded as JSON. Failures are classified:
//   - no response: *NetworkError
//   - non-2xx status: *UpstreamError (the Response is still returned)
//
// Parameters:
//   - ctx: Context for cancellation; a per-request timeout is applied on top
//   - method: HTTP method
//   - url: Absolute request URL
//   - body: Value to encode as the JSON request body, or nil
//
// Returns:
//   - *Response: The read response (nil on network failure)
//   - error: Classified failure, or nil for 2xx
func (c *Client) Do(ctx context.Context, method, url string, body any) (*Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: building request %s %s: %w", ErrInvalidArgument, method, url, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(method, 0, start)
		return nil, &NetworkError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	c.observe(method, resp.StatusCode, start)
	if err != nil {
		return nil, &NetworkError{Method: method, URL: url, Err: fmt.Errorf("reading response: %w", err)}
	}

	out := &Response{
		Status:      resp.StatusCode,
		Header:      resp.Header,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &UpstreamError{
			Method: method,
			URL:    url,
			Status: resp.StatusCode,
			Body:   truncateBody(data),
		}
	}
	return out, nil
}

// GetJSON issues a GET and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) (*Response, error) {
	return c.SendJSON(ctx, http.MethodGet, url, nil, out)
}

// SendJSON issues a request with a JSON body and decodes the response into
// out. A nil out skips decoding; an empty body leaves out untouched.
func (c *Client) SendJSON(ctx context.Context, method, url string, in, out any) (*Response, error) {
	resp, err := c.Do(ctx, method, url, in)
	if err != nil {
		return resp, err
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return resp, fmt.Errorf("%w: decoding %s %s: %w", ErrProtocol, method, url, err)
	}
	return resp, nil
}

func (c *Client) observe(method string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveRequest(method, status, time.Since(start))
	}
}
