// Package transport issues single HTTP exchanges against a resolved
// charger. Retry policy deliberately lives with the callers: the
// orchestrator must be able to say "never re-send an upload", and the
// locator treats probe failures as a boolean, so the transport does
// exactly one network call per invocation.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/klvr/charger-tools/pkg/models"
)

// TransportError wraps any network-level failure (connect, DNS,
// timeout) from a single request. HTTP status codes are not errors;
// callers interpret those themselves.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Response is the raw outcome of one exchange
type Response struct {
	StatusCode int    // HTTP status, uninterpreted
	Body       string // Full response body text
}

// Client performs bounded single-shot requests against devices
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *logrus.Logger
}

// NewClient creates a transport with the given per-request timeout
func NewClient(timeout time.Duration, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		httpClient: &http.Client{},
		timeout:    timeout,
		logger:     logger,
	}
}

// WithTimeout returns a client sharing the same connections but with a
// different per-request timeout. Firmware uploads need far longer than
// info queries.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	return &Client{
		httpClient: c.httpClient,
		timeout:    timeout,
		logger:     c.logger,
	}
}

// Do issues one request against the device and returns the raw status
// and body. A nil body sends no payload; a non-nil body (including an
// empty one) is sent with an exact byte-length Content-Length, never
// chunked or re-encoded.
func (c *Client) Do(ctx context.Context, device models.DeviceDescriptor, method, path string, body []byte, headers map[string]string) (*Response, error) {
	url := device.BaseURL() + path

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Err: err}
	}
	if body != nil {
		req.ContentLength = int64(len(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.logger.Debugf("%s %s (%d bytes)", method, url, len(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Err: err}
	}

	return &Response{StatusCode: resp.StatusCode, Body: string(text)}, nil
}
