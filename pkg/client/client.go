// Package client talks to a running mock server's control plane.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/getmockd/mockserver/pkg/codec"
	"github.com/getmockd/mockserver/pkg/httputil"
	"github.com/getmockd/mockserver/pkg/mock"
)

// ExpectationPath is where Expect registers expectations. Any PUT path that
// is not a control command would do.
const ExpectationPath = "/expectation"

// APIError is a non-success answer from the server.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("server returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Client sends control plane commands.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// retryFor keeps retrying refused connections while the server starts.
	retryFor time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout for the client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetry retries refused connections for up to d.
func WithRetry(d time.Duration) Option {
	return func(c *Client) {
		c.retryFor = d
	}
}

// New creates a client for the server at baseURL, e.g. http://localhost:1080.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stop asks the server to shut down.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.put(ctx, "/stop", nil, http.StatusAccepted)
	return err
}

// Reset removes every expectation.
func (c *Client) Reset(ctx context.Context) error {
	_, err := c.put(ctx, "/reset", nil, http.StatusAccepted)
	return err
}

// Clear removes expectations selected by template. A nil template clears all.
func (c *Client) Clear(ctx context.Context, template *mock.RequestMatcher) error {
	body, err := encodeTemplate(template)
	if err != nil {
		return err
	}
	_, err = c.put(ctx, "/clear", body, http.StatusAccepted)
	return err
}

// DumpToLog makes the server log expectations selected by template.
func (c *Client) DumpToLog(ctx context.Context, template *mock.RequestMatcher) error {
	body, err := encodeTemplate(template)
	if err != nil {
		return err
	}
	_, err = c.put(ctx, "/dumpToLog", body, http.StatusAccepted)
	return err
}

// Expect registers exp and returns it as stored, with its assigned ID.
func (c *Client) Expect(ctx context.Context, exp *mock.Expectation) (*mock.Expectation, error) {
	body, err := codec.EncodeExpectation(exp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode expectation: %w", err)
	}
	respBody, err := c.put(ctx, ExpectationPath, body, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	stored, err := codec.DecodeExpectation(respBody)
	if err != nil {
		return nil, fmt.Errorf("failed to decode registered expectation: %w", err)
	}
	return stored, nil
}

func encodeTemplate(template *mock.RequestMatcher) ([]byte, error) {
	if template.IsEmpty() {
		return nil, nil
	}
	body, err := codec.EncodeMatcher(template)
	if err != nil {
		return nil, fmt.Errorf("failed to encode matcher: %w", err)
	}
	return body, nil
}

func (c *Client) put(ctx context.Context, path string, body []byte, want int) ([]byte, error) {
	deadline := time.Now().Add(c.retryFor)
	for {
		respBody, err := c.doPut(ctx, path, body, want)
		if err == nil || !isRefused(err) || time.Now().After(deadline) {
			return respBody, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (c *Client) doPut(ctx context.Context, path string, body []byte, want int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != want {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if eb := httputil.ParseError(respBody); eb != nil {
			apiErr.ErrorCode = eb.Error
			apiErr.Message = eb.Message
		}
		return nil, apiErr
	}
	return respBody, nil
}

func isRefused(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
