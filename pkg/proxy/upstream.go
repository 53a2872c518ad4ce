package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/getmockd/mockserver/pkg/mock"
)

// DefaultMaxBodySize caps an upstream response body (10MB).
const DefaultMaxBodySize = 10 * 1024 * 1024

// ErrUpstream is matched by every error the upstream returns.
var ErrUpstream = errors.New("upstream request failed")

// UpstreamError describes a failed upstream round trip.
type UpstreamError struct {
	Target  string
	Timeout bool
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("upstream %s timed out: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("upstream %s failed: %v", e.Target, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is reports a match against ErrUpstream.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// hopByHopHeaders are never forwarded in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HTTPUpstream forwards requests to a fixed base URL.
type HTTPUpstream struct {
	target      *url.URL
	client      *http.Client
	maxBodySize int64
}

// NewHTTPUpstream creates an upstream for target, an absolute http(s) URL.
// Redirects are returned to the caller rather than followed.
func NewHTTPUpstream(target string, timeout time.Duration) (*HTTPUpstream, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy target %q: %w", target, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy target %q: need an absolute http(s) URL", target)
	}

	return &HTTPUpstream{
		target: u,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxBodySize: DefaultMaxBodySize,
	}, nil
}

// Target returns the base URL requests are sent to.
func (u *HTTPUpstream) Target() string {
	return u.target.String()
}

// RoundTrip sends req to the target and buffers the response.
func (u *HTTPUpstream) RoundTrip(ctx context.Context, req *mock.Request) (*mock.Response, error) {
	outURL := *u.target
	outURL.Path = joinPath(u.target.Path, req.Path)
	outURL.RawPath = ""
	outURL.RawQuery = req.Query.Encode()

	outReq, err := http.NewRequestWithContext(ctx, req.Method, outURL.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, u.wrap(err)
	}
	outReq.ContentLength = int64(len(req.Body))

	outReq.Header = req.Headers.HTTP()
	outReq.Header.Del("Content-Length")
	removeHopByHopHeaders(outReq.Header)
	setForwardedHeaders(outReq.Header, req)

	resp, err := u.client.Do(outReq)
	if err != nil {
		return nil, u.wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBodySize+1))
	if err != nil {
		return nil, u.wrap(err)
	}
	if int64(len(body)) > u.maxBodySize {
		return nil, u.wrap(fmt.Errorf("response body exceeds %d bytes", u.maxBodySize))
	}

	removeHopByHopHeaders(resp.Header)
	resp.Header.Del("Content-Length")

	return &mock.Response{
		StatusCode: resp.StatusCode,
		Headers:    mock.FromHTTP(resp.Header),
		Body:       body,
	}, nil
}

func (u *HTTPUpstream) wrap(err error) error {
	return &UpstreamError{Target: u.target.String(), Timeout: isTimeout(err), Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// removeHopByHopHeaders removes the fixed hop-by-hop set and every header
// named in Connection.
func removeHopByHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			token = strings.TrimSpace(token)
			if httpguts.ValidHeaderFieldName(token) {
				h.Del(token)
			}
		}
	}
	for _, header := range hopByHopHeaders {
		h.Del(header)
	}
}

// setForwardedHeaders records the original client, host and scheme.
func setForwardedHeaders(h http.Header, req *mock.Request) {
	if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		if prior := h.Values("X-Forwarded-For"); len(prior) > 0 {
			clientIP = strings.Join(prior, ", ") + ", " + clientIP
		}
		h.Set("X-Forwarded-For", clientIP)
	}
	if req.Host != "" {
		h.Set("X-Forwarded-Host", req.Host)
	}
	proto := "http"
	if req.Secure {
		proto = "https"
	}
	h.Set("X-Forwarded-Proto", proto)
}

func joinPath(base, path string) string {
	switch {
	case base == "" || base == "/":
		if path == "" {
			return "/"
		}
		return path
	case path == "" || path == "/":
		return base
	default:
		return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
	}
}
