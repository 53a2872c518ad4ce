// Package mock defines the request, response, matcher and expectation values
// shared by the dispatcher, the proxy pipeline and the expectation store.
package mock

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// BodyEncodingBase64 marks a response body written as base64 because it is
// not valid UTF-8.
const BodyEncodingBase64 = "base64"

// Request is the canonical shape of an inbound HTTP request.
// It is treated as immutable once dispatch begins; filters work on clones.
type Request struct {
	Method     string     `json:"method"`
	Path       string     `json:"path"`
	Query      url.Values `json:"queryParams,omitempty"`
	Headers    Headers    `json:"headers,omitempty"`
	Body       []byte     `json:"body,omitempty"`
	Host       string     `json:"host,omitempty"`
	RemoteAddr string     `json:"remoteAddr,omitempty"`
	Secure     bool       `json:"secure,omitempty"`
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Headers = r.Headers.Clone()
	if r.Query != nil {
		c.Query = make(url.Values, len(r.Query))
		for k, v := range r.Query {
			c.Query[k] = append([]string(nil), v...)
		}
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// Response is the canonical shape of an HTTP reply.
type Response struct {
	StatusCode int     `json:"statusCode"`
	Headers    Headers `json:"headers,omitempty"`
	Body       []byte  `json:"body,omitempty"`
	DelayMs    int     `json:"delayMs,omitempty"`
}

// NewResponse creates a body-less response with the given status.
func NewResponse(status int) *Response {
	return &Response{StatusCode: status}
}

// ReasonPhrase returns the canonical reason phrase paired with StatusCode.
func (r *Response) ReasonPhrase() string {
	return http.StatusText(r.StatusCode)
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	c.Headers = r.Headers.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

type responseJSON struct {
	StatusCode   int             `json:"statusCode"`
	Headers      Headers         `json:"headers,omitempty"`
	Body         json.RawMessage `json:"body,omitempty"`
	BodyEncoding string          `json:"bodyEncoding,omitempty"`
	DelayMs      int             `json:"delayMs,omitempty"`
}

// MarshalJSON writes a UTF-8 body as a JSON string. Any other body is
// written base64-encoded with bodyEncoding set, so it round-trips intact.
func (r Response) MarshalJSON() ([]byte, error) {
	out := responseJSON{
		StatusCode: r.StatusCode,
		Headers:    r.Headers,
		DelayMs:    r.DelayMs,
	}
	if len(r.Body) > 0 {
		text := string(r.Body)
		if !utf8.Valid(r.Body) {
			text = base64.StdEncoding.EncodeToString(r.Body)
			out.BodyEncoding = BodyEncodingBase64
		}
		b, err := json.Marshal(text)
		if err != nil {
			return nil, err
		}
		out.Body = b
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the body as a string, or as a JSON object/array
// which is kept as its compact JSON text.
func (r *Response) UnmarshalJSON(data []byte) error {
	var in responseJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.StatusCode = in.StatusCode
	r.Headers = in.Headers
	r.DelayMs = in.DelayMs
	r.Body = nil

	raw := strings.TrimSpace(string(in.Body))
	if raw == "" || raw == "null" {
		return nil
	}
	switch in.BodyEncoding {
	case "":
	case BodyEncodingBase64:
		var s string
		if err := json.Unmarshal(in.Body, &s); err != nil {
			return fmt.Errorf("base64 body must be a string: %w", err)
		}
		body, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("invalid base64 body: %w", err)
		}
		r.Body = body
		return nil
	default:
		return fmt.Errorf("unknown bodyEncoding %q", in.BodyEncoding)
	}

	var s string
	if err := json.Unmarshal(in.Body, &s); err == nil {
		r.Body = []byte(s)
		return nil
	}
	buf, err := compactJSON(in.Body)
	if err != nil {
		return err
	}
	r.Body = buf
	return nil
}

// RequestMatcher is a partial request template. Unset fields match anything.
type RequestMatcher struct {
	Method       string                 `json:"method,omitempty" yaml:"method,omitempty"`
	Path         string                 `json:"path,omitempty" yaml:"path,omitempty"`
	PathPattern  string                 `json:"pathPattern,omitempty" yaml:"pathPattern,omitempty"`
	Headers      map[string]string      `json:"headers,omitempty" yaml:"headers,omitempty"`
	QueryParams  map[string]string      `json:"queryParams,omitempty" yaml:"queryParams,omitempty"`
	BodyEquals   string                 `json:"bodyEquals,omitempty" yaml:"bodyEquals,omitempty"`
	BodyContains string                 `json:"bodyContains,omitempty" yaml:"bodyContains,omitempty"`
	BodyPattern  string                 `json:"bodyPattern,omitempty" yaml:"bodyPattern,omitempty"`
	BodyJSONPath map[string]interface{} `json:"bodyJsonPath,omitempty" yaml:"bodyJsonPath,omitempty"`
}

// IsEmpty reports whether the matcher has no criteria and so matches every request.
func (m *RequestMatcher) IsEmpty() bool {
	return m == nil || (m.Method == "" && m.Path == "" && m.PathPattern == "" &&
		len(m.Headers) == 0 && len(m.QueryParams) == 0 &&
		m.BodyEquals == "" && m.BodyContains == "" && m.BodyPattern == "" &&
		len(m.BodyJSONPath) == 0)
}

// AsRequest renders the literal parts of the matcher as a request so that
// one template can be tested against another (used by clear and dump).
func (m *RequestMatcher) AsRequest() *Request {
	if m == nil {
		return &Request{}
	}
	req := &Request{
		Method: m.Method,
		Path:   m.Path,
		Body:   []byte(m.BodyEquals),
	}
	if len(m.QueryParams) > 0 {
		req.Query = url.Values{}
		for k, v := range m.QueryParams {
			req.Query.Set(k, v)
		}
	}
	for k, v := range m.Headers {
		req.Headers = req.Headers.Add(k, v)
	}
	return req
}

// Times bounds how many matches an expectation serves.
type Times struct {
	RemainingTimes int  `json:"remainingTimes"`
	Unlimited      bool `json:"unlimited"`
}

// Once returns Times allowing a single match.
func Once() Times { return Times{RemainingTimes: 1} }

// Exactly returns Times allowing n matches.
func Exactly(n int) Times { return Times{RemainingTimes: n} }

// Unlimited returns Times that never run out.
func Unlimited() Times { return Times{Unlimited: true} }

// Exhausted reports whether no matches remain.
func (t Times) Exhausted() bool {
	return !t.Unlimited && t.RemainingTimes <= 0
}

// Expectation maps a request matcher to a canned response with a use count.
type Expectation struct {
	ID           string          `json:"id,omitempty"`
	HTTPRequest  *RequestMatcher `json:"httpRequest,omitempty"`
	HTTPResponse *Response       `json:"httpResponse"`
	Times        *Times          `json:"times,omitempty"`
}

// EffectiveTimes returns Times, defaulting to unlimited when absent.
func (e *Expectation) EffectiveTimes() Times {
	if e.Times == nil {
		return Unlimited()
	}
	return *e.Times
}
