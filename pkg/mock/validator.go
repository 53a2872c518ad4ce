package mock

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/ohler55/ojg/jp"
	"golang.org/x/net/http/httpguts"
)

// ValidationError represents a validation failure with context.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Validate checks that an expectation can be registered.
func (e *Expectation) Validate() error {
	if e.HTTPResponse == nil {
		return &ValidationError{Field: "httpResponse", Message: "httpResponse is required"}
	}
	if err := e.HTTPRequest.Validate(); err != nil {
		return err
	}
	if err := e.HTTPResponse.Validate(); err != nil {
		return err
	}
	if e.Times != nil && !e.Times.Unlimited && e.Times.RemainingTimes < 1 {
		return &ValidationError{Field: "times.remainingTimes", Message: "must be at least 1 unless unlimited"}
	}
	return nil
}

// Validate checks the matcher's patterns compile. A nil matcher is valid.
func (m *RequestMatcher) Validate() error {
	if m == nil {
		return nil
	}

	if m.Path != "" && m.PathPattern != "" {
		return &ValidationError{Field: "httpRequest", Message: "cannot specify both path and pathPattern"}
	}

	if m.PathPattern != "" {
		if _, err := regexp.Compile(m.PathPattern); err != nil {
			return &ValidationError{
				Field:   "httpRequest.pathPattern",
				Message: fmt.Sprintf("invalid regex pattern: %s", err.Error()),
			}
		}
	}

	if m.BodyPattern != "" {
		if _, err := regexp.Compile(m.BodyPattern); err != nil {
			return &ValidationError{
				Field:   "httpRequest.bodyPattern",
				Message: fmt.Sprintf("invalid regex pattern: %s", err.Error()),
			}
		}
	}

	for name := range m.Headers {
		if !httpguts.ValidHeaderFieldName(name) {
			return &ValidationError{
				Field:   "httpRequest.headers",
				Message: fmt.Sprintf("invalid header name: %s", name),
			}
		}
	}

	for path := range m.BodyJSONPath {
		if _, err := jp.ParseString(path); err != nil {
			return &ValidationError{
				Field:   "httpRequest.bodyJsonPath",
				Message: fmt.Sprintf("invalid JSONPath expression %q: %s", path, err.Error()),
			}
		}
	}

	return nil
}

// IsFinalStatus reports whether code can be the only status line of a
// response. net/http writes 1xx codes as interim responses and follows them
// with its own 200.
func IsFinalStatus(code int) bool {
	return code >= 200 && code <= 599
}

// Validate checks the status code is a real, final HTTP status.
func (r *Response) Validate() error {
	if !IsFinalStatus(r.StatusCode) {
		return &ValidationError{
			Field:   "httpResponse.statusCode",
			Message: fmt.Sprintf("status code %d out of range 200-599", r.StatusCode),
		}
	}
	if http.StatusText(r.StatusCode) == "" {
		return &ValidationError{
			Field:   "httpResponse.statusCode",
			Message: fmt.Sprintf("status code %d has no canonical reason phrase", r.StatusCode),
		}
	}
	for _, h := range r.Headers {
		if !httpguts.ValidHeaderFieldName(h.Name) {
			return &ValidationError{Field: "httpResponse.headers", Message: fmt.Sprintf("invalid header name: %s", h.Name)}
		}
	}
	return nil
}
