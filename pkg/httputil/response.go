// Package httputil builds the JSON bodies the server answers with when it
// is not replaying a canned response.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/getmockd/mockserver/pkg/mock"
)

// Error codes carried in the "error" field of JSON error bodies.
const (
	CodeMalformedBody    = "malformed_body"
	CodeBodyTooLarge     = "body_too_large"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeUpstreamFailed   = "upstream_failed"
	CodeUpstreamTimeout  = "upstream_timeout"
	CodeInternal         = "internal_error"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// JSON builds a response carrying data as JSON with the given status.
// A nil data produces an empty body.
func JSON(status int, data any) *mock.Response {
	resp := mock.NewResponse(status)
	if data == nil {
		return resp
	}
	body, err := json.Marshal(data)
	if err != nil {
		return Error(http.StatusInternalServerError, CodeInternal, err.Error())
	}
	resp.Headers = resp.Headers.Set("Content-Type", "application/json")
	resp.Body = body
	return resp
}

// Error builds a JSON error response.
func Error(status int, errCode, message string) *mock.Response {
	return JSON(status, ErrorBody{Error: errCode, Message: message})
}

// Empty builds a body-less response.
func Empty(status int) *mock.Response {
	return mock.NewResponse(status)
}

// ParseError decodes an error body. Returns nil if body is not one.
func ParseError(body []byte) *ErrorBody {
	var eb ErrorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error == "" {
		return nil
	}
	return &eb
}
