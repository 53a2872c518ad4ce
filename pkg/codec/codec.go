// Package codec converts between wire bytes and the mock data model.
//
// Control-plane bodies are JSON. Expectation bodies are checked against an
// embedded JSON Schema before they are decoded, so a body that parses but
// has the wrong shape is rejected the same way as one that does not parse.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/getmockd/mockserver/pkg/mock"
)

// ErrMalformedBody is returned when a control-plane body cannot be decoded
// into the value the command expects.
var ErrMalformedBody = errors.New("malformed body")

// JSON is the default codec.
type JSON struct{}

// DecodeExpectation decodes and validates one expectation.
func (JSON) DecodeExpectation(body []byte) (*mock.Expectation, error) {
	return DecodeExpectation(body)
}

// DecodeMatcher decodes a request matcher. An empty body is the empty matcher.
func (JSON) DecodeMatcher(body []byte) (*mock.RequestMatcher, error) {
	return DecodeMatcher(body)
}

// DecodeExpectation decodes and validates one expectation.
func DecodeExpectation(body []byte) (*mock.Expectation, error) {
	doc, err := parse(body)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: empty expectation", ErrMalformedBody)
	}
	return decodeExpectationDoc(body, doc)
}

// DecodeExpectations decodes either a single expectation or a JSON array of them.
func DecodeExpectations(body []byte) ([]*mock.Expectation, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] != '[' {
		exp, err := DecodeExpectation(trimmed)
		if err != nil {
			return nil, err
		}
		return []*mock.Expectation{exp}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	out := make([]*mock.Expectation, 0, len(items))
	for i, item := range items {
		exp, err := DecodeExpectation(item)
		if err != nil {
			return nil, fmt.Errorf("expectation %d: %w", i, err)
		}
		out = append(out, exp)
	}
	return out, nil
}

func decodeExpectationDoc(body []byte, doc interface{}) (*mock.Expectation, error) {
	expSchema, _, err := schemas()
	if err != nil {
		return nil, err
	}
	if err := expSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedBody, schemaMessage(err))
	}

	var exp mock.Expectation
	if err := json.Unmarshal(body, &exp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if err := exp.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return &exp, nil
}

// DecodeMatcher decodes a request matcher. An empty body is the empty matcher.
func DecodeMatcher(body []byte) (*mock.RequestMatcher, error) {
	doc, err := parse(body)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return &mock.RequestMatcher{}, nil
	}

	_, matcherSchema, err := schemas()
	if err != nil {
		return nil, err
	}
	if err := matcherSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedBody, schemaMessage(err))
	}

	var m mock.RequestMatcher
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return &m, nil
}

// EncodeExpectation renders an expectation in its wire form.
func EncodeExpectation(exp *mock.Expectation) ([]byte, error) {
	return json.Marshal(exp)
}

// EncodeMatcher renders a request matcher in its wire form.
func EncodeMatcher(m *mock.RequestMatcher) ([]byte, error) {
	if m == nil {
		m = &mock.RequestMatcher{}
	}
	return json.Marshal(m)
}

// EncodeResponse renders a response in its wire form.
func EncodeResponse(resp *mock.Response) ([]byte, error) {
	return json.Marshal(resp)
}

// parse returns the generic JSON document for schema validation, or nil for
// an empty body.
func parse(body []byte) (interface{}, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: null body", ErrMalformedBody)
	}
	return doc, nil
}
