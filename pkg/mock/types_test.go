package mock

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse_UnmarshalJSON_Body(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		wantBody string
	}{
		{name: "string body", json: `{"statusCode":200,"body":"hi"}`, wantBody: "hi"},
		{name: "object body", json: `{"statusCode":200,"body":{"id": 1}}`, wantBody: `{"id":1}`},
		{name: "array body", json: `{"statusCode":200,"body":[1, 2]}`, wantBody: `[1,2]`},
		{name: "null body", json: `{"statusCode":204,"body":null}`, wantBody: ""},
		{name: "missing body", json: `{"statusCode":204}`, wantBody: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp Response
			require.NoError(t, json.Unmarshal([]byte(tt.json), &resp))
			assert.Equal(t, tt.wantBody, string(resp.Body))
		})
	}
}

func TestResponse_MarshalJSON_BodyAsString(t *testing.T) {
	resp := Response{StatusCode: 200, Body: []byte("hi")}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"statusCode":200,"body":"hi"}`, string(data))
}

func TestResponse_BinaryBodyRoundTrip(t *testing.T) {
	body := []byte{0xff, 0xfe, 'h', 'i', 0x00}
	data, err := json.Marshal(Response{StatusCode: 200, Body: body})
	require.NoError(t, err)
	assert.JSONEq(t, `{"statusCode":200,"body":"//5oaQA=","bodyEncoding":"base64"}`, string(data))

	var back Response
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, body, back.Body)
}

func TestResponse_UnmarshalJSON_BadEncoding(t *testing.T) {
	var resp Response
	assert.ErrorContains(t, json.Unmarshal([]byte(`{"statusCode":200,"body":"x","bodyEncoding":"hex"}`), &resp), "bodyEncoding")
	assert.ErrorContains(t, json.Unmarshal([]byte(`{"statusCode":200,"body":"%%%","bodyEncoding":"base64"}`), &resp), "base64")
}

func TestResponse_ReasonPhrase(t *testing.T) {
	assert.Equal(t, "Not Found", NewResponse(http.StatusNotFound).ReasonPhrase())
	assert.Equal(t, "Accepted", NewResponse(http.StatusAccepted).ReasonPhrase())
}

func TestHeaders_UnmarshalJSON(t *testing.T) {
	t.Run("object form", func(t *testing.T) {
		var h Headers
		require.NoError(t, json.Unmarshal([]byte(`{"X-B":"2","X-A":["1","3"]}`), &h))
		require.Len(t, h, 2)
		assert.Equal(t, "X-A", h[0].Name)
		assert.Equal(t, []string{"1", "3"}, h.Values("x-a"))
		assert.Equal(t, "2", h.Get("x-b"))
	})

	t.Run("list form keeps order", func(t *testing.T) {
		var h Headers
		require.NoError(t, json.Unmarshal([]byte(`[{"name":"Z","values":["z"]},{"name":"A","values":["a"]}]`), &h))
		require.Len(t, h, 2)
		assert.Equal(t, "Z", h[0].Name)
	})

	t.Run("invalid value", func(t *testing.T) {
		var h Headers
		assert.Error(t, json.Unmarshal([]byte(`{"X":1}`), &h))
	})
}

func TestHeaders_SetDoesNotAliasOriginal(t *testing.T) {
	orig := Headers{{Name: "A", Values: []string{"1"}}, {Name: "B", Values: []string{"2"}}}
	updated := orig.Set("A", "x")

	assert.Equal(t, "1", orig.Get("A"))
	assert.Equal(t, "x", updated.Get("A"))
	assert.Equal(t, "2", updated.Get("B"))
}

func TestRequest_Clone(t *testing.T) {
	req := &Request{
		Method:  "POST",
		Path:    "/a",
		Headers: Headers{{Name: "X", Values: []string{"1"}}},
		Body:    []byte("body"),
	}
	c := req.Clone()
	c.Headers[0].Values[0] = "2"
	c.Body[0] = 'B'

	assert.Equal(t, "1", req.Headers.Get("X"))
	assert.Equal(t, "body", string(req.Body))
}

func TestRequestMatcher_IsEmpty(t *testing.T) {
	var nilMatcher *RequestMatcher
	assert.True(t, nilMatcher.IsEmpty())
	assert.True(t, (&RequestMatcher{}).IsEmpty())
	assert.False(t, (&RequestMatcher{Path: "/x"}).IsEmpty())
}

func TestTimes(t *testing.T) {
	assert.False(t, Once().Exhausted())
	assert.True(t, Exactly(0).Exhausted())
	assert.False(t, Unlimited().Exhausted())

	e := &Expectation{}
	assert.Equal(t, Unlimited(), e.EffectiveTimes())
}

func TestExpectation_Validate(t *testing.T) {
	tests := []struct {
		name    string
		exp     *Expectation
		wantErr string
	}{
		{
			name: "valid",
			exp: &Expectation{
				HTTPRequest:  &RequestMatcher{Method: "GET", Path: "/hello"},
				HTTPResponse: &Response{StatusCode: 200},
			},
		},
		{
			name:    "missing response",
			exp:     &Expectation{HTTPRequest: &RequestMatcher{Path: "/x"}},
			wantErr: "httpResponse",
		},
		{
			name: "path and pattern",
			exp: &Expectation{
				HTTPRequest:  &RequestMatcher{Path: "/x", PathPattern: "^/x$"},
				HTTPResponse: &Response{StatusCode: 200},
			},
			wantErr: "cannot specify both",
		},
		{
			name: "bad regex",
			exp: &Expectation{
				HTTPRequest:  &RequestMatcher{BodyPattern: "("},
				HTTPResponse: &Response{StatusCode: 200},
			},
			wantErr: "bodyPattern",
		},
		{
			name: "bad status",
			exp: &Expectation{
				HTTPResponse: &Response{StatusCode: 999},
			},
			wantErr: "statusCode",
		},
		{
			name: "informational status",
			exp: &Expectation{
				HTTPResponse: &Response{StatusCode: http.StatusEarlyHints},
			},
			wantErr: "out of range 200-599",
		},
		{
			name: "zero times",
			exp: &Expectation{
				HTTPResponse: &Response{StatusCode: 200},
				Times:        &Times{RemainingTimes: 0},
			},
			wantErr: "remainingTimes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.exp.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
