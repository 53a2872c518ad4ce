package matching

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/getmockd/mockserver/pkg/mock"
)

func TestMatches(t *testing.T) {
	req := &mock.Request{
		Method:  "POST",
		Path:    "/orders/42",
		Query:   url.Values{"expand": {"items", "customer"}},
		Headers: mock.Headers{{Name: "Content-Type", Values: []string{"application/json; charset=utf-8"}}},
		Body:    []byte(`{"total":10}`),
	}

	tests := []struct {
		name    string
		matcher *mock.RequestMatcher
		want    bool
	}{
		{name: "nil matcher", matcher: nil, want: true},
		{name: "empty matcher", matcher: &mock.RequestMatcher{}, want: true},
		{name: "method case-insensitive", matcher: &mock.RequestMatcher{Method: "post"}, want: true},
		{name: "method mismatch", matcher: &mock.RequestMatcher{Method: "GET"}, want: false},
		{name: "path param", matcher: &mock.RequestMatcher{Path: "/orders/{id}"}, want: true},
		{name: "path pattern", matcher: &mock.RequestMatcher{PathPattern: `^/orders/\d+$`}, want: true},
		{name: "header prefix", matcher: &mock.RequestMatcher{Headers: map[string]string{"content-type": "application/json*"}}, want: true},
		{name: "header presence", matcher: &mock.RequestMatcher{Headers: map[string]string{"X-Missing": ""}}, want: false},
		{name: "query any value", matcher: &mock.RequestMatcher{QueryParams: map[string]string{"expand": "customer"}}, want: true},
		{name: "query mismatch", matcher: &mock.RequestMatcher{QueryParams: map[string]string{"expand": "x"}}, want: false},
		{name: "body jsonpath", matcher: &mock.RequestMatcher{BodyJSONPath: map[string]interface{}{"$.total": 10}}, want: true},
		{
			name: "all criteria",
			matcher: &mock.RequestMatcher{
				Method:       "POST",
				Path:         "/orders/*",
				BodyContains: "total",
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.matcher, req))
		})
	}
}

func TestMatches_TemplateAgainstTemplate(t *testing.T) {
	registered := &mock.RequestMatcher{Method: "GET", Path: "/a/b"}

	assert.True(t, Matches(&mock.RequestMatcher{Path: "/a/*"}, registered.AsRequest()))
	assert.False(t, Matches(&mock.RequestMatcher{Path: "/c"}, registered.AsRequest()))
}
