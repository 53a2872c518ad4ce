package matching

import (
	"strings"

	"github.com/getmockd/mockserver/pkg/mock"
)

// MatchHeaders checks if all specified headers match.
// Header names are case-insensitive. Any value of a repeated header may satisfy the pattern.
func MatchHeaders(expected map[string]string, headers mock.Headers) bool {
	for name, pattern := range expected {
		if !MatchHeaderPattern(name, pattern, headers) {
			return false
		}
	}
	return true
}

// MatchHeaderPattern checks if a header matches a pattern.
// An empty pattern only requires the header to be present. Supports exact,
// prefix (value*), suffix (*value), and contains (*value*) patterns.
func MatchHeaderPattern(name, pattern string, headers mock.Headers) bool {
	values := headers.Values(name)
	if len(values) == 0 {
		return false
	}
	if pattern == "" {
		return true
	}
	for _, v := range values {
		if matchValuePattern(pattern, v) {
			return true
		}
	}
	return false
}

func matchValuePattern(pattern, actual string) bool {
	if !strings.Contains(pattern, "*") {
		return actual == pattern
	}

	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		return strings.Contains(actual, strings.Trim(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(actual, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(actual, strings.TrimPrefix(pattern, "*"))
	}

	return false
}
