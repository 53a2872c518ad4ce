package matching

import (
	"regexp"
	"strings"
)

// MatchBodyContains checks if the body contains the substring.
func MatchBodyContains(body []byte, contains string) bool {
	if contains == "" {
		return true
	}
	return strings.Contains(string(body), contains)
}

// MatchBodyEquals checks if the body exactly equals the expected value.
func MatchBodyEquals(body []byte, expected string) bool {
	if expected == "" {
		return true
	}
	return string(body) == expected
}

// MatchBodyPattern checks if the request body matches a regex pattern.
// An invalid pattern never matches.
func MatchBodyPattern(pattern string, body []byte) bool {
	if pattern == "" {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.Match(body)
}
