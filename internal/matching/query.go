package matching

import (
	"net/url"
)

// MatchQueryParam checks if any value of a query parameter equals expectedValue.
func MatchQueryParam(name, expectedValue string, params url.Values) bool {
	for _, v := range params[name] {
		if v == expectedValue {
			return true
		}
	}
	return false
}

// MatchQueryParams checks if all specified query parameters match.
func MatchQueryParams(expected map[string]string, params url.Values) bool {
	for name, value := range expected {
		if !MatchQueryParam(name, value, params) {
			return false
		}
	}
	return true
}
