package matching

import (
	"strings"

	"github.com/getmockd/mockserver/pkg/mock"
)

// Matches reports whether req satisfies every criterion set on m.
// A nil or empty matcher matches every request.
func Matches(m *mock.RequestMatcher, req *mock.Request) bool {
	if m.IsEmpty() {
		return true
	}
	if req == nil {
		req = &mock.Request{}
	}

	if m.Method != "" && !strings.EqualFold(m.Method, req.Method) {
		return false
	}

	if m.Path != "" && !MatchPath(m.Path, req.Path) {
		return false
	}
	if m.PathPattern != "" && !MatchPathPattern(m.PathPattern, req.Path) {
		return false
	}

	if !MatchHeaders(m.Headers, req.Headers) {
		return false
	}
	if !MatchQueryParams(m.QueryParams, req.Query) {
		return false
	}

	if !MatchBodyEquals(req.Body, m.BodyEquals) {
		return false
	}
	if !MatchBodyContains(req.Body, m.BodyContains) {
		return false
	}
	if m.BodyPattern != "" && !MatchBodyPattern(m.BodyPattern, req.Body) {
		return false
	}
	if len(m.BodyJSONPath) > 0 && !MatchJSONPath(m.BodyJSONPath, req.Body) {
		return false
	}

	return true
}
