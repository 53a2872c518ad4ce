package storage

import (
	"github.com/getmockd/mockserver/pkg/mock"
)

// ExpectationStore defines the operations the dispatcher needs from the
// matching engine.
type ExpectationStore interface {
	// Find returns the response of the first expectation matching req and
	// consumes one of its remaining uses. Returns nil if nothing matches.
	Find(req *mock.Request) *mock.Response

	// Register adds an expectation and returns its assigned ID.
	Register(matcher *mock.RequestMatcher, times mock.Times, resp *mock.Response) string

	// Reset removes every expectation.
	Reset()

	// Clear removes expectations whose matcher is accepted by template.
	// Returns the number removed.
	Clear(template *mock.RequestMatcher) int

	// Dump logs expectations whose matcher is accepted by template.
	// Returns the number logged.
	Dump(template *mock.RequestMatcher) int
}
