// Package storage holds registered expectations.
//
// ExpectationStore is the matching engine the dispatcher talks to. The
// in-memory implementation keeps expectations in registration order,
// serves the first one whose matcher accepts a request, counts down its
// remaining uses, and drops it once they run out.
//
// Expectations loaded from an initialization file carry a source tag so a
// reload can swap them out without touching ones registered at runtime.
package storage
