package storage

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/getmockd/mockserver/internal/matching"
	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/mock"
)

// Expectation sources.
const (
	// SourceRuntime tags expectations registered over the control plane.
	SourceRuntime = "runtime"
	// SourceInitialization tags expectations loaded from the initialization file.
	SourceInitialization = "initialization"
)

type entry struct {
	exp    *mock.Expectation
	times  mock.Times
	source string
}

// InMemoryStore is a thread-safe in-memory ExpectationStore.
type InMemoryStore struct {
	mu      sync.Mutex
	entries []*entry
	log     *slog.Logger
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{log: logging.Nop()}
}

// SetLogger sets the logger Dump writes to.
func (s *InMemoryStore) SetLogger(log *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log == nil {
		log = logging.Nop()
	}
	s.log = log
}

// Find returns a copy of the first matching expectation's response.
func (s *InMemoryStore) Find(req *mock.Request) *mock.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if !matching.Matches(e.exp.HTTPRequest, req) {
			continue
		}
		resp := e.exp.HTTPResponse.Clone()
		if !e.times.Unlimited {
			e.times.RemainingTimes--
			if e.times.Exhausted() {
				s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			}
		}
		return resp
	}
	return nil
}

// Register adds a runtime expectation.
func (s *InMemoryStore) Register(matcher *mock.RequestMatcher, times mock.Times, resp *mock.Response) string {
	return s.add(SourceRuntime, matcher, times, resp)
}

func (s *InMemoryStore) add(source string, matcher *mock.RequestMatcher, times mock.Times, resp *mock.Response) string {
	id := uuid.New().String()
	t := times
	e := &entry{
		exp: &mock.Expectation{
			ID:           id,
			HTTPRequest:  matcher,
			HTTPResponse: resp,
			Times:        &t,
		},
		times:  times,
		source: source,
	}

	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return id
}

// ReplaceSource swaps every expectation tagged with source for exps,
// appending the new set after the surviving entries.
func (s *InMemoryStore) ReplaceSource(source string, exps []*mock.Expectation) {
	fresh := make([]*entry, 0, len(exps))
	for _, exp := range exps {
		times := exp.EffectiveTimes()
		t := times
		fresh = append(fresh, &entry{
			exp: &mock.Expectation{
				ID:           uuid.New().String(),
				HTTPRequest:  exp.HTTPRequest,
				HTTPResponse: exp.HTTPResponse,
				Times:        &t,
			},
			times:  times,
			source: source,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0:0]
	for _, e := range s.entries {
		if e.source != source {
			kept = append(kept, e)
		}
	}
	s.entries = append(kept, fresh...)
}

// Reset removes every expectation, whatever its source.
func (s *InMemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Clear removes expectations selected by template.
func (s *InMemoryStore) Clear(template *mock.RequestMatcher) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if template.IsEmpty() {
		n := len(s.entries)
		s.entries = nil
		return n
	}

	kept := s.entries[:0:0]
	for _, e := range s.entries {
		if !selects(template, e) {
			kept = append(kept, e)
		}
	}
	removed := len(s.entries) - len(kept)
	s.entries = kept
	return removed
}

// Dump logs expectations selected by template at info level.
func (s *InMemoryStore) Dump(template *mock.RequestMatcher) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, e := range s.entries {
		if !selects(template, e) {
			continue
		}
		count++
		data, err := json.Marshal(snapshot(e))
		if err != nil {
			s.log.Warn("failed to encode expectation", "id", e.exp.ID, "error", err)
			continue
		}
		s.log.Info("expectation", "id", e.exp.ID, "source", e.source, "expectation", string(data))
	}
	s.log.Info("dumped expectations", "count", count, "total", len(s.entries))
	return count
}

// List returns copies of all expectations in registration order.
func (s *InMemoryStore) List() []*mock.Expectation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*mock.Expectation, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, snapshot(e))
	}
	return out
}

// Delete removes an expectation by ID. Returns true if it existed.
func (s *InMemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.exp.ID == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Count returns the number of stored expectations.
func (s *InMemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func selects(template *mock.RequestMatcher, e *entry) bool {
	return matching.Matches(template, e.exp.HTTPRequest.AsRequest())
}

// snapshot copies an entry with its current remaining count.
func snapshot(e *entry) *mock.Expectation {
	t := e.times
	return &mock.Expectation{
		ID:           e.exp.ID,
		HTTPRequest:  e.exp.HTTPRequest,
		HTTPResponse: e.exp.HTTPResponse.Clone(),
		Times:        &t,
	}
}

// Ensure InMemoryStore implements ExpectationStore.
var _ ExpectationStore = (*InMemoryStore)(nil)
