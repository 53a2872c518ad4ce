package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/getmockd/mockserver/internal/matching"
	"github.com/getmockd/mockserver/pkg/mock"
)

// ErrInvalidFilter is returned when an entry is registered without the
// function its kind requires.
var ErrInvalidFilter = errors.New("invalid filter")

// Kind selects which side of the exchange a filter intercepts.
type Kind int

const (
	// KindRequest filters run before the upstream call and may veto it.
	KindRequest Kind = iota
	// KindResponse filters run after the upstream call and may replace its response.
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// RequestFilterFunc receives a copy of the inbound request. It returns the
// request to forward and true, or false to veto the upstream call.
type RequestFilterFunc func(ctx context.Context, req *mock.Request) (*mock.Request, bool)

// ResponseFilterFunc receives the original request and the upstream
// response. It returns the response to send, or nil to keep the upstream one.
type ResponseFilterFunc func(ctx context.Context, req *mock.Request, resp *mock.Response) *mock.Response

// Entry binds a matcher to one filter.
type Entry struct {
	// Name is used in logs only.
	Name     string
	Matcher  *mock.RequestMatcher
	Kind     Kind
	Request  RequestFilterFunc
	Response ResponseFilterFunc
}

func (e Entry) validate() error {
	switch e.Kind {
	case KindRequest:
		if e.Request == nil {
			return fmt.Errorf("%w: request entry without request function", ErrInvalidFilter)
		}
	case KindResponse:
		if e.Response == nil {
			return fmt.Errorf("%w: response entry without response function", ErrInvalidFilter)
		}
	default:
		return fmt.Errorf("%w: unknown kind %v", ErrInvalidFilter, e.Kind)
	}
	return nil
}

// Registry holds filter entries in registration order. Lookups read an
// immutable snapshot and never block; registration copies the slice.
type Registry struct {
	mu      sync.Mutex
	entries atomic.Pointer[[]Entry]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.entries.Store(&[]Entry{})
	return r
}

// Register appends an entry.
func (r *Registry) Register(e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.entries.Load()
	next := make([]Entry, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, e)
	r.entries.Store(&next)
	return nil
}

// RegisterRequestFilter appends a request filter for requests matching m.
func (r *Registry) RegisterRequestFilter(m *mock.RequestMatcher, fn RequestFilterFunc) error {
	return r.Register(Entry{Matcher: m, Kind: KindRequest, Request: fn})
}

// RegisterResponseFilter appends a response filter for requests matching m.
func (r *Registry) RegisterResponseFilter(m *mock.RequestMatcher, fn ResponseFilterFunc) error {
	return r.Register(Entry{Matcher: m, Kind: KindResponse, Response: fn})
}

// Lookup returns the first entry of kind whose matcher accepts req.
// Later entries are never consulted once one matches.
func (r *Registry) Lookup(req *mock.Request, kind Kind) (Entry, bool) {
	for _, e := range *r.entries.Load() {
		if e.Kind == kind && matching.Matches(e.Matcher, req) {
			return e, true
		}
	}
	return Entry{}, false
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	return len(*r.entries.Load())
}
