package proxy

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockserver/pkg/mock"
)

func passRequest(tag string) RequestFilterFunc {
	return func(_ context.Context, req *mock.Request) (*mock.Request, bool) {
		req.Headers = req.Headers.Set("X-Filter", tag)
		return req, true
	}
}

func TestRegistry_FirstMatchWins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Entry{Name: "specific", Matcher: &mock.RequestMatcher{Path: "/api/users"}, Kind: KindRequest, Request: passRequest("specific")}))
	require.NoError(t, r.Register(Entry{Name: "broad", Matcher: &mock.RequestMatcher{Path: "/api/*"}, Kind: KindRequest, Request: passRequest("broad")}))

	e, ok := r.Lookup(&mock.Request{Method: "GET", Path: "/api/users"}, KindRequest)
	require.True(t, ok)
	assert.Equal(t, "specific", e.Name)

	e, ok = r.Lookup(&mock.Request{Method: "GET", Path: "/api/orders"}, KindRequest)
	require.True(t, ok)
	assert.Equal(t, "broad", e.Name)
}

func TestRegistry_LookupByKind(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterRequestFilter(nil, passRequest("req")))

	_, ok := r.Lookup(&mock.Request{Path: "/"}, KindResponse)
	assert.False(t, ok)

	_, ok = r.Lookup(&mock.Request{Path: "/"}, KindRequest)
	assert.True(t, ok)
}

func TestRegistry_NoMatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterRequestFilter(&mock.RequestMatcher{Path: "/a"}, passRequest("a")))

	_, ok := r.Lookup(&mock.Request{Path: "/b"}, KindRequest)
	assert.False(t, ok)
}

func TestRegistry_RejectsIncompleteEntries(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Register(Entry{Kind: KindRequest}), ErrInvalidFilter)
	assert.ErrorIs(t, r.Register(Entry{Kind: KindResponse}), ErrInvalidFilter)
	assert.ErrorIs(t, r.Register(Entry{Kind: Kind(9), Request: passRequest("x")}), ErrInvalidFilter)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ConcurrentRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	req := &mock.Request{Method: "GET", Path: "/x"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.RegisterRequestFilter(nil, passRequest("x"))
		}()
		go func() {
			defer wg.Done()
			r.Lookup(req, KindRequest)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, r.Len())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "request", KindRequest.String())
	assert.Equal(t, "response", KindResponse.String())
	assert.Equal(t, "Kind(7)", Kind(7).String())
}
