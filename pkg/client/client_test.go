package client

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockserver/pkg/codec"
	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/engine"
	"github.com/getmockd/mockserver/pkg/httputil"
	"github.com/getmockd/mockserver/pkg/mock"
)

func startServer(t *testing.T) (*engine.Server, *Client) {
	t.Helper()
	cfg := config.DefaultServerConfiguration()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	srv, err := engine.NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return srv, New("http://" + srv.PlainAddr())
}

func get(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestClient_ExpectClearReset(t *testing.T) {
	srv, c := startServer(t)
	ctx := context.Background()
	base := "http://" + srv.PlainAddr()

	stored, err := c.Expect(ctx, &mock.Expectation{
		HTTPRequest:  &mock.RequestMatcher{Path: "/a"},
		HTTPResponse: mock.NewResponse(http.StatusAccepted),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.True(t, stored.EffectiveTimes().Unlimited)

	_, err = c.Expect(ctx, &mock.Expectation{
		HTTPRequest:  &mock.RequestMatcher{Path: "/b"},
		HTTPResponse: mock.NewResponse(http.StatusOK),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, get(t, base+"/a"))

	require.NoError(t, c.Clear(ctx, &mock.RequestMatcher{Path: "/a"}))
	assert.Equal(t, http.StatusNotFound, get(t, base+"/a"))
	assert.Equal(t, http.StatusOK, get(t, base+"/b"))

	require.NoError(t, c.DumpToLog(ctx, nil))

	require.NoError(t, c.Reset(ctx))
	assert.Equal(t, http.StatusNotFound, get(t, base+"/b"))
}

func TestClient_Stop(t *testing.T) {
	srv, c := startServer(t)

	require.NoError(t, c.Stop(context.Background()))

	select {
	case <-srv.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestClient_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := httputil.Error(http.StatusBadRequest, httputil.CodeMalformedBody, "bad matcher")
		_ = codec.WriteResponse(w, resp)
	}))
	defer ts.Close()

	err := New(ts.URL).Clear(context.Background(), &mock.RequestMatcher{Path: "/x"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, httputil.CodeMalformedBody, apiErr.ErrorCode)
	assert.Equal(t, "bad matcher", apiErr.Message)
}

func TestClient_RetryUntilServerListens(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	go func() {
		time.Sleep(200 * time.Millisecond)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		})}
		go func() {
			time.Sleep(2 * time.Second)
			_ = srv.Close()
		}()
		_ = srv.Serve(l)
	}()

	c := New("http://"+addr, WithRetry(2*time.Second))
	assert.NoError(t, c.Reset(context.Background()))
}

func TestClient_NoRetryByDefault(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	err = New("http://" + addr).Reset(context.Background())
	assert.Error(t, err)
}
