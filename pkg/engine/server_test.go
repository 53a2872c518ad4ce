package engine

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockserver/internal/storage"
	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/logging"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/proxy"
)

func testConfig() *config.ServerConfiguration {
	cfg := config.DefaultServerConfiguration()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.ShutdownTimeout = 2
	return cfg
}

func startServer(t *testing.T, cfg *config.ServerConfiguration, opts ...ServerOption) *Server {
	t.Helper()
	srv, err := NewServer(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

func do(t *testing.T, client *http.Client, method, url, body string) (*http.Response, string) {
	t.Helper()
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func storeOf(t *testing.T, srv *Server) *storage.InMemoryStore {
	t.Helper()
	store, ok := srv.Engine().(*storage.InMemoryStore)
	require.True(t, ok)
	return store
}

func TestServer_StopClosesListener(t *testing.T) {
	srv := startServer(t, testConfig())
	addr := srv.PlainAddr()
	require.NotEmpty(t, addr)

	resp, _ := do(t, nil, http.MethodPut, "http://"+addr+PathStop, "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case <-srv.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	require.NoError(t, srv.Wait())

	_, err := net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err, "listener is closed after /stop")
}

func TestServer_ExpectationLifecycle(t *testing.T) {
	srv := startServer(t, testConfig())
	base := "http://" + srv.PlainAddr()

	resp, _ := do(t, nil, http.MethodPut, base+"/some/path", helloExpectation)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := do(t, nil, http.MethodGet, base+"/hello", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hi", body)
	assert.True(t, resp.Close, "one exchange per connection")

	resp, _ = do(t, nil, http.MethodGet, base+"/hello", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_VetoedRequestNeverReachesUpstream(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("from upstream"))
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.Proxy.Target = upstream.URL
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.RegisterRequestFilter(
		&mock.RequestMatcher{Method: http.MethodGet, Path: "/blocked"},
		func(context.Context, *mock.Request) (*mock.Request, bool) { return nil, false },
	))
	require.NoError(t, srv.Start(context.Background()))
	defer func() { _ = srv.Stop(context.Background()) }()
	base := "http://" + srv.PlainAddr()

	resp, _ := do(t, nil, http.MethodGet, base+"/blocked", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "vetoed", resp.Header.Get(proxy.VetoHeader))
	assert.Equal(t, int32(0), calls.Load())

	resp, body := do(t, nil, http.MethodGet, base+"/open", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "from upstream", body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestServer_ConfigFiltersRunBeforeEmbedderFilters(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.Proxy.Target = upstream.URL
	cfg.Proxy.Filters = []config.FilterConfig{{
		Kind:      config.FilterKindResponse,
		When:      "status >= 500",
		SetStatus: http.StatusServiceUnavailable,
	}}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.RegisterResponseFilter(nil, func(context.Context, *mock.Request, *mock.Response) *mock.Response {
		return mock.NewResponse(http.StatusTeapot)
	}))
	require.NoError(t, srv.Start(context.Background()))
	defer func() { _ = srv.Stop(context.Background()) }()

	resp, _ := do(t, nil, http.MethodGet, "http://"+srv.PlainAddr()+"/", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_ResponseFilterWithoutStatusGets502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("from upstream"))
	}))
	defer upstream.Close()

	cfg := testConfig()
	cfg.Proxy.Target = upstream.URL
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.RegisterResponseFilter(nil, func(context.Context, *mock.Request, *mock.Response) *mock.Response {
		return &mock.Response{Body: []byte("rewritten")}
	}))
	require.NoError(t, srv.Start(context.Background()))
	defer func() { _ = srv.Stop(context.Background()) }()

	resp, body := do(t, nil, http.MethodGet, "http://"+srv.PlainAddr()+"/", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "not a final HTTP status")
}

func TestServer_InformationalExpectationRejected(t *testing.T) {
	srv := startServer(t, testConfig())
	base := "http://" + srv.PlainAddr()

	resp, _ := do(t, nil, http.MethodPut, base+"/early", `{"httpRequest": {"path": "/early"}, "httpResponse": {"statusCode": 103, "body": "hint"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, nil, http.MethodGet, base+"/early", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_StartLogsProxySettings(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Config{Level: logging.LevelInfo, Format: logging.FormatText, Output: &buf})

	cfg := testConfig()
	cfg.Proxy.Target = "http://127.0.0.1:1/api"
	cfg.Proxy.VetoStatus = http.StatusUnavailableForLegalReasons
	srv, err := NewServer(cfg, WithLogger(log))
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	require.NoError(t, srv.Stop(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "msg=\"server started\"")
	assert.Contains(t, out, "proxy_target=http://127.0.0.1:1/api")
	assert.Contains(t, out, "veto_status=451")
}

func TestServer_UpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	target := upstream.URL
	upstream.Close()

	cfg := testConfig()
	cfg.Proxy.Target = target
	srv := startServer(t, cfg)

	resp, _ := do(t, nil, http.MethodGet, "http://"+srv.PlainAddr()+"/", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestServer_TruncatedBodyGetsNoResponse(t *testing.T) {
	srv := startServer(t, testConfig())

	conn, err := net.Dial("tcp", srv.PlainAddr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = io.WriteString(conn, "PUT /expectation HTTP/1.1\r\nHost: test\r\nContent-Length: 200\r\n\r\n{\"httpResponse\":")
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	got, _ := io.ReadAll(conn)
	assert.Empty(t, got, "no response for an aborted body")
	assert.Equal(t, 0, storeOf(t, srv).Count())
}

func TestServer_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodySize = 16
	srv := startServer(t, cfg)

	resp, _ := do(t, nil, http.MethodPut, "http://"+srv.PlainAddr()+"/x", strings.Repeat("a", 64))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, 0, storeOf(t, srv).Count())
}

func TestServer_SecureListener(t *testing.T) {
	cfg := testConfig()
	cfg.Port = config.PortDisabled
	cfg.SecurePort = 0
	cfg.TLS.KeyStoreDir = t.TempDir()
	srv := startServer(t, cfg)

	assert.Empty(t, srv.PlainAddr())
	require.NotEmpty(t, srv.SecureAddr())

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test certificate
	}}
	resp, _ := do(t, client, http.MethodGet, "https://"+srv.SecureAddr()+"/nothing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, err := os.Stat(filepath.Join(cfg.TLS.KeyStoreDir, "mockserver.crt"))
	assert.NoError(t, err)
}

func TestServer_NoListeners(t *testing.T) {
	cfg := testConfig()
	cfg.Port = config.PortDisabled
	srv := startServer(t, cfg)

	assert.Empty(t, srv.PlainAddr())
	assert.Empty(t, srv.SecureAddr())
}

func TestServer_BindFailureAbortsStart(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig()
	cfg.MetricsPort = taken.Addr().(*net.TCPAddr).Port
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	err = srv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics")
	assert.Empty(t, srv.PlainAddr())
}

func TestServer_StartTwice(t *testing.T) {
	srv := startServer(t, testConfig())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrAlreadyRunning)
}

func TestServer_ContextCancelStops(t *testing.T) {
	srv, err := NewServer(testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	cancel()

	select {
	case <-srv.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop on cancel")
	}
}

func TestServer_MetricsListener(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsPort = 0
	srv := startServer(t, cfg)

	do(t, nil, http.MethodPut, "http://"+srv.PlainAddr()+PathReset, "")

	resp, body := do(t, nil, http.MethodGet, "http://"+srv.MetricsAddr()+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `mockserver_dispatch_total{command="reset",plane="control",status="202"} 1`)
	assert.Contains(t, body, "mockserver_expectations 0")
}

func TestServer_InitializationFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "init.json")
	writeInit := func(body string) {
		t.Helper()
		data := `[{"httpRequest": {"path": "/init"}, "httpResponse": {"statusCode": 200, "body": "` + body + `"}}]`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	}
	writeInit("first")

	cfg := testConfig()
	cfg.InitializationFile = path
	cfg.WatchInitialization = true
	srv := startServer(t, cfg)
	base := "http://" + srv.PlainAddr()

	_, body := do(t, nil, http.MethodGet, base+"/init", "")
	assert.Equal(t, "first", body)

	resp, _ := do(t, nil, http.MethodPut, base+"/runtime", `{"httpRequest": {"path": "/rt"}, "httpResponse": {"statusCode": 204}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	writeInit("second")

	assert.Eventually(t, func() bool {
		resp, err := http.Get(base + "/init")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return string(b) == "second"
	}, 5*time.Second, 50*time.Millisecond)

	resp, _ = do(t, nil, http.MethodGet, base+"/rt", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "runtime expectations survive a reload")
	assert.Equal(t, 2, storeOf(t, srv).Count())
}

func TestServer_InitializationFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "init.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"httpRequest": {}}]`), 0o600))

	cfg := testConfig()
	cfg.InitializationFile = path
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	assert.Error(t, srv.Start(context.Background()))
}

func TestNewServer_InvalidFilterConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Proxy.Filters = []config.FilterConfig{{Kind: "request", When: "method =="}}

	_, err := NewServer(cfg)
	assert.ErrorIs(t, err, proxy.ErrInvalidFilter)
}
