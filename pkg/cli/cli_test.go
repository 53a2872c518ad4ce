package cli

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/engine"
)

func newServeFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().StringP(FlagConfig, "c", "", "")
	config.RegisterFlags(cmd.Flags())
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadServeConfig_Defaults(t *testing.T) {
	cfg, err := loadServeConfig(newServeFlags(t))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultServerConfiguration(), cfg)
}

func TestLoadServeConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 2000\nhost: 0.0.0.0\nlogLevel: error\nshutdownTimeout: 9\n"), 0o600))

	t.Setenv("MOCKSERVER_PORT", "3000")
	t.Setenv("MOCKSERVER_LOG_LEVEL", "info")

	cfg, err := loadServeConfig(newServeFlags(t, "--config", path, "--log-level", "debug"))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port, "env beats file")
	assert.Equal(t, "debug", cfg.LogLevel, "flag beats env")
	assert.Equal(t, "0.0.0.0", cfg.Host, "file beats default")
	assert.Equal(t, 9, cfg.ShutdownTimeout)
	assert.Equal(t, config.PortDisabled, cfg.SecurePort)
}

func TestLoadServeConfig_Invalid(t *testing.T) {
	_, err := loadServeConfig(newServeFlags(t, "--port", "70000"))
	assert.Error(t, err)

	_, err = loadServeConfig(newServeFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.ErrorIs(t, err, config.ErrFileNotFound)
}

func TestReadMatcher(t *testing.T) {
	m, err := readMatcher("")
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = readMatcher(`{"path": "/a", "method": "GET"}`)
	require.NoError(t, err)
	assert.Equal(t, "/a", m.Path)

	path := filepath.Join(t.TempDir(), "m.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"path": "/b"}`), 0o600))
	m, err = readMatcher("@" + path)
	require.NoError(t, err)
	assert.Equal(t, "/b", m.Path)

	_, err = readMatcher(`{"path": 1}`)
	assert.Error(t, err)
}

func TestControlCommands(t *testing.T) {
	cfg := config.DefaultServerConfiguration()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	srv, err := engine.NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	defer func() { _ = srv.Stop(context.Background()) }()
	url := "http://" + srv.PlainAddr()

	file := filepath.Join(t.TempDir(), "exp.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
- httpRequest:
    method: GET
    path: /hello
  httpResponse:
    statusCode: 200
    body: hi
`), 0o600))

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(append(args, "--server-url", url))
		require.NoError(t, rootCmd.ExecuteContext(context.Background()))
		return out.String()
	}

	out := run("expect", "--file", file)
	assert.Contains(t, out, "/hello")

	resp, err := http.Get(url + "/hello")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Contains(t, run("clear", "--matcher", `{"path": "/hello"}`), "cleared")

	resp, err = http.Get(url + "/hello")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Contains(t, run("reset"), "reset")
	assert.Contains(t, run("stop"), "stop requested")
	<-srv.Done()
}

func TestVersion(t *testing.T) {
	out := versionInfo()
	assert.NotEmpty(t, out.Version)
	assert.NotEmpty(t, out.Go)
}
