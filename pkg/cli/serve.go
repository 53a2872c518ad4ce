package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/engine"
	"github.com/getmockd/mockserver/pkg/logging"
)

// FlagConfig names the server configuration file flag.
const FlagConfig = "config"

// serveCmd runs the server in the foreground.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mock server (foreground)",
	Long: `Start the mock server in the foreground.

Settings are layered: built-in defaults, then the --config file, then
MOCKSERVER_* environment variables, then flags. A negative port disables its
listener and 0 picks a free port. With --proxy-target the data plane
forwards every GET and POST instead of matching expectations.`,
	Example: `  # Plain listener on 1080
  mockserver serve --port 1080

  # Load expectations and reload them on change
  mockserver serve --port 1080 --initialization-file expectations.yaml --watch

  # Proxy to a local service, TLS on 1443 with a generated certificate
  mockserver serve --port 1080 --secure-port 1443 --keystore-dir ./certs --proxy-target http://localhost:8080

  # Same, configured from the environment
  MOCKSERVER_PORT=1080 MOCKSERVER_LOG_LEVEL=info mockserver serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadServeConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg, cmd.ErrOrStderr())
	},
}

// loadServeConfig layers defaults, the config file, environment and flags.
func loadServeConfig(cmd *cobra.Command) (*config.ServerConfiguration, error) {
	v := viper.New()
	if err := config.Bind(v, cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	cfg := config.DefaultServerConfiguration()
	if path := v.GetString(FlagConfig); path != "" {
		if err := config.LoadServerConfigInto(path, cfg); err != nil {
			return nil, err
		}
	}
	config.Apply(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.ServerConfiguration, stderr io.Writer) error {
	logCfg := logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: logging.ParseFormat(cfg.LogFormat),
		Output: stderr,
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = f.Close() }()
		logCfg.Tee = f
	}
	log := logging.New(logCfg)

	srv, err := engine.NewServer(cfg, engine.WithLogger(log))
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	if addr := srv.PlainAddr(); addr != "" {
		fmt.Fprintf(stderr, "mockserver listening on http://%s\n", addr)
	}
	if addr := srv.SecureAddr(); addr != "" {
		fmt.Fprintf(stderr, "mockserver listening on https://%s\n", addr)
	}
	return srv.Wait()
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP(FlagConfig, "c", "", "Path to a YAML or JSON server configuration file")
	config.RegisterFlags(serveCmd.Flags())
}
