// Package cli implements the mockserver command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockserver/pkg/client"
)

// DefaultServerURL is where control commands look for a server.
const DefaultServerURL = "http://localhost:1080"

var (
	// Persistent flags available to all subcommands
	serverURL  string
	waitFor    time.Duration
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mockserver",
	Short: "mockserver is an HTTP mock and proxy server",
	Long: `mockserver answers HTTP requests from registered expectations, or forwards
them to an upstream server through request and response filters.

The same port serves the control plane: PUT /stop, /reset, /clear and
/dumpToLog are commands, and a PUT to any other path registers an expectation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits on error.
func Execute() {
	os.Exit(Main())
}

// Main runs the root command with os.Args and returns the exit code.
func Main() int {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server-url", DefaultServerURL, "Base URL of the server control commands talk to")
	rootCmd.PersistentFlags().DurationVar(&waitFor, "wait", 0, "Keep retrying refused connections for this long")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
}

func newClient() *client.Client {
	return client.New(serverURL, client.WithRetry(waitFor))
}
