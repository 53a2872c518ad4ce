package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockserver/pkg/cli/internal/output"
	"github.com/getmockd/mockserver/pkg/codec"
	"github.com/getmockd/mockserver/pkg/config"
	"github.com/getmockd/mockserver/pkg/mock"
)

var (
	matcherFile     string
	expectationFile string
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().Stop(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "stop requested")
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove every expectation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "expectations reset")
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove expectations selected by a matcher",
	Long: `Remove expectations whose request matcher is selected by the matcher in
--matcher. Without --matcher every expectation is removed.`,
	Example: `  mockserver clear --matcher '{"path": "/orders/*"}'
  mockserver clear --matcher @orders.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		template, err := readMatcher(matcherFile)
		if err != nil {
			return err
		}
		if err := newClient().Clear(cmd.Context(), template); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "expectations cleared")
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:     "dump",
	Aliases: []string{"dumpToLog"},
	Short:   "Write expectations selected by a matcher to the server log",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		template, err := readMatcher(matcherFile)
		if err != nil {
			return err
		}
		if err := newClient().DumpToLog(cmd.Context(), template); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "expectations dumped")
		return nil
	},
}

var expectCmd = &cobra.Command{
	Use:   "expect",
	Short: "Register expectations from a JSON or YAML file",
	Example: `  mockserver expect --file expectations.yaml
  mockserver expect --file hello.json --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if expectationFile == "" {
			return fmt.Errorf("--file is required")
		}
		exps, err := config.LoadExpectationsFromFile(expectationFile)
		if err != nil {
			return err
		}
		if len(exps) == 0 {
			output.Warn(cmd.ErrOrStderr(), "%s contains no expectations", expectationFile)
			return nil
		}

		c := newClient()
		stored := make([]*mock.Expectation, 0, len(exps))
		for _, exp := range exps {
			s, err := c.Expect(cmd.Context(), exp)
			if err != nil {
				return err
			}
			stored = append(stored, s)
		}

		if jsonOutput {
			return output.JSON(cmd.OutOrStdout(), stored)
		}
		tw := output.Table(cmd.OutOrStdout())
		fmt.Fprintln(tw, "ID\tMETHOD\tPATH\tSTATUS")
		for _, s := range stored {
			method, path := "*", "*"
			if m := s.HTTPRequest; m != nil {
				if m.Method != "" {
					method = m.Method
				}
				switch {
				case m.Path != "":
					path = m.Path
				case m.PathPattern != "":
					path = "~" + m.PathPattern
				}
			}
			status := "-"
			if s.HTTPResponse != nil {
				status = strconv.Itoa(s.HTTPResponse.StatusCode)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, method, path, status)
		}
		return tw.Flush()
	},
}

// readMatcher accepts inline JSON or @file. Empty means match all.
func readMatcher(arg string) (*mock.RequestMatcher, error) {
	if arg == "" {
		return nil, nil
	}
	data := []byte(arg)
	if arg[0] == '@' {
		var err error
		data, err = os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("failed to read matcher: %w", err)
		}
	}
	return codec.DecodeMatcher(data)
}

func init() {
	clearCmd.Flags().StringVarP(&matcherFile, "matcher", "m", "", "Matcher as inline JSON or @file")
	dumpCmd.Flags().StringVarP(&matcherFile, "matcher", "m", "", "Matcher as inline JSON or @file")
	expectCmd.Flags().StringVarP(&expectationFile, "file", "f", "", "Expectation file (JSON or YAML, one or a list)")

	rootCmd.AddCommand(stopCmd, resetCmd, clearCmd, dumpCmd, expectCmd)
}
