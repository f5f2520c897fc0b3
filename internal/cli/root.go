// Package cli implements the kirimi command tree.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// errReported marks a failure that was already printed.
var errReported = errors.New("reported")

// NewRootCmd builds the command tree writing to stdout and stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:     "kirimi",
		Short:   "Compose and send HTTP requests from layered defaults",
		Version: version,
		Long: `kirimi sends one HTTP request per invocation. Defaults come from a
profile in a config file (or KIRIMI_* variables); flags override them for
the call. Non-2xx/3xx statuses, timeouts and transport failures exit with
status 1 and print the resolved URL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().String("config", "", "Config file (default: ./kirimi.yaml or ~/.config/kirimi/kirimi.yaml)")
	root.PersistentFlags().String("profile", "", "Profile to use from the config file")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")
	root.PersistentFlags().Bool("debug", false, "Log requests, responses and cURL equivalents to stderr")

	for _, method := range []string{"GET", "HEAD", "OPTIONS", "PATCH", "POST", "PUT", "DELETE"} {
		root.AddCommand(newRequestCmd(method))
	}
	root.AddCommand(newEchoServerCmd())

	return root
}

// Execute runs the CLI with os.Args and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			root.PrintErrln("error:", err)
		}
		return 1
	}
	return 0
}

func commandName(method string) string {
	return strings.ToLower(method)
}
