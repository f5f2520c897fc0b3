package cli

import (
	"os"

	"github.com/kroma-labs/kirimi-go/internal/echoserver"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newEchoServerCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "echo-server",
		Short: "Run a local server that echoes requests back as JSON",
		Long: `echo-server answers /get, /post, /put, /patch, /delete and /anything/*
with a JSON description of the request, /status/{code} with that status,
/delay/{ms} after the given delay, /headers with the request headers and
/metrics with Prometheus counters for everything it served.
It stops on SIGINT or SIGTERM after draining in-flight requests.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: colorDisabled(cmd)}).
				With().Timestamp().Logger()

			srv, err := echoserver.Listen(addr, echoserver.WithLogger(logger))
			if err != nil {
				return err
			}
			return srv.Serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", echoserver.DefaultAddr, "Listen address")
	return cmd
}

func colorDisabled(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("no-color")
	return v || os.Getenv("NO_COLOR") != ""
}
