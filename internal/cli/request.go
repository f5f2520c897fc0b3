package cli

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kroma-labs/kirimi-go/config"
	"github.com/kroma-labs/kirimi-go/httpclient"
	"github.com/kroma-labs/kirimi-go/internal/output"
)

// requestFlags are the per-call flags shared by every verb.
type requestFlags struct {
	headers      []string
	query        []string
	baseURL      string
	timeout      time.Duration
	data         string
	json         string
	requestID    string
	selectPath   string
	format       string
	schema       string
	acceptStatus string
}

func newRequestCmd(method string) *cobra.Command {
	var f requestFlags

	cmd := &cobra.Command{
		Use:   commandName(method) + " TARGET",
		Short: fmt.Sprintf("Send a %s request to TARGET", method),
		Long: fmt.Sprintf(`Send a %s request to TARGET.

TARGET is resolved against the base URL of the profile (or --base-url)
when it is relative.`, method),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, method, args[0], &f)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&f.headers, "header", "H", nil, `Header "Key: Value" (repeatable)`)
	flags.StringArrayVarP(&f.query, "query", "q", nil, `Query parameter "key=value" (repeatable)`)
	flags.StringVar(&f.baseURL, "base-url", "", "Base URL relative targets are resolved against")
	flags.DurationVarP(&f.timeout, "timeout", "t", 0, "Request timeout (0 disables)")
	flags.StringVarP(&f.data, "data", "d", "", "Raw request body, or @file to read it from a file")
	flags.StringVar(&f.json, "json", "", "JSON payload; sent with Content-Type: application/json")
	flags.StringVar(&f.requestID, "request-id", "", "Header to carry a generated request ID")
	flags.StringVar(&f.selectPath, "select", "", "Print only the value at this gjson path")
	flags.StringVarP(&f.format, "output", "o", "text", "Output format: text, yaml or body")
	flags.StringVar(&f.schema, "schema", "", "Validate the JSON response against this JSON Schema file")
	flags.StringVar(&f.acceptStatus, "accept-status", "", `Accepted status codes, "lo-hi" or "code"`)

	return cmd
}

func runRequest(cmd *cobra.Command, method, target string, f *requestFlags) error {
	format, err := output.ParseFormat(f.format)
	if err != nil {
		return err
	}
	noColor, _ := cmd.Flags().GetBool("no-color")
	printer := output.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), format, noColor)

	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	opts, err := f.options(cmd)
	if err != nil {
		return err
	}
	opts = append(opts, httpclient.WithMethod(method))

	resp, err := client.Fetch(cmd.Context(), target, opts...)
	if err != nil {
		printer.Error(err)
		return errReported
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if f.schema != "" {
		schema, err := os.ReadFile(f.schema)
		if err != nil {
			return fmt.Errorf("read schema: %w", err)
		}
		if err := output.ValidateSchema(body, schema); err != nil {
			return err
		}
	}

	if f.selectPath != "" {
		selected, err := output.Select(body, f.selectPath)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(selected))
		return err
	}

	return printer.Response(resp, body)
}

// newClient builds the base client from the selected profile and the
// persistent flags.
func newClient(cmd *cobra.Command) (*httpclient.Client, error) {
	path, _ := cmd.Flags().GetString("config")
	name, _ := cmd.Flags().GetString("profile")
	debug, _ := cmd.Flags().GetBool("debug")

	profile, err := config.Load(config.LoadOptions{Path: path, Profile: name})
	if err != nil {
		return nil, err
	}

	opts, err := profile.Options()
	if err != nil {
		return nil, err
	}

	if debug || profile.Debug {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
			Level(zerolog.DebugLevel).
			With().Timestamp().Logger()
		opts = append(opts, httpclient.WithLogger(logger), httpclient.WithDebug(true))
	}

	return httpclient.New(opts...), nil
}

// options converts the call flags. Only flags that were given produce an
// option, so profile values stay in effect otherwise.
func (f *requestFlags) options(cmd *cobra.Command) ([]httpclient.Option, error) {
	var opts []httpclient.Option

	if len(f.headers) > 0 {
		headers := make(http.Header, len(f.headers))
		for _, h := range f.headers {
			k, v, err := config.ParseHeader(h)
			if err != nil {
				return nil, err
			}
			headers.Add(k, v)
		}
		opts = append(opts, httpclient.WithHeaders(headers))
	}

	if len(f.query) > 0 {
		query := make(url.Values, len(f.query))
		for _, q := range f.query {
			k, v, err := config.ParseQuery(q)
			if err != nil {
				return nil, err
			}
			query.Add(k, v)
		}
		opts = append(opts, httpclient.WithSearchParams(query))
	}

	changed := cmd.Flags().Changed
	if changed("base-url") {
		opts = append(opts, httpclient.WithBaseURL(f.baseURL))
	}
	if changed("timeout") {
		opts = append(opts, httpclient.WithTimeout(f.timeout))
	}
	if changed("request-id") {
		opts = append(opts, httpclient.WithRequestID(f.requestID))
	}

	if changed("accept-status") {
		lo, hi, err := config.ParseStatusRange(f.acceptStatus)
		if err != nil {
			return nil, err
		}
		opts = append(opts, httpclient.WithStatusCodeValidator(httpclient.AcceptStatusRange(lo, hi)))
	}

	if changed("data") {
		body, err := readData(f.data)
		if err != nil {
			return nil, err
		}
		opts = append(opts, httpclient.WithBody(body))
	}

	if changed("json") {
		var payload any
		if err := json.Unmarshal([]byte(f.json), &payload); err != nil {
			return nil, fmt.Errorf("--json: %w", err)
		}
		opts = append(opts, httpclient.WithJSON(payload))
	}

	return opts, nil
}

// readData returns the body for -d. "@path" reads a file, "@-" stdin.
func readData(data string) (io.Reader, error) {
	path, ok := strings.CutPrefix(data, "@")
	if !ok {
		return strings.NewReader(data), nil
	}
	if path == "-" {
		return os.Stdin, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("--data: %w", err)
	}
	return strings.NewReader(string(b)), nil
}
