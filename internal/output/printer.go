// Package output renders responses and errors of the kirimi CLI.
package output

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/kroma-labs/kirimi-go/httpclient"
)

// Format selects how a response is printed.
type Format string

const (
	// FormatText prints the status line, headers and a pretty body.
	FormatText Format = "text"
	// FormatYAML prints status, headers and body as one YAML document.
	FormatYAML Format = "yaml"
	// FormatBody prints the body only, as received.
	FormatBody Format = "body"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatYAML, FormatBody:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, yaml or body)", s)
	}
}

// Printer writes responses to out and errors to errOut.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	format Format
	colors *Scheme
}

// NewPrinter returns a Printer. Colors are used only when out is a
// terminal and noColor is false.
func NewPrinter(out, errOut io.Writer, format Format, noColor bool) *Printer {
	return &Printer{
		out:    out,
		errOut: errOut,
		format: format,
		colors: newScheme(!noColor && isTerminal(out)),
	}
}

// Response prints a received response with its already read body.
func (p *Printer) Response(resp *http.Response, body []byte) error {
	switch p.format {
	case FormatBody:
		_, err := p.out.Write(body)
		return err
	case FormatYAML:
		return p.yaml(resp, body)
	default:
		return p.text(resp, body)
	}
}

func (p *Printer) text(resp *http.Response, body []byte) error {
	var b strings.Builder

	if resp.Request != nil {
		fmt.Fprintf(&b, "%s %s\n", p.colors.Method.Sprint(resp.Request.Method), p.colors.URL.Sprint(resp.Request.URL))
	}
	fmt.Fprintf(&b, "%s %s\n", resp.Proto, p.colors.status(resp.StatusCode).Sprint(resp.Status))

	for _, k := range sortedKeys(resp.Header) {
		for _, v := range resp.Header[k] {
			fmt.Fprintf(&b, "%s: %s\n", p.colors.HeaderKey.Sprint(k), v)
		}
	}

	if len(body) > 0 {
		b.WriteString("\n")
		b.WriteString(Pretty(body))
		if !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(p.out, b.String())
	return err
}

type yamlResponse struct {
	Status  int               `yaml:"status"`
	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    any               `yaml:"body,omitempty"`
}

func (p *Printer) yaml(resp *http.Response, body []byte) error {
	doc := yamlResponse{
		Status:  resp.StatusCode,
		Headers: make(map[string]string, len(resp.Header)),
	}
	if resp.Request != nil {
		doc.URL = resp.Request.URL.String()
	}
	for k := range resp.Header {
		doc.Headers[k] = strings.Join(resp.Header.Values(k), ", ")
	}

	if len(body) > 0 {
		var parsed any
		if err := json.Unmarshal(body, &parsed); err == nil {
			doc.Body = parsed
		} else {
			doc.Body = string(body)
		}
	}

	enc := yaml.NewEncoder(p.out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// Error prints a failed call. For a rejected status it includes the
// resolved URL, the status and the response body.
func (p *Printer) Error(err error) {
	var b strings.Builder

	var verr *httpclient.ValidationError
	var herr *httpclient.Error
	switch {
	case errors.As(err, &verr):
		fmt.Fprintf(&b, "%s %s\n", p.colors.Error.Sprint("error:"), verr.Error())
	case errors.As(err, &herr):
		fmt.Fprintf(&b, "%s %s (%s)\n", p.colors.Error.Sprint("error:"), herr.Error(), herr.Kind)
		if herr.Request != nil {
			fmt.Fprintf(&b, "  %s %s\n", p.colors.Dim.Sprint("url:"), herr.Request.URL)
		}
		if code := herr.StatusCode(); code != 0 {
			fmt.Fprintf(&b, "  %s %s\n", p.colors.Dim.Sprint("status:"), p.colors.status(code).Sprint(code))
		}
		if herr.Response != nil && herr.Response.Body != nil {
			body, _ := io.ReadAll(io.LimitReader(herr.Response.Body, 4<<10))
			_ = herr.Response.Body.Close()
			if len(body) > 0 {
				fmt.Fprintf(&b, "  %s\n%s\n", p.colors.Dim.Sprint("body:"), Pretty(body))
			}
		}
	default:
		fmt.Fprintf(&b, "%s %s\n", p.colors.Error.Sprint("error:"), err)
	}

	_, _ = io.WriteString(p.errOut, b.String())
}

// Pretty indents body when it is JSON and returns it as is otherwise.
func Pretty(body []byte) string {
	if !gjson.ValidBytes(body) {
		return string(body)
	}
	return gjson.GetBytes(body, "@pretty").Raw
}

func sortedKeys(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
