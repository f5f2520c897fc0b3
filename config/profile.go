// Package config loads named request profiles from a file and the
// environment and turns them into httpclient options.
//
// A config file holds any number of profiles:
//
//	default_profile: httpbin
//	profiles:
//	  httpbin:
//	    base_url: https://httpbin.org/
//	    headers: ["Accept: application/json"]
//	    query: ["source=kirimi"]
//	    timeout: 5s
//	    request_id_header: X-Request-ID
//	    accept_status: 200-299
//	    rate_limit:
//	      requests_per_second: 5
//	      burst: 1
//	      wait: true
//
// YAML, JSON and TOML files are accepted. KIRIMI_BASE_URL, KIRIMI_TIMEOUT,
// KIRIMI_DEBUG, KIRIMI_REQUEST_ID_HEADER and KIRIMI_ACCEPT_STATUS override
// the selected profile, and a .env file next to the config file is read
// first.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kroma-labs/kirimi-go/httpclient"
)

// ErrInvalidProfile is wrapped by every validation failure of a Profile.
var ErrInvalidProfile = errors.New("invalid profile")

// Profile is one named set of request defaults.
type Profile struct {
	Name string `mapstructure:"-"`

	BaseURL         string        `mapstructure:"base_url"`
	Headers         []string      `mapstructure:"headers"`
	Query           []string      `mapstructure:"query"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RequestIDHeader string        `mapstructure:"request_id_header"`
	AcceptStatus    string        `mapstructure:"accept_status"`
	Debug           bool          `mapstructure:"debug"`
	ServiceName     string        `mapstructure:"service_name"`
	RateLimit       RateLimit     `mapstructure:"rate_limit"`
}

// RateLimit is the file form of httpclient.RateLimitConfig.
type RateLimit struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	Wait              bool    `mapstructure:"wait"`
}

// Validate checks the profile without building anything.
func (p Profile) Validate() error {
	if p.BaseURL != "" {
		u, err := url.Parse(p.BaseURL)
		if err != nil {
			return fmt.Errorf("%w: base_url: %w", ErrInvalidProfile, err)
		}
		if !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("%w: base_url %q is not absolute", ErrInvalidProfile, p.BaseURL)
		}
	}

	if p.Timeout < 0 || p.Timeout > httpclient.MaxTimeout {
		return fmt.Errorf("%w: timeout %s out of range [0, %s]", ErrInvalidProfile, p.Timeout, httpclient.MaxTimeout)
	}

	for _, h := range p.Headers {
		if _, _, err := ParseHeader(h); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
		}
	}
	for _, q := range p.Query {
		if _, _, err := ParseQuery(q); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
		}
	}

	if p.AcceptStatus != "" {
		if _, _, err := ParseStatusRange(p.AcceptStatus); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
		}
	}

	if p.RateLimit.RequestsPerSecond < 0 || p.RateLimit.Burst < 0 {
		return fmt.Errorf("%w: rate_limit must not be negative", ErrInvalidProfile)
	}

	return nil
}

// Options converts the profile into client options. Only fields the
// profile sets produce an option, so a call can still override each one.
func (p Profile) Options() ([]httpclient.Option, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var opts []httpclient.Option
	if p.BaseURL != "" {
		opts = append(opts, httpclient.WithBaseURL(p.BaseURL))
	}

	if len(p.Headers) > 0 {
		headers := make(http.Header, len(p.Headers))
		for _, h := range p.Headers {
			k, v, _ := ParseHeader(h)
			headers.Add(k, v)
		}
		opts = append(opts, httpclient.WithHeaders(headers))
	}

	if len(p.Query) > 0 {
		query := make(url.Values, len(p.Query))
		for _, q := range p.Query {
			k, v, _ := ParseQuery(q)
			query.Add(k, v)
		}
		opts = append(opts, httpclient.WithSearchParams(query))
	}

	if p.Timeout > 0 {
		opts = append(opts, httpclient.WithTimeout(p.Timeout))
	}
	if p.RequestIDHeader != "" {
		opts = append(opts, httpclient.WithRequestID(p.RequestIDHeader))
	}
	if p.AcceptStatus != "" {
		lo, hi, _ := ParseStatusRange(p.AcceptStatus)
		opts = append(opts, httpclient.WithStatusCodeValidator(httpclient.AcceptStatusRange(lo, hi)))
	}
	if p.Debug {
		opts = append(opts, httpclient.WithDebug(true))
	}

	serviceName := p.ServiceName
	if serviceName == "" && p.Name != "" {
		serviceName = p.Name
	}
	if serviceName != "" {
		opts = append(opts, httpclient.WithServiceName(serviceName))
	}

	if p.RateLimit.RequestsPerSecond > 0 {
		opts = append(opts, httpclient.WithRateLimit(httpclient.RateLimitConfig{
			RequestsPerSecond: p.RateLimit.RequestsPerSecond,
			Burst:             p.RateLimit.Burst,
			WaitOnLimit:       p.RateLimit.Wait,
		}))
	}

	return opts, nil
}

// ParseHeader splits "Key: Value".
func ParseHeader(s string) (string, string, error) {
	k, v, ok := strings.Cut(s, ":")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", "", fmt.Errorf("header %q: want \"Key: Value\"", s)
	}
	return k, strings.TrimSpace(v), nil
}

// ParseQuery splits "key=value". The value may be empty.
func ParseQuery(s string) (string, string, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return "", "", fmt.Errorf("query %q: want \"key=value\"", s)
	}
	return k, v, nil
}

// ParseStatusRange parses "lo-hi" or a single "code" into an inclusive
// range of status codes.
func ParseStatusRange(s string) (int, int, error) {
	loStr, hiStr, isRange := strings.Cut(strings.TrimSpace(s), "-")
	if !isRange {
		hiStr = loStr
	}

	lo, err := parseStatus(loStr)
	if err != nil {
		return 0, 0, fmt.Errorf("accept status %q: %w", s, err)
	}
	hi, err := parseStatus(hiStr)
	if err != nil {
		return 0, 0, fmt.Errorf("accept status %q: %w", s, err)
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("accept status %q: %d is above %d", s, lo, hi)
	}
	return lo, hi, nil
}

func parseStatus(s string) (int, error) {
	code, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if code < 100 || code > 599 {
		return 0, fmt.Errorf("%d is not an HTTP status", code)
	}
	return code, nil
}
