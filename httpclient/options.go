package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/kirimi-go/httpclient"
)

// setting is a configuration value that remembers whether it was set.
//
// An unset setting falls through to the next layer during merging, which
// lets a call explicitly override a base value with a zero value
// (e.g. WithTimeout(0) disables a base timeout for one call).
type setting[T any] struct {
	value T
	set   bool
}

func some[T any](v T) setting[T] {
	return setting[T]{value: v, set: true}
}

// or returns s if it was set, otherwise fallback.
func (s setting[T]) or(fallback setting[T]) setting[T] {
	if s.set {
		return s
	}
	return fallback
}

// get returns the value if set, otherwise def.
func (s setting[T]) get(def T) T {
	if s.set {
		return s.value
	}
	return def
}

// Config is an immutable snapshot of request configuration.
//
// The same type describes the three layers that take part in a call:
//   - the base configuration held by a Client (built by New or Derive),
//   - the call configuration built from the options given to Fetch or a verb,
//   - the merged configuration that was in effect for one call.
//
// The merged configuration of a failed call is available as Error.Config.
// Accessors return copies, so a Config can be inspected without affecting
// the Client or later calls.
type Config struct {
	baseURL      setting[string]
	headers      http.Header
	searchParams url.Values
	timeout      setting[time.Duration]
	method       setting[string]

	// One-shot call values. Stripped from base configurations.
	body   setting[io.Reader]
	json   setting[any]
	signal setting[context.Context]

	statusCodeValidator setting[StatusCodeValidator]
	passRequestInError  setting[bool]
	passResponseInError setting[bool]

	transport setting[Transport]
	timer     setting[Timer]
	logger    setting[zerolog.Logger]
	debug     setting[bool]
	requestID setting[string]

	// Client-level settings, read when a Client is built by New or Derive.
	transportConfig setting[TransportConfig]
	rateLimit       setting[RateLimitConfig]
	serviceName     setting[string]
	tracerProvider  setting[trace.TracerProvider]
	meterProvider   setting[metric.MeterProvider]
}

// newConfig builds a Config from options.
func newConfig(opts ...Option) Config {
	var cfg Config
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	return cfg
}

// baseOnly returns a copy of cfg without the one-shot call values.
func (cfg Config) baseOnly() Config {
	cfg.body = setting[io.Reader]{}
	cfg.json = setting[any]{}
	cfg.signal = setting[context.Context]{}
	return cfg
}

// BaseURL returns the base URL relative targets are resolved against.
func (cfg Config) BaseURL() string {
	return cfg.baseURL.get("")
}

// Headers returns a copy of the configured headers.
func (cfg Config) Headers() http.Header {
	if cfg.headers == nil {
		return http.Header{}
	}
	return cfg.headers.Clone()
}

// SearchParams returns a copy of the configured query parameters.
func (cfg Config) SearchParams() url.Values {
	out := make(url.Values, len(cfg.searchParams))
	for k, vs := range cfg.searchParams {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// Timeout returns the request timeout. Zero means no timeout.
func (cfg Config) Timeout() time.Duration {
	return cfg.timeout.get(0)
}

// Method returns the HTTP method. Defaults to GET.
func (cfg Config) Method() string {
	return cfg.method.get(http.MethodGet)
}

// HasBody reports whether an explicit body was configured.
func (cfg Config) HasBody() bool {
	return cfg.body.set && cfg.body.value != nil
}

// JSON returns the JSON payload and whether one was configured.
func (cfg Config) JSON() (any, bool) {
	return cfg.json.value, cfg.json.set && cfg.json.value != nil
}

// Signal returns the caller-supplied cancellation signal, if any.
func (cfg Config) Signal() (context.Context, bool) {
	return cfg.signal.value, cfg.signal.set && cfg.signal.value != nil
}

// PassRequestInError reports whether failures carry the request. Defaults to true.
func (cfg Config) PassRequestInError() bool {
	return cfg.passRequestInError.get(true)
}

// PassResponseInError reports whether failures carry the response. Defaults to true.
func (cfg Config) PassResponseInError() bool {
	return cfg.passResponseInError.get(true)
}

// StatusCodeValidator returns the validator applied to response status codes.
// A nil validator accepts every status.
func (cfg Config) StatusCodeValidator() StatusCodeValidator {
	return cfg.statusCodeValidator.get(DefaultStatusCodeValidator)
}

func (cfg Config) timerOrDefault() Timer {
	return cfg.timer.get(systemTimer{})
}

func (cfg Config) loggerOrDefault() zerolog.Logger {
	return cfg.logger.get(zerolog.Nop())
}

// =============================================================================
// Options
// =============================================================================

// Option configures a Config.
//
// The same options are accepted by New and Derive (base configuration) and
// by Fetch and the verb helpers (call configuration). A call option
// overrides the base value of the same field; see Fetch for the merge rules.
type Option func(*Config)

// WithBaseURL sets the base URL relative targets are resolved against.
//
// Resolution follows RFC 3986, so a base of "https://api.example.com/v1/"
// and a target of "users" yields "https://api.example.com/v1/users", while
// an absolute target ignores the base entirely.
//
// Example:
//
//	client := httpclient.New(httpclient.WithBaseURL("https://api.example.com/v1/"))
//	resp, err := client.Get(ctx, "users")
func WithBaseURL(baseURL string) Option {
	return func(cfg *Config) {
		cfg.baseURL = some(baseURL)
	}
}

// WithHeader sets a single header, replacing earlier values for the key
// within the same layer.
func WithHeader(key, value string) Option {
	return func(cfg *Config) {
		if cfg.headers == nil {
			cfg.headers = make(http.Header)
		}
		cfg.headers.Set(key, value)
	}
}

// WithHeaders sets several headers. Each key replaces earlier values for the
// same key within the layer. Keys are compared case-insensitively.
//
// Example:
//
//	client := httpclient.New(
//	    httpclient.WithHeaders(http.Header{
//	        "Accept":    {"application/json"},
//	        "X-Api-Key": {key},
//	    }),
//	)
func WithHeaders(headers http.Header) Option {
	return func(cfg *Config) {
		if cfg.headers == nil {
			cfg.headers = make(http.Header, len(headers))
		}
		for k, vs := range headers {
			cfg.headers[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
		}
	}
}

// WithSearchParam sets a single query parameter.
func WithSearchParam(key, value string) Option {
	return func(cfg *Config) {
		if cfg.searchParams == nil {
			cfg.searchParams = make(url.Values)
		}
		cfg.searchParams.Set(key, value)
	}
}

// WithSearchParams sets several query parameters. Each key replaces earlier
// values for the same key within the layer.
func WithSearchParams(params url.Values) Option {
	return func(cfg *Config) {
		if cfg.searchParams == nil {
			cfg.searchParams = make(url.Values, len(params))
		}
		for k, vs := range params {
			cfg.searchParams[k] = append([]string(nil), vs...)
		}
	}
}

// WithTimeout sets the time budget for obtaining a response.
//
// When the timeout elapses before the transport returns, the request is
// cancelled and the call fails with ErrTimeout. Zero disables the timeout.
// Values of 2^32 milliseconds or more (above MaxTimeout) are rejected
// with a *ValidationError.
// A timeout has no effect when WithSignal is used for the same call.
func WithTimeout(d time.Duration) Option {
	return func(cfg *Config) {
		cfg.timeout = some(d)
	}
}

// WithMethod sets the HTTP method. The verb helpers set it for you.
func WithMethod(method string) Option {
	return func(cfg *Config) {
		cfg.method = some(method)
	}
}

// WithBody sets the request body. Only meaningful per call.
//
// An explicit body always wins over WithJSON.
func WithBody(body io.Reader) Option {
	return func(cfg *Config) {
		cfg.body = some(body)
	}
}

// WithJSON sets a payload that is encoded as the JSON request body, with
// Content-Type forced to application/json. Only meaningful per call.
//
// The payload is ignored when WithBody is also given.
//
// Example:
//
//	resp, err := client.Post(ctx, "users",
//	    httpclient.WithJSON(map[string]any{"name": "John"}),
//	)
func WithJSON(v any) Option {
	return func(cfg *Config) {
		cfg.json = some(v)
	}
}

// WithSignal supplies an explicit cancellation signal for one call.
//
// The request is cancelled as soon as signal is done, with the signal's
// cause. No timeout timer is armed for a call that has a signal, whatever
// WithTimeout says. Only meaningful per call.
func WithSignal(signal context.Context) Option {
	return func(cfg *Config) {
		cfg.signal = some(signal)
	}
}

// WithStatusCodeValidator sets the predicate deciding which response status
// codes count as success. A nil validator accepts every status.
//
// Default: DefaultStatusCodeValidator (200-399).
func WithStatusCodeValidator(v StatusCodeValidator) Option {
	return func(cfg *Config) {
		cfg.statusCodeValidator = some(v)
	}
}

// WithPassRequestInError controls whether Error.Request is populated.
//
// Default: true
func WithPassRequestInError(enabled bool) Option {
	return func(cfg *Config) {
		cfg.passRequestInError = some(enabled)
	}
}

// WithPassResponseInError controls whether Error.Response is populated
// when a response was received. When disabled, the response body of a
// rejected response is closed before the error is returned.
//
// Default: true
func WithPassResponseInError(enabled bool) Option {
	return func(cfg *Config) {
		cfg.passResponseInError = some(enabled)
	}
}

// WithTransport sets the transport requests are sent through.
//
// Example - sending through a custom http.Client:
//
//	client := httpclient.New(
//	    httpclient.WithTransport(httpclient.ClientTransport(&http.Client{
//	        CheckRedirect: func(*http.Request, []*http.Request) error {
//	            return http.ErrUseLastResponse
//	        },
//	    })),
//	)
func WithTransport(t Transport) Option {
	return func(cfg *Config) {
		cfg.transport = some(t)
	}
}

// WithTransportConfig tunes the default transport built by New.
// Ignored when WithTransport is used.
func WithTransportConfig(tc TransportConfig) Option {
	return func(cfg *Config) {
		cfg.transportConfig = some(tc)
	}
}

// WithRateLimit limits the rate of requests sent by a Client and the clients
// derived from it without their own limit. Read by New and Derive.
//
// Example:
//
//	client := httpclient.New(
//	    httpclient.WithRateLimit(httpclient.RateLimitConfig{
//	        RequestsPerSecond: 10,
//	        Burst:             2,
//	        WaitOnLimit:       true,
//	    }),
//	)
func WithRateLimit(rl RateLimitConfig) Option {
	return func(cfg *Config) {
		cfg.rateLimit = some(rl)
	}
}

// WithTimer replaces the timer used to enforce timeouts.
func WithTimer(t Timer) Option {
	return func(cfg *Config) {
		cfg.timer = some(t)
	}
}

// WithLogger sets the zerolog logger used for debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *Config) {
		cfg.logger = some(logger)
	}
}

// WithDebug enables request/response logging at debug level, including an
// equivalent cURL command for each request.
//
// Example:
//
//	client := httpclient.New(
//	    httpclient.WithLogger(zerolog.New(os.Stderr).Level(zerolog.DebugLevel)),
//	    httpclient.WithDebug(true),
//	)
func WithDebug(enabled bool) Option {
	return func(cfg *Config) {
		cfg.debug = some(enabled)
	}
}

// WithRequestID adds a random UUID under the given header to every request
// that does not already carry one. An empty header name disables it.
func WithRequestID(header string) Option {
	return func(cfg *Config) {
		cfg.requestID = some(header)
	}
}

// WithServiceName sets an identifier for this client in traces and metrics.
// It is added as the "http.client.name" attribute. Read by New and Derive.
func WithServiceName(name string) Option {
	return func(cfg *Config) {
		cfg.serviceName = some(name)
	}
}

// WithTracerProvider sets a custom OpenTelemetry TracerProvider.
// If not set, the global provider is used. Read by New and Derive.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *Config) {
		cfg.tracerProvider = some(tp)
	}
}

// WithMeterProvider sets a custom OpenTelemetry MeterProvider.
// If not set, the global provider is used. Read by New and Derive.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *Config) {
		cfg.meterProvider = some(mp)
	}
}
