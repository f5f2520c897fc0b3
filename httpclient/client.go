package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client composes requests from a base configuration and per-call options
// and sends each through a Transport exactly once.
//
// Create a Client using New():
//
//	client := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com/v1/"),
//	    httpclient.WithHeader("Accept", "application/json"),
//	    httpclient.WithTimeout(5*time.Second),
//	)
//
//	resp, err := client.Post(ctx, "users",
//	    httpclient.WithJSON(map[string]any{"name": "John"}),
//	)
//
// A Client is immutable and safe for concurrent use.
type Client struct {
	// base is the configuration every call is merged onto.
	base Config

	// transport is used when neither base nor call sets one.
	transport Transport

	// limiter, when set, takes a token before every dispatch.
	limiter     *rate.Limiter
	waitOnLimit bool

	inst *instrumentation
}

// New creates a Client from base options.
//
// Body, JSON payload and signal are one-shot call values; given to New they
// are ignored.
//
// Example - sending through a test transport:
//
//	mock := httpclient.NewMockTransport().StubResponse(http.StatusOK, `{"ok":true}`)
//	client := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithTransport(mock),
//	)
func New(opts ...Option) *Client {
	base := newConfig(opts...).baseOnly()

	rl := base.rateLimit.get(RateLimitConfig{})
	return &Client{
		base:        base,
		transport:   buildTransport(base.transportConfig.get(DefaultTransportConfig())),
		limiter:     newLimiter(rl),
		waitOnLimit: rl.WaitOnLimit,
		inst:        newInstrumentation(base),
	}
}

// Derive returns a new Client whose base configuration is c's merged with
// opts, using the same rules as a call. c is not modified.
//
// The derived client shares c's default transport, rate limiter and
// instrumentation unless opts replace the settings they are built from.
//
// Example:
//
//	admin := client.Derive(httpclient.WithHeader("Authorization", "Bearer "+token))
func (c *Client) Derive(opts ...Option) *Client {
	derived := newConfig(opts...)
	base := mergeConfig(c.base, derived).baseOnly()

	d := &Client{
		base:        base,
		transport:   c.transport,
		limiter:     c.limiter,
		waitOnLimit: c.waitOnLimit,
		inst:        c.inst,
	}

	if derived.transportConfig.set {
		d.transport = buildTransport(derived.transportConfig.value)
	}
	if derived.rateLimit.set {
		d.limiter = newLimiter(derived.rateLimit.value)
		d.waitOnLimit = derived.rateLimit.value.WaitOnLimit
	}
	if derived.tracerProvider.set || derived.meterProvider.set || derived.serviceName.set {
		d.inst = newInstrumentation(base)
	}

	return d
}

// Config returns the client's base configuration.
func (c *Client) Config() Config {
	return c.base
}

// Fetch sends one request to target, which is resolved against the base
// URL when relative.
//
// The configuration in effect is the client's base merged with opts:
//   - scalar values from opts win over the base,
//   - headers from opts win; base headers fill the keys opts don't set,
//   - query parameters from opts replace base parameters of the same name
//     and are then set onto the resolved URL, replacing parameters already
//     in target.
//
// A timeout of 2^32 ms or more is rejected with a *ValidationError before
// anything is sent. Every other failure is returned as an *Error carrying
// the merged configuration, plus the request and response when available
// and allowed. A response is rejected when the status code validator
// refuses its status; the cause is then a *StatusError.
//
// On success the response is returned as received and the caller must
// close its body.
func (c *Client) Fetch(ctx context.Context, target string, opts ...Option) (*http.Response, error) {
	cfg := mergeConfig(c.base, newConfig(opts...))
	if err := validateTimeout(cfg.Timeout()); err != nil {
		return nil, err
	}

	cl := c.newCall(cfg)
	u, err := parseTarget(target)
	if err != nil {
		return nil, cl.fail(KindResolve, err, nil)
	}
	return c.send(ctx, cl, u)
}

// FetchURL is like Fetch with an already parsed target. A nil target
// resolves to the base URL.
func (c *Client) FetchURL(ctx context.Context, target *url.URL, opts ...Option) (*http.Response, error) {
	cfg := mergeConfig(c.base, newConfig(opts...))
	if err := validateTimeout(cfg.Timeout()); err != nil {
		return nil, err
	}

	if target == nil {
		target = &url.URL{}
	}
	return c.send(ctx, c.newCall(cfg), target)
}

// Get sends a GET request. See Fetch.
func (c *Client) Get(ctx context.Context, target string, opts ...Option) (*http.Response, error) {
	return c.verb(ctx, http.MethodGet, target, opts)
}

// Head sends a HEAD request. See Fetch.
func (c *Client) Head(ctx context.Context, target string, opts ...Option) (*http.Response, error) {
	return c.verb(ctx, http.MethodHead, target, opts)
}

// Options sends an OPTIONS request. See Fetch.
func (c *Client) Options(ctx context.Context, target string, opts ...Option) (*http.Response, error) {
	return c.verb(ctx, http.MethodOptions, target, opts)
}

// Patch sends a PATCH request. See Fetch.
func (c *Client) Patch(ctx context.Context, target string, opts ...Option) (*http.Response, error) {
	return c.verb(ctx, http.MethodPatch, target, opts)
}

// Post sends a POST request. See Fetch.
func (c *Client) Post(ctx context.Context, target string, opts ...Option) (*http.Response, error) {
	return c.verb(ctx, http.MethodPost, target, opts)
}

// Put sends a PUT request. See Fetch.
func (c *Client) Put(ctx context.Context, target string, opts ...Option) (*http.Response, error) {
	return c.verb(ctx, http.MethodPut, target, opts)
}

// Delete sends a DELETE request. See Fetch.
func (c *Client) Delete(ctx context.Context, target string, opts ...Option) (*http.Response, error) {
	return c.verb(ctx, http.MethodDelete, target, opts)
}

// verb calls Fetch with the method forced, whatever opts say. opts is
// never appended to in place.
func (c *Client) verb(ctx context.Context, method, target string, opts []Option) (*http.Response, error) {
	return c.Fetch(ctx, target, append(opts[:len(opts):len(opts)], WithMethod(method))...)
}

// call is the state of one Fetch.
type call struct {
	cfg    Config
	logger zerolog.Logger
	debug  bool
	start  time.Time

	tr  *tracked
	cc  *cancellation
	req *http.Request
}

func (c *Client) newCall(cfg Config) *call {
	return &call{
		cfg:    cfg,
		logger: cfg.loggerOrDefault(),
		debug:  cfg.debug.get(false),
		start:  time.Now(),
	}
}

// transportFor returns the transport of a call, behind the limiter when
// the client has one.
func (c *Client) transportFor(cfg Config) Transport {
	t := cfg.transport.get(c.transport)
	if t == nil {
		t = c.transport
	}
	if c.limiter != nil {
		t = &rateLimitTransport{next: t, limiter: c.limiter, wait: c.waitOnLimit}
	}
	return t
}

func (c *Client) send(ctx context.Context, cl *call, target *url.URL) (*http.Response, error) {
	cfg := cl.cfg

	resolved, err := resolveURL(target, cfg.BaseURL(), cfg.searchParams)
	if err != nil {
		return nil, cl.fail(KindResolve, err, nil)
	}

	cl.tr = c.inst.begin(ctx, cfg.Method(), resolved)
	cl.cc = armCancellation(cl.tr.ctx, cfg)

	req, err := buildRequest(cl.cc.ctx, cfg, resolved)
	if err != nil {
		return nil, cl.fail(KindEncode, err, nil)
	}
	cl.req = req

	cl.tr.inject(req)
	if cl.debug {
		logRequest(cl.logger, req, cl.cc.mode)
	}

	resp, err := c.transportFor(cfg).RoundTrip(req)
	cl.cc.disarmTimer()

	if err != nil {
		err = cl.cc.cause(err)
		kind := KindTransport
		if errors.Is(err, ErrTimeout) {
			kind = KindTimeout
		}
		return nil, cl.fail(kind, err, nil)
	}
	if resp == nil {
		return nil, cl.fail(KindTransport, errors.New("httpclient: transport returned no response"), nil)
	}

	if validate := cfg.StatusCodeValidator(); validate != nil && !validate(resp.StatusCode) {
		return nil, cl.fail(KindStatus, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}, resp)
	}

	cl.tr.succeed(resp)
	if cl.debug {
		logResponse(cl.logger, resp, time.Since(cl.start))
	}

	tr, cc := cl.tr, cl.cc
	resp.Body = newTrackedBody(tr.span, resp.Body, func(n int64) {
		tr.bodyClosed(n)
		cc.release()
	})
	return resp, nil
}

// fail normalizes a failure of the call. A response that is not attached
// to the error is closed here; an attached one keeps the call's context
// alive until the caller closes its body.
func (cl *call) fail(kind ErrorKind, cause error, resp *http.Response) error {
	herr := &Error{
		Kind:   kind,
		Err:    cause,
		Config: cl.cfg,
	}
	if cl.req != nil && cl.cfg.PassRequestInError() {
		herr.Request = cl.req
	}

	if cl.tr != nil {
		cl.tr.fail(kind, cause, resp)
	}

	switch {
	case resp != nil && cl.cfg.PassResponseInError():
		herr.Response = resp
		cc := cl.cc
		resp.Body = newTrackedBody(nil, resp.Body, func(int64) {
			cc.release()
		})
	default:
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if cl.cc != nil {
			cl.cc.release()
		}
	}

	if cl.debug {
		logFailure(cl.logger, herr, time.Since(cl.start))
	}
	return herr
}
