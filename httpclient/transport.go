package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// Transport sends one request and returns its response.
//
// Cancellation is carried by the request context; a Transport must return
// promptly once it is done. *http.Transport satisfies Transport, as does any
// http.RoundTripper.
type Transport interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls f(req).
func (f TransportFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// ClientTransport sends requests through c.Do, so the client's redirect
// policy, cookie jar and timeout apply.
func ClientTransport(c *http.Client) Transport {
	return TransportFunc(c.Do)
}

// Compile-time interface checks.
var (
	_ Transport = (*http.Transport)(nil)
	_ Transport = TransportFunc(nil)
)

// TransportConfig holds the connection settings of the default transport.
// Use DefaultTransportConfig() and modify the fields you need.
//
// Example:
//
//	tc := httpclient.DefaultTransportConfig()
//	tc.MaxIdleConnsPerHost = 50
//	client := httpclient.New(httpclient.WithTransportConfig(tc))
type TransportConfig struct {
	// MaxIdleConns caps idle keep-alive connections across all hosts.
	// Default: 100
	MaxIdleConns int

	// MaxIdleConnsPerHost caps idle keep-alive connections per host.
	// Default: 20
	MaxIdleConnsPerHost int

	// MaxConnsPerHost caps total connections per host. 0 means unlimited.
	// Default: 100
	MaxConnsPerHost int

	// IdleConnTimeout is how long an idle connection stays pooled.
	// Default: 90s
	IdleConnTimeout time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake.
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers after the
	// request is written. 0 disables it.
	// Default: 0
	ResponseHeaderTimeout time.Duration

	// DialTimeout bounds establishing the TCP connection.
	// Default: 5s
	DialTimeout time.Duration

	// KeepAlive is the TCP keep-alive probe interval.
	// Default: 30s
	KeepAlive time.Duration

	// TLSConfig is the TLS client configuration. nil uses the defaults.
	TLSConfig *tls.Config

	// FollowRedirects lets the underlying http.Client follow redirects.
	// When false, 3xx responses are returned as is.
	// Default: true
	FollowRedirects bool

	// ForceHTTP2 forces HTTP/2 negotiation.
	// Default: false
	ForceHTTP2 bool
}

// DefaultTransportConfig returns balanced settings for general use.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialTimeout:         5 * time.Second,
		KeepAlive:           30 * time.Second,
		FollowRedirects:     true,
	}
}

// LowLatencyTransportConfig returns settings that fail fast on slow
// connection setup.
func LowLatencyTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   25,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 3 * time.Second,
		DialTimeout:           2 * time.Second,
		KeepAlive:             15 * time.Second,
		FollowRedirects:       true,
		ForceHTTP2:            true,
	}
}

// buildTransport creates the default transport from tc.
func buildTransport(tc TransportConfig) Transport {
	dialer := &net.Dialer{
		Timeout:   tc.DialTimeout,
		KeepAlive: tc.KeepAlive,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          tc.MaxIdleConns,
		MaxIdleConnsPerHost:   tc.MaxIdleConnsPerHost,
		MaxConnsPerHost:       tc.MaxConnsPerHost,
		IdleConnTimeout:       tc.IdleConnTimeout,
		TLSHandshakeTimeout:   tc.TLSHandshakeTimeout,
		ResponseHeaderTimeout: tc.ResponseHeaderTimeout,
		TLSClientConfig:       tc.TLSConfig,
		ForceAttemptHTTP2:     tc.ForceHTTP2,
	}

	client := &http.Client{Transport: transport}
	if !tc.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return ClientTransport(client)
}
