package echoserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	scope = "github.com/kroma-labs/kirimi-go/internal/echoserver"

	// DefaultAddr is the listen address used when none is given.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout bounds how long in-flight requests may drain.
	ShutdownTimeout = 10 * time.Second
)

// Option configures the echo server.
type Option func(*config)

type config struct {
	logger         zerolog.Logger
	tracerProvider trace.TracerProvider
	propagator     propagation.TextMapPropagator
	registry       *prometheus.Registry
}

// WithLogger sets the request and lifecycle logger. Logging is disabled by default.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithTracerProvider sets the provider for server spans. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.tracerProvider = tp }
}

// WithPropagator sets the propagator used to extract the caller's trace
// context. Defaults to W3C trace context.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *config) { c.propagator = p }
}

// WithRegistry sets the Prometheus registry served at /metrics. Each
// handler gets a fresh registry by default.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *config) { c.registry = registry }
}

// Handler returns the echo routes wrapped in the middleware chain.
func Handler(opts ...Option) http.Handler {
	cfg := config{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tracerProvider == nil {
		cfg.tracerProvider = otel.GetTracerProvider()
	}
	if cfg.propagator == nil {
		cfg.propagator = propagation.TraceContext{}
	}
	if cfg.registry == nil {
		cfg.registry = prometheus.NewRegistry()
	}

	return Chain(
		Recovery(cfg.logger),
		RequestID(),
		Tracing(cfg.tracerProvider, cfg.propagator),
		Logger(cfg.logger),
	)(routes(newServerMetrics(cfg.registry)))
}

// Server is a running echo server.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     zerolog.Logger
}

// Listen binds addr and prepares the server. Use ":0" for a random port.
func Listen(addr string, opts ...Option) (*Server, error) {
	if addr == "" {
		addr = DefaultAddr
	}

	cfg := config{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &Server{
		httpServer: &http.Server{
			Handler:           Handler(opts...),
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: ln,
		logger:   cfg.logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is cancelled, then drains in-flight requests for
// up to ShutdownTimeout.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.Addr()).Msg("echo server listening")
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		return s.shutdown(context.WithoutCancel(ctx))
	}
}

func (s *Server) shutdown(ctx context.Context) error {
	s.logger.Info().Dur("timeout", ShutdownTimeout).Msg("shutting down echo server")

	ctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("echo server shutdown failed")
		return err
	}

	s.logger.Info().Msg("echo server stopped")
	return nil
}
