package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Error type classifications for the error.type attribute.
const (
	ErrorTypeTimeout           = "timeout"
	ErrorTypeConnectionRefused = "connection_refused"
	ErrorTypeDNSError          = "dns_error"
	ErrorTypeTLSError          = "tls_error"
	ErrorTypeCancelled         = "cancelled"
	ErrorTypeConnectionReset   = "connection_reset"
	ErrorTypeEOF               = "eof"
	ErrorTypeRateLimited       = "rate_limited"
	ErrorTypeEncode            = "encode"
	ErrorTypeUnknown           = "unknown"
)

// instrumentation is shared by a Client and the clients derived from it.
type instrumentation struct {
	tracer      trace.Tracer
	metrics     *metrics
	propagator  propagation.TextMapPropagator
	serviceName string
}

// newInstrumentation reads the client-level OpenTelemetry settings of cfg,
// falling back to the global providers.
func newInstrumentation(cfg Config) *instrumentation {
	tp := cfg.tracerProvider.get(otel.GetTracerProvider())
	mp := cfg.meterProvider.get(otel.GetMeterProvider())

	// A meter that refuses an instrument leaves metrics nil, which every
	// record method tolerates.
	m, _ := newMetrics(mp.Meter(scope))

	return &instrumentation{
		tracer:  tp.Tracer(scope),
		metrics: m,
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
		serviceName: cfg.serviceName.get(""),
	}
}

func (in *instrumentation) baseAttributes() []attribute.KeyValue {
	if in.serviceName == "" {
		return nil
	}
	return []attribute.KeyValue{attribute.String("http.client.name", in.serviceName)}
}

// tracked is the instrumentation state of one call.
type tracked struct {
	in     *instrumentation
	ctx    context.Context
	span   trace.Span
	start  time.Time
	method string
	target *url.URL

	ended atomic.Bool
}

// begin starts the client span of a call to target and counts it as active.
// The returned state's ctx carries the span.
func (in *instrumentation) begin(ctx context.Context, method string, target *url.URL) *tracked {
	ctx, span := in.tracer.Start(ctx, "HTTP "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(in.requestAttributes(method, target)...),
	)
	in.metrics.recordActiveRequestStart(ctx, in.baseAttributes())

	return &tracked{
		in:     in,
		ctx:    ctx,
		span:   span,
		start:  time.Now(),
		method: method,
		target: target,
	}
}

// inject writes the trace context into the request headers and records
// the request body size when it is known.
func (t *tracked) inject(req *http.Request) {
	t.in.propagator.Inject(t.ctx, propagation.HeaderCarrier(req.Header))

	if req.ContentLength > 0 {
		t.span.SetAttributes(attribute.Int64("http.request.body.size", req.ContentLength))
		t.in.metrics.recordRequestBodySize(t.ctx, req.ContentLength, t.in.baseAttributes())
	}
	if ua := req.UserAgent(); ua != "" {
		t.span.SetAttributes(attribute.String("user_agent.original", ua))
	}
}

// succeed records an accepted response. The span stays open until the
// response body is closed.
func (t *tracked) succeed(resp *http.Response) {
	t.span.SetAttributes(responseAttributes(resp)...)

	// An accepted 4xx/5xx is still an error for the span.
	if errorType := errorTypeFromStatusCode(resp.StatusCode); errorType != "" {
		t.span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
		t.span.SetAttributes(attribute.String("error.type", errorType))
	}

	t.in.metrics.recordRequestDuration(t.ctx, time.Since(t.start),
		t.in.metricsAttributes(t.method, t.target, resp, ""))
	t.endActive()
}

// fail records a failed call and ends the span.
func (t *tracked) fail(kind ErrorKind, err error, resp *http.Response) {
	errorType := errorTypeForKind(kind, err, resp)

	if resp != nil {
		t.span.SetAttributes(responseAttributes(resp)...)
	}
	setSpanError(t.span, err, errorType)

	base := t.in.baseAttributes()
	t.in.metrics.recordError(t.ctx, errorType, base)
	if kind == KindTimeout {
		t.in.metrics.recordTimeout(t.ctx, base)
	}
	t.in.metrics.recordRequestDuration(t.ctx, time.Since(t.start),
		t.in.metricsAttributes(t.method, t.target, resp, errorType))

	t.endActive()
	t.span.End()
}

// bodyClosed records the bytes read from an accepted response body.
func (t *tracked) bodyClosed(n int64) {
	t.in.metrics.recordResponseBodySize(t.ctx, n, t.in.baseAttributes())
}

func (t *tracked) endActive() {
	if t.ended.CompareAndSwap(false, true) {
		t.in.metrics.recordActiveRequestEnd(t.ctx, t.in.baseAttributes())
	}
}

// requestAttributes returns span attributes for the request.
func (in *instrumentation) requestAttributes(method string, target *url.URL) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 8)
	attrs = append(attrs, in.baseAttributes()...)
	attrs = append(attrs, attribute.String("http.request.method", method))

	if target != nil {
		attrs = append(attrs, attribute.String("url.full", target.String()))
		attrs = append(attrs, attribute.String("url.scheme", target.Scheme))
		attrs = append(attrs, serverAttributes(target)...)
	}
	return attrs
}

// metricsAttributes returns attributes for metrics recording.
func (in *instrumentation) metricsAttributes(
	method string,
	target *url.URL,
	resp *http.Response,
	errorType string,
) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 6)
	attrs = append(attrs, in.baseAttributes()...)
	attrs = append(attrs, attribute.String("http.request.method", method))

	if target != nil {
		attrs = append(attrs, serverAttributes(target)...)
	}
	if resp != nil {
		attrs = append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))
		if errorType == "" {
			errorType = errorTypeFromStatusCode(resp.StatusCode)
		}
	}
	if errorType != "" {
		attrs = append(attrs, attribute.String("error.type", errorType))
	}
	return attrs
}

// serverAttributes returns server.address and server.port, defaulting the
// port from the scheme.
func serverAttributes(u *url.URL) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)

	if host := u.Hostname(); host != "" {
		attrs = append(attrs, attribute.String("server.address", host))
	}

	if port := u.Port(); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			attrs = append(attrs, attribute.Int("server.port", p))
		}
		return attrs
	}
	switch u.Scheme {
	case "http":
		attrs = append(attrs, attribute.Int("server.port", 80))
	case "https":
		attrs = append(attrs, attribute.Int("server.port", 443))
	}
	return attrs
}

// responseAttributes returns span attributes for the response.
func responseAttributes(resp *http.Response) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	attrs = append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.ContentLength > 0 {
		attrs = append(attrs, attribute.Int64("http.response.body.size", resp.ContentLength))
	}

	if resp.Proto != "" {
		// "HTTP/1.1" -> "1.1", "HTTP/2.0" -> "2"
		version := strings.TrimPrefix(resp.Proto, "HTTP/")
		if version == "2.0" {
			version = "2"
		}
		attrs = append(attrs, attribute.String("network.protocol.version", version))
	}
	return attrs
}

// errorTypeForKind returns the error.type of a failed call.
func errorTypeForKind(kind ErrorKind, err error, resp *http.Response) string {
	switch kind {
	case KindStatus:
		if resp != nil {
			return strconv.Itoa(resp.StatusCode)
		}
		var se *StatusError
		if errors.As(err, &se) {
			return strconv.Itoa(se.StatusCode)
		}
	case KindTimeout:
		return ErrorTypeTimeout
	case KindEncode:
		return ErrorTypeEncode
	case KindTransport:
		if errors.Is(err, ErrRateLimited) {
			return ErrorTypeRateLimited
		}
	}
	return classifyError(err)
}

// classifyError returns an error.type classification for the given error.
func classifyError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrTimeout) {
		return ErrorTypeTimeout
	}

	if errors.Is(err, context.Canceled) {
		return ErrorTypeCancelled
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorTypeDNSError
	}

	var tlsRecordErr *tls.RecordHeaderError
	if errors.As(err, &tlsRecordErr) {
		return ErrorTypeTLSError
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return ErrorTypeTLSError
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrorTypeConnectionRefused
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return ErrorTypeConnectionReset
	}
	if errors.Is(err, io.EOF) {
		return ErrorTypeEOF
	}

	// Fallback for errors that lost their type on the way up.
	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "timeout") {
		return ErrorTypeTimeout
	}
	if strings.Contains(errStr, "connection refused") {
		return ErrorTypeConnectionRefused
	}
	if strings.Contains(errStr, "connection reset") {
		return ErrorTypeConnectionReset
	}
	if strings.Contains(errStr, "no such host") || strings.Contains(errStr, "dns") {
		return ErrorTypeDNSError
	}
	if strings.Contains(errStr, "tls") || strings.Contains(errStr, "certificate") ||
		strings.Contains(errStr, "x509") {
		return ErrorTypeTLSError
	}
	if strings.Contains(errStr, "eof") {
		return ErrorTypeEOF
	}

	return ErrorTypeUnknown
}

// errorTypeFromStatusCode returns error.type for HTTP status codes.
// Per OTel semconv, the status code itself is used as the error type for 4xx/5xx.
func errorTypeFromStatusCode(statusCode int) string {
	if statusCode >= 400 {
		return strconv.Itoa(statusCode)
	}
	return ""
}

// setSpanError records an error on the span with proper status and attributes.
func setSpanError(span trace.Span, err error, errorType string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errorType != "" {
		span.SetAttributes(attribute.String("error.type", errorType))
	}
}
