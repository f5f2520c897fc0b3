package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTimeout is the cause of a call whose timeout elapsed before the
// transport returned.
var ErrTimeout = errors.New("request timed out")

// ErrRateLimited is returned when a request is rejected due to rate limiting.
var ErrRateLimited = errors.New("rate limit exceeded")

// ErrorKind classifies the stage at which a call failed.
type ErrorKind string

const (
	// KindResolve: the target could not be resolved to an absolute URL.
	KindResolve ErrorKind = "resolve"
	// KindEncode: the request could not be built (e.g. JSON encoding failed).
	KindEncode ErrorKind = "encode"
	// KindTimeout: the timeout elapsed before a response arrived.
	KindTimeout ErrorKind = "timeout"
	// KindTransport: the transport failed, including caller cancellation.
	KindTransport ErrorKind = "transport"
	// KindStatus: a response arrived but its status was rejected.
	KindStatus ErrorKind = "status"
)

// Error is the error returned by every failed call, apart from the
// pre-flight *ValidationError.
//
// It carries the cause along with the diagnostics that were available:
//
//	resp, err := client.Get(ctx, "users")
//	var herr *httpclient.Error
//	if errors.As(err, &herr) && herr.Response != nil {
//	    defer herr.Response.Body.Close()
//	    body, _ := io.ReadAll(herr.Response.Body)
//	    log.Printf("%s %s: %s", herr.Request.Method, herr.Request.URL, body)
//	}
//
// When Response is set, the caller owns its body and must close it.
type Error struct {
	// Kind is the stage at which the call failed.
	Kind ErrorKind

	// Err is the underlying cause.
	Err error

	// Request is the request that was sent, when one was built and the
	// configuration allows passing it.
	Request *http.Request

	// Response is the response that was received, when one was received and
	// the configuration allows passing it.
	Response *http.Response

	// Config is the merged configuration that was in effect for the call.
	Config Config
}

// Error returns the cause's message.
func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return "<nil>"
	}
	return e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call failed because its timeout elapsed.
func (e *Error) Timeout() bool {
	return errors.Is(e.Err, ErrTimeout)
}

// StatusCode returns the received status code, or 0 if no response was
// received or attached.
func (e *Error) StatusCode() int {
	var se *StatusError
	if errors.As(e.Err, &se) {
		return se.StatusCode
	}
	if e.Response != nil {
		return e.Response.StatusCode
	}
	return 0
}

// StatusError reports a response rejected by the status code validator.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request responded with %d", e.StatusCode)
}

// ValidationError reports configuration that is rejected before any
// network activity. It is returned as is, never wrapped in *Error.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return "httpclient: invalid " + e.Field + ": " + e.Reason
}

// StatusCodeValidator decides whether a response status counts as success.
type StatusCodeValidator func(code int) bool

// DefaultStatusCodeValidator accepts 200 through 399.
func DefaultStatusCodeValidator(code int) bool {
	return code >= 200 && code < 400
}

// AcceptStatusRange returns a validator accepting lo <= code <= hi.
func AcceptStatusRange(lo, hi int) StatusCodeValidator {
	return func(code int) bool {
		return code >= lo && code <= hi
	}
}

// AcceptStatus returns a validator accepting exactly the given codes.
func AcceptStatus(codes ...int) StatusCodeValidator {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return func(code int) bool {
		_, ok := set[code]
		return ok
	}
}
