// Package httpclient composes HTTP requests from layered configuration and
// sends each through a transport exactly once.
//
// A Client holds a base configuration. Every call merges its own options
// onto that base, resolves the target against the base URL, arms a timeout
// or an explicit cancellation signal, encodes a JSON payload when asked,
// sends the request and validates the response status. Every failure comes
// back as an *Error that carries the merged configuration together with the
// request and the response when they exist.
//
// # Quick Start
//
//	client := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com/v1/"),
//	    httpclient.WithHeader("Accept", "application/json"),
//	    httpclient.WithTimeout(5*time.Second),
//	)
//
//	resp, err := client.Get(ctx, "users", httpclient.WithSearchParam("page", "2"))
//	if err != nil {
//	    return err
//	}
//	defer resp.Body.Close()
//
// # Merge Rules
//
// Options given to a call override the client's base options:
//
//   - scalar settings (timeout, method, validator, ...) from the call win,
//   - headers from the call win; base headers fill the keys the call lacks,
//     compared case-insensitively,
//   - query parameters from the call replace base parameters with the same
//     name, and the result is set onto the resolved URL.
//
// Derive builds a new Client whose base is the parent's merged with more
// options, using the same rules:
//
//	admin := client.Derive(httpclient.WithHeader("Authorization", "Bearer "+token))
//
// # Bodies
//
// WithBody sends a reader as is. WithJSON encodes a value and forces
// Content-Type: application/json. When both are given, WithBody wins and
// the content type is left alone.
//
// # Cancellation
//
// WithTimeout cancels a call whose transport has not returned in time; the
// error then matches ErrTimeout. WithSignal hands cancellation to the
// caller instead, and no timer is armed for that call. The context passed to
// a call always remains the parent of the request context.
//
// A timeout of 2^32 milliseconds or more is rejected with a *ValidationError
// before anything is sent.
//
// # Errors
//
//	resp, err := client.Get(ctx, "users/42")
//	var herr *httpclient.Error
//	switch {
//	case errors.Is(err, httpclient.ErrTimeout):
//	    // timed out
//	case errors.As(err, &herr) && herr.Kind == httpclient.KindStatus:
//	    defer herr.Response.Body.Close()
//	    log.Printf("status %d from %s", herr.StatusCode(), herr.Request.URL)
//	}
//
// # Observability
//
// Each call opens a client span named "HTTP {METHOD}" and injects W3C trace
// context into the request headers. Metrics follow OpenTelemetry semantic
// conventions:
//
//   - http.client.request.duration
//   - http.client.request.body.size, http.client.response.body.size
//   - http.client.active_requests
//   - http.client.request.error (by error.type)
//   - http.client.timeouts
//
// WithDebug logs requests, responses and failures through the zerolog
// logger set by WithLogger, with a cURL equivalent for each request.
//
// # Testing
//
// MockTransport stubs responses without a network:
//
//	mock := httpclient.NewMockTransport().StubPath("/users", http.StatusOK, `[]`)
//	client := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithMockTransport(mock),
//	)
package httpclient
