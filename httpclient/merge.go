package httpclient

import (
	"net/http"
	"net/url"
)

// mergeConfig combines a base and a call configuration into the
// configuration for one call.
//
// Scalars set on call win over base. Headers from call win, base headers
// fill the keys call does not have. Query parameters from call replace base
// parameters of the same name. The result shares no maps with its inputs.
func mergeConfig(base, call Config) Config {
	return Config{
		baseURL:      call.baseURL.or(base.baseURL),
		headers:      mergeHeaders(base.headers, call.headers),
		searchParams: mergeSearchParams(base.searchParams, call.searchParams),
		timeout:      call.timeout.or(base.timeout),
		method:       call.method.or(base.method),

		body:   call.body.or(base.body),
		json:   call.json.or(base.json),
		signal: call.signal.or(base.signal),

		statusCodeValidator: call.statusCodeValidator.or(base.statusCodeValidator),
		passRequestInError:  call.passRequestInError.or(base.passRequestInError),
		passResponseInError: call.passResponseInError.or(base.passResponseInError),

		transport: call.transport.or(base.transport),
		timer:     call.timer.or(base.timer),
		logger:    call.logger.or(base.logger),
		debug:     call.debug.or(base.debug),
		requestID: call.requestID.or(base.requestID),

		transportConfig: call.transportConfig.or(base.transportConfig),
		rateLimit:       call.rateLimit.or(base.rateLimit),
		serviceName:     call.serviceName.or(base.serviceName),
		tracerProvider:  call.tracerProvider.or(base.tracerProvider),
		meterProvider:   call.meterProvider.or(base.meterProvider),
	}
}

// mergeHeaders starts from call and adds every base header whose key is
// absent from call. Keys are canonicalized, so the comparison is
// case-insensitive.
func mergeHeaders(base, call http.Header) http.Header {
	out := make(http.Header, len(base)+len(call))
	for k, vs := range call {
		out[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	for k, vs := range base {
		ck := http.CanonicalHeaderKey(k)
		if _, ok := out[ck]; ok {
			continue
		}
		out[ck] = append([]string(nil), vs...)
	}
	return out
}

// mergeSearchParams layers call over base; a key present in call replaces
// all base values for that key.
func mergeSearchParams(base, call url.Values) url.Values {
	out := make(url.Values, len(base)+len(call))
	for k, vs := range base {
		out[k] = append([]string(nil), vs...)
	}
	for k, vs := range call {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
