package httpclient

import (
	"fmt"
	"net/url"
	"strings"
)

// resolveURL resolves target against baseURL and applies params onto the
// resulting query string.
//
// Query parameters already in the resolved URL survive unless params names
// them, in which case params wins. A base URL's own query string is only
// kept when target carries neither a path nor a query of its own, as in
// standard reference resolution.
func resolveURL(target *url.URL, baseURL string, params url.Values) (*url.URL, error) {
	resolved := target
	if baseURL != "" {
		base, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("httpclient: invalid base URL %q: %w", baseURL, err)
		}
		resolved = base.ResolveReference(target)
	} else {
		clone := *target
		resolved = &clone
	}

	if !resolved.IsAbs() || resolved.Host == "" {
		return nil, fmt.Errorf("httpclient: cannot resolve %q to an absolute URL", target.String())
	}

	if len(params) > 0 {
		resolved.RawQuery = applyParams(resolved.RawQuery, params)
	}

	return resolved, nil
}

// applyParams drops the pairs of rawQuery whose key params names and
// appends params encoded. Other pairs are kept byte for byte, including
// ones url.ParseQuery would reject.
func applyParams(rawQuery string, params url.Values) string {
	var kept []string
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if _, replaced := params[key]; replaced {
			continue
		}
		kept = append(kept, pair)
	}

	if encoded := params.Encode(); encoded != "" {
		kept = append(kept, encoded)
	}
	return strings.Join(kept, "&")
}

// parseTarget parses a request target that may be relative.
func parseTarget(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("httpclient: invalid target %q: %w", target, err)
	}
	return u, nil
}
