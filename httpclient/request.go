package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// buildRequest creates the request described by cfg for the resolved target.
//
// An explicit body always wins. Otherwise a JSON payload is encoded and
// Content-Type is forced to application/json, replacing any configured
// value. With neither, the request has no body.
func buildRequest(ctx context.Context, cfg Config, target *url.URL) (*http.Request, error) {
	body, isJSON, err := requestBody(cfg)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method(), target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: build request: %w", err)
	}

	req.Header = cfg.Headers()
	if isJSON {
		req.Header.Set("Content-Type", "application/json")
	}

	if header := cfg.requestID.get(""); header != "" && req.Header.Get(header) == "" {
		req.Header.Set(header, uuid.NewString())
	}

	return req, nil
}

func requestBody(cfg Config) (io.Reader, bool, error) {
	if cfg.HasBody() {
		return cfg.body.value, false, nil
	}

	payload, ok := cfg.JSON()
	if !ok {
		return nil, false, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("httpclient: encode JSON body: %w", err)
	}
	return bytes.NewReader(data), true, nil
}

// peekBody returns a copy of the request body without consuming it, when
// the request can replay its body.
func peekBody(req *http.Request) []byte {
	if req.GetBody == nil || req.ContentLength == 0 {
		return nil
	}
	rc, err := req.GetBody()
	if err != nil {
		return nil
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil
	}
	return data
}
