package echoserver

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
)

// maxDelay caps /delay so a stray request cannot hold a connection forever.
const maxDelay = 30 * time.Second

// Echo is the document returned by the echo routes.
type Echo struct {
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Args      map[string]string `json:"args"`
	Headers   map[string]string `json:"headers"`
	Data      string            `json:"data"`
	JSON      any               `json:"json"`
	RequestID string            `json:"request_id,omitempty"`
}

func routes(m *serverMetrics) http.Handler {
	r := chi.NewRouter()
	r.Use(m.middleware)

	r.Method(http.MethodGet, "/metrics", m.handler())

	r.Get("/get", writeEcho)
	r.Post("/post", writeEcho)
	r.Put("/put", writeEcho)
	r.Patch("/patch", writeEcho)
	r.Delete("/delete", writeEcho)
	r.HandleFunc("/anything", writeEcho)
	r.HandleFunc("/anything/*", writeEcho)

	r.Get("/headers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"headers": flatten(r.Header)})
	})
	r.HandleFunc("/status/{code}", statusHandler)
	r.Get("/delay/{ms}", delayHandler)
	r.Get("/panic", func(http.ResponseWriter, *http.Request) {
		panic("requested panic")
	})

	return r
}

func writeEcho(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	doc := Echo{
		Method:    r.Method,
		URL:       r.URL.String(),
		Args:      map[string]string{},
		Headers:   flatten(r.Header),
		Data:      string(body),
		RequestID: RequestIDFromContext(r.Context()),
	}
	for k := range r.URL.Query() {
		doc.Args[k] = r.URL.Query().Get(k)
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") && len(body) > 0 {
		_ = json.Unmarshal(body, &doc.JSON)
	}

	writeJSON(w, http.StatusOK, doc)
}

func statusHandler(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(chi.URLParam(r, "code"))
	if err != nil || code < 100 || code > 599 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status code"})
		return
	}
	writeJSON(w, code, map[string]int{"status": code})
}

func delayHandler(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(chi.URLParam(r, "ms"))
	if err != nil || ms < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid delay"})
		return
	}

	delay := min(time.Duration(ms)*time.Millisecond, maxDelay)
	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-t.C:
		writeJSON(w, http.StatusOK, map[string]int64{"delay_ms": delay.Milliseconds()})
	case <-r.Context().Done():
	}
}

func flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
