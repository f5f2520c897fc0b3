package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Fetch_Headers(t *testing.T) {
	t.Parallel()

	type args struct {
		base []Option
		call []Option
	}

	tests := []struct {
		name   string
		args   args
		want   map[string]string
		absent []string
	}{
		{
			name: "given header in base and call, then call value wins",
			args: args{
				base: []Option{WithHeaders(http.Header{"Foo": {"1"}, "Bar": {"1"}})},
				call: []Option{WithHeader("Bar", "2")},
			},
			want: map[string]string{"Foo": "1", "Bar": "2"},
		},
		{
			name: "given header only in base, then base value is sent",
			args: args{
				base: []Option{WithHeader("X-Api-Key", "secret")},
			},
			want: map[string]string{"X-Api-Key": "secret"},
		},
		{
			name: "given keys differing in case, then they collide",
			args: args{
				base: []Option{WithHeaders(http.Header{"content-type": {"text/plain"}})},
				call: []Option{WithHeaders(http.Header{"CONTENT-TYPE": {"text/csv"}})},
			},
			want: map[string]string{"Content-Type": "text/csv"},
		},
		{
			name: "given no headers anywhere, then none are added",
			args: args{},
			absent: []string{
				"Content-Type",
				"X-Request-Id",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
			base := append([]Option{
				WithBaseURL("https://httpbin.org/"),
				WithMockTransport(mock),
			}, tt.args.base...)
			client := New(base...)

			resp, err := client.Get(context.Background(), "get", tt.args.call...)
			require.NoError(t, err)
			defer resp.Body.Close()

			req := mock.LastRequest()
			require.NotNil(t, req)
			for k, v := range tt.want {
				assert.Equal(t, v, req.Header.Get(k), k)
				assert.Len(t, req.Header.Values(k), 1, k)
			}
			for _, k := range tt.absent {
				assert.Empty(t, req.Header.Get(k), k)
			}
		})
	}
}

func TestClient_Fetch_SearchParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		baseURL      string
		target       string
		base         url.Values
		call         url.Values
		want         url.Values
		wantRawQuery string
	}{
		{
			name:    "given target, base and call params, then target < base < call",
			baseURL: "https://httpbin.org/?lorem=ipsum",
			target:  "get?foo=1&bar=1&baz=1",
			base:    url.Values{"bar": {"2"}, "baz": {"2"}},
			call:    url.Values{"baz": {"3"}},
			want:    url.Values{"foo": {"1"}, "bar": {"2"}, "baz": {"3"}},
		},
		{
			name:    "given target without path or query, then base URL query is kept",
			baseURL: "https://httpbin.org/get?lorem=ipsum",
			target:  "",
			call:    url.Values{"page": {"2"}},
			want:    url.Values{"lorem": {"ipsum"}, "page": {"2"}},
		},
		{
			name:    "given repeated values in call, then all are sent",
			baseURL: "https://httpbin.org/",
			target:  "get?tag=a",
			call:    url.Values{"tag": {"b", "c"}},
			want:    url.Values{"tag": {"b", "c"}},
		},
		{
			name:         "given target pair that does not parse as a query, then it survives params",
			baseURL:      "https://h.example/",
			target:       "get?a=1;b=2&keep=1",
			call:         url.Values{"x": {"y"}},
			wantRawQuery: "a=1;b=2&keep=1&x=y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockTransport().StubResponse(http.StatusOK, "")
			client := New(
				WithBaseURL(tt.baseURL),
				WithSearchParams(tt.base),
				WithMockTransport(mock),
			)

			resp, err := client.Get(context.Background(), tt.target, WithSearchParams(tt.call))
			require.NoError(t, err)
			defer resp.Body.Close()

			if tt.wantRawQuery != "" {
				assert.Equal(t, tt.wantRawQuery, mock.LastRequest().URL.RawQuery)
				return
			}
			assert.Equal(t, tt.want, mock.LastRequest().URL.Query())
		})
	}
}

func TestClient_Fetch_Timeout(t *testing.T) {
	t.Parallel()

	t.Run("given timeout of 2^32 ms, then fails validation without sending", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusOK, "")
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

		resp, err := client.Get(context.Background(), "get",
			WithTimeout(MaxTimeout+time.Millisecond))

		require.Error(t, err)
		assert.Nil(t, resp)

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "timeout", verr.Field)

		var herr *Error
		assert.False(t, errors.As(err, &herr), "validation errors are not wrapped")
		assert.Zero(t, mock.RequestCount())
	})

	t.Run("given timeout from base above max, then fails validation", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusOK, "")
		client := New(
			WithBaseURL("https://httpbin.org/"),
			WithTimeout(time.Duration(1<<40)*time.Millisecond),
			WithMockTransport(mock),
		)

		_, err := client.Get(context.Background(), "get")

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Zero(t, mock.RequestCount())
	})

	t.Run("given timeout of exactly max, then request is sent", func(t *testing.T) {
		t.Parallel()

		timer := &fakeTimer{}
		mock := NewMockTransport().StubResponse(http.StatusOK, "")
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock), WithTimer(timer))

		resp, err := client.Get(context.Background(), "get", WithTimeout(MaxTimeout))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, 1, mock.RequestCount())
		assert.Equal(t, 1, timer.count())
	})

	t.Run("given timer fires before response, then fails with timeout", func(t *testing.T) {
		t.Parallel()

		timer := &fakeTimer{}
		mock := NewMockTransport().
			StubResponse(http.StatusOK, "").
			WithDelay(time.Minute).
			OnRequest(func(*http.Request) { timer.fire() })
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock), WithTimer(timer))

		resp, err := client.Get(context.Background(), "get", WithTimeout(time.Second))

		require.Error(t, err)
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Contains(t, err.Error(), "request timed out")

		var herr *Error
		require.ErrorAs(t, err, &herr)
		assert.Equal(t, KindTimeout, herr.Kind)
		assert.True(t, herr.Timeout())
		assert.NotNil(t, herr.Request)
		assert.Equal(t, time.Second, herr.Config.Timeout())
	})

	t.Run("given slow transport and real timer, then fails with timeout", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusOK, "").WithDelay(5 * time.Second)
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

		start := time.Now()
		_, err := client.Get(context.Background(), "get", WithTimeout(20*time.Millisecond))

		require.ErrorIs(t, err, ErrTimeout)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("given success, then timer is stopped", func(t *testing.T) {
		t.Parallel()

		timer := &fakeTimer{}
		mock := NewMockTransport().StubResponse(http.StatusOK, "")
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock), WithTimer(timer))

		resp, err := client.Get(context.Background(), "get", WithTimeout(time.Second))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, 1, timer.count())
		assert.True(t, timer.allStopped())
	})

	t.Run("given transport error, then timer is stopped", func(t *testing.T) {
		t.Parallel()

		timer := &fakeTimer{}
		mock := NewMockTransport().StubError(errors.New("connection refused"))
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock), WithTimer(timer))

		_, err := client.Get(context.Background(), "get", WithTimeout(time.Second))
		require.Error(t, err)

		assert.True(t, timer.allStopped())
	})

	t.Run("given rejected status, then timer is stopped on every attachment policy", func(t *testing.T) {
		t.Parallel()

		for _, pass := range []bool{true, false} {
			timer := &fakeTimer{}
			mock := NewMockTransport().StubResponse(http.StatusNotFound, `{"error":"missing"}`)
			client := New(
				WithBaseURL("https://httpbin.org/"),
				WithMockTransport(mock),
				WithTimer(timer),
				WithPassResponseInError(pass),
			)

			_, err := client.Get(context.Background(), "status/404", WithTimeout(time.Second))

			var herr *Error
			require.ErrorAs(t, err, &herr)
			assert.Equal(t, KindStatus, herr.Kind)
			require.Equal(t, 1, timer.count())
			assert.True(t, timer.allStopped(), "passResponseInError=%v", pass)
			require.NotNil(t, herr.Request)

			if !pass {
				assert.Nil(t, herr.Response)
				assert.Error(t, herr.Request.Context().Err())
				continue
			}

			require.NotNil(t, herr.Response)
			assert.NoError(t, herr.Request.Context().Err(), "attached body keeps the call alive")
			require.NoError(t, herr.Response.Body.Close())
			assert.Error(t, herr.Request.Context().Err())
		}
	})

	t.Run("given unencodable JSON after the timer is armed, then timer is stopped", func(t *testing.T) {
		t.Parallel()

		timer := &fakeTimer{}
		mock := NewMockTransport().StubResponse(http.StatusOK, "")
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock), WithTimer(timer))

		_, err := client.Post(context.Background(), "post",
			WithTimeout(time.Second),
			WithJSON(failingMarshaler{}),
		)

		var herr *Error
		require.ErrorAs(t, err, &herr)
		assert.Equal(t, KindEncode, herr.Kind)
		assert.Nil(t, herr.Request)
		require.Equal(t, 1, timer.count())
		assert.True(t, timer.allStopped())
		assert.Empty(t, mock.Requests())
	})

	t.Run("given zero timeout in call, then base timeout is disabled", func(t *testing.T) {
		t.Parallel()

		timer := &fakeTimer{}
		mock := NewMockTransport().StubResponse(http.StatusOK, "")
		client := New(
			WithBaseURL("https://httpbin.org/"),
			WithTimeout(time.Second),
			WithMockTransport(mock),
			WithTimer(timer),
		)

		resp, err := client.Get(context.Background(), "get", WithTimeout(0))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Zero(t, timer.count())
	})
}

func TestClient_Fetch_Signal(t *testing.T) {
	t.Parallel()

	t.Run("given signal and timeout, then no timer is armed", func(t *testing.T) {
		t.Parallel()

		timer := &fakeTimer{}
		mock := NewMockTransport().StubResponse(http.StatusOK, "body")
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock), WithTimer(timer))

		signal, cancel := context.WithCancel(context.Background())
		defer cancel()

		resp, err := client.Get(context.Background(), "get",
			WithSignal(signal),
			WithTimeout(time.Millisecond),
		)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "body", string(body))
		assert.Zero(t, timer.count())
	})

	t.Run("given signal cancelled during dispatch, then fails as transport", func(t *testing.T) {
		t.Parallel()

		signal, cancel := context.WithCancel(context.Background())
		defer cancel()

		mock := NewMockTransport().
			StubResponse(http.StatusOK, "").
			WithDelay(time.Minute).
			OnRequest(func(*http.Request) { cancel() })
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

		_, err := client.Get(context.Background(), "get", WithSignal(signal))

		require.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrTimeout)

		var herr *Error
		require.ErrorAs(t, err, &herr)
		assert.Equal(t, KindTransport, herr.Kind)
	})

	t.Run("given signal cancelled with cause, then error carries the cause", func(t *testing.T) {
		t.Parallel()

		errShutdown := errors.New("shutting down")
		signal, cancel := context.WithCancelCause(context.Background())
		cancel(errShutdown)

		mock := NewMockTransport().StubResponse(http.StatusOK, "").WithDelay(time.Minute)
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

		_, err := client.Get(context.Background(), "get", WithSignal(signal))

		require.ErrorIs(t, err, errShutdown)
	})

	t.Run("given parent context cancelled, then fails as transport", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		mock := NewMockTransport().StubResponse(http.StatusOK, "").WithDelay(time.Minute)
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

		_, err := client.Get(ctx, "get", WithTimeout(time.Second))

		require.ErrorIs(t, err, context.Canceled)
		var herr *Error
		require.ErrorAs(t, err, &herr)
		assert.Equal(t, KindTransport, herr.Kind)
	})
}

func TestClient_Fetch_Body(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		opts            []Option
		wantBody        string
		wantContentType string
	}{
		{
			name:            "given body and json, then body wins and content type is not forced",
			opts:            []Option{WithBody(strings.NewReader("foo")), WithJSON(map[string]string{"foo": "bar"})},
			wantBody:        "foo",
			wantContentType: "",
		},
		{
			name:            "given only json, then encoded json is sent as application/json",
			opts:            []Option{WithJSON(map[string]string{"foo": "bar"})},
			wantBody:        `{"foo":"bar"}`,
			wantContentType: "application/json",
		},
		{
			name: "given json and a content type header, then content type is forced",
			opts: []Option{
				WithHeader("Content-Type", "text/plain"),
				WithJSON([]int{1, 2}),
			},
			wantBody:        `[1,2]`,
			wantContentType: "application/json",
		},
		{
			name:            "given json false, then it is still encoded",
			opts:            []Option{WithJSON(false)},
			wantBody:        `false`,
			wantContentType: "application/json",
		},
		{
			name:            "given body with its own content type, then it is kept",
			opts:            []Option{WithHeader("Content-Type", "text/csv"), WithBody(strings.NewReader("a,b"))},
			wantBody:        "a,b",
			wantContentType: "text/csv",
		},
		{
			name:            "given neither, then no body is sent",
			opts:            nil,
			wantBody:        "",
			wantContentType: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockTransport().StubResponse(http.StatusOK, "")
			client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

			resp, err := client.Post(context.Background(), "post", tt.opts...)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantBody, string(mock.LastBody()))
			assert.Equal(t, tt.wantContentType, mock.LastRequest().Header.Get("Content-Type"))
		})
	}
}

func TestClient_Fetch_Status(t *testing.T) {
	t.Parallel()

	t.Run("given 404 and default validator, then fails mentioning 404", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubPath("/status/404", http.StatusNotFound, `{"error":"missing"}`)
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

		resp, err := client.Get(context.Background(), "status/404")

		require.Error(t, err)
		assert.Nil(t, resp)
		assert.Contains(t, err.Error(), "404")

		var herr *Error
		require.ErrorAs(t, err, &herr)
		assert.Equal(t, KindStatus, herr.Kind)
		assert.Equal(t, http.StatusNotFound, herr.StatusCode())

		var serr *StatusError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "request responded with 404", serr.Error())

		require.NotNil(t, herr.Response)
		require.NotNil(t, herr.Request)
		assert.Equal(t, "/status/404", herr.Request.URL.Path)

		body, err := io.ReadAll(herr.Response.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"error":"missing"}`, string(body))
		require.NoError(t, herr.Response.Body.Close())
	})

	t.Run("given 200, then the raw response is returned", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusOK, `{"ok":true}`)
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

		resp, err := client.Get(context.Background(), "get")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Same(t, mock.LastRequest(), resp.Request)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(body))
	})

	t.Run("given 3xx, then default validator accepts it", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusNotModified, "")
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

		resp, err := client.Get(context.Background(), "get")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotModified, resp.StatusCode)
	})

	t.Run("given custom validator accepting 404, then 404 succeeds", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusNotFound, "")
		client := New(
			WithBaseURL("https://httpbin.org/"),
			WithStatusCodeValidator(AcceptStatus(http.StatusOK, http.StatusNotFound)),
			WithMockTransport(mock),
		)

		resp, err := client.Get(context.Background(), "get")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("given nil validator, then every status succeeds", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusInternalServerError, "")
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

		resp, err := client.Get(context.Background(), "get", WithStatusCodeValidator(nil))
		require.NoError(t, err)
		defer resp.Body.Close()
	})

	t.Run("given validator rejecting 200, then 200 fails", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusOK, "")
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

		_, err := client.Get(context.Background(), "get",
			WithStatusCodeValidator(AcceptStatus(http.StatusCreated)))

		var herr *Error
		require.ErrorAs(t, err, &herr)
		assert.Equal(t, KindStatus, herr.Kind)
		assert.Equal(t, http.StatusOK, herr.StatusCode())
		require.NoError(t, herr.Response.Body.Close())
	})
}

func TestClient_Fetch_ErrorAttachments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		opts         []Option
		wantRequest  bool
		wantResponse bool
	}{
		{
			name:         "given defaults, then request and response are attached",
			wantRequest:  true,
			wantResponse: true,
		},
		{
			name:         "given pass request disabled, then only response is attached",
			opts:         []Option{WithPassRequestInError(false)},
			wantRequest:  false,
			wantResponse: true,
		},
		{
			name:         "given pass response disabled, then only request is attached",
			opts:         []Option{WithPassResponseInError(false)},
			wantRequest:  true,
			wantResponse: false,
		},
		{
			name:         "given both disabled, then neither is attached",
			opts:         []Option{WithPassRequestInError(false), WithPassResponseInError(false)},
			wantRequest:  false,
			wantResponse: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockTransport().StubResponse(http.StatusBadGateway, "bad")
			client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

			_, err := client.Get(context.Background(), "get", tt.opts...)

			var herr *Error
			require.ErrorAs(t, err, &herr)
			assert.Equal(t, tt.wantRequest, herr.Request != nil)
			assert.Equal(t, tt.wantResponse, herr.Response != nil)
			assert.Equal(t, http.StatusBadGateway, herr.StatusCode())
			assert.Equal(t, "https://httpbin.org/", herr.Config.BaseURL())

			if herr.Response != nil {
				require.NoError(t, herr.Response.Body.Close())
			}
		})
	}

	t.Run("given response not attached, then its body is closed", func(t *testing.T) {
		t.Parallel()

		body := &closeTracker{}
		transport := TransportFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusInternalServerError, Body: body, Request: req}, nil
		})
		client := New(WithBaseURL("https://httpbin.org/"), WithTransport(transport))

		_, err := client.Get(context.Background(), "get", WithPassResponseInError(false))

		require.Error(t, err)
		assert.True(t, body.isClosed())
	})
}

func TestClient_Fetch_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		baseURL     string
		target      string
		opts        []Option
		stubErr     error
		wantKind    ErrorKind
		wantRequest bool
		wantSent    bool
	}{
		{
			name:     "given relative target and no base URL, then fails to resolve",
			target:   "users",
			wantKind: KindResolve,
		},
		{
			name:     "given unparsable target, then fails to resolve",
			baseURL:  "https://httpbin.org/",
			target:   "%zz",
			wantKind: KindResolve,
		},
		{
			name:     "given unparsable base URL, then fails to resolve",
			baseURL:  "://nope",
			target:   "users",
			wantKind: KindResolve,
		},
		{
			name:     "given unencodable json, then fails to encode",
			baseURL:  "https://httpbin.org/",
			target:   "post",
			opts:     []Option{WithMethod(http.MethodPost), WithJSON(failingMarshaler{})},
			wantKind: KindEncode,
		},
		{
			name:     "given invalid method, then fails to encode",
			baseURL:  "https://httpbin.org/",
			target:   "get",
			opts:     []Option{WithMethod("BAD METHOD")},
			wantKind: KindEncode,
		},
		{
			name:        "given transport error, then fails as transport",
			baseURL:     "https://httpbin.org/",
			target:      "get",
			stubErr:     errors.New("dial tcp: connection refused"),
			wantKind:    KindTransport,
			wantRequest: true,
			wantSent:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockTransport().StubResponse(http.StatusOK, "")
			if tt.stubErr != nil {
				mock = NewMockTransport().StubError(tt.stubErr)
			}
			opts := []Option{WithMockTransport(mock)}
			if tt.baseURL != "" {
				opts = append(opts, WithBaseURL(tt.baseURL))
			}
			client := New(opts...)

			resp, err := client.Fetch(context.Background(), tt.target, tt.opts...)

			require.Error(t, err)
			assert.Nil(t, resp)

			var herr *Error
			require.ErrorAs(t, err, &herr)
			assert.Equal(t, tt.wantKind, herr.Kind)
			assert.Equal(t, tt.wantRequest, herr.Request != nil)
			assert.Nil(t, herr.Response)
			assert.Equal(t, tt.wantSent, mock.RequestCount() == 1)
			if tt.stubErr != nil {
				assert.ErrorIs(t, err, tt.stubErr)
			}
		})
	}

	t.Run("given transport returning no response, then fails as transport", func(t *testing.T) {
		t.Parallel()

		client := New(
			WithBaseURL("https://httpbin.org/"),
			WithTransport(TransportFunc(func(*http.Request) (*http.Response, error) {
				return nil, nil
			})),
		)

		_, err := client.Get(context.Background(), "get")

		var herr *Error
		require.ErrorAs(t, err, &herr)
		assert.Equal(t, KindTransport, herr.Kind)
	})
}

func TestClient_Verbs(t *testing.T) {
	t.Parallel()

	type verbFunc func(*Client, context.Context, string, ...Option) (*http.Response, error)

	tests := []struct {
		name   string
		call   verbFunc
		method string
	}{
		{name: "given Get, then sends GET", call: (*Client).Get, method: http.MethodGet},
		{name: "given Head, then sends HEAD", call: (*Client).Head, method: http.MethodHead},
		{name: "given Options, then sends OPTIONS", call: (*Client).Options, method: http.MethodOptions},
		{name: "given Patch, then sends PATCH", call: (*Client).Patch, method: http.MethodPatch},
		{name: "given Post, then sends POST", call: (*Client).Post, method: http.MethodPost},
		{name: "given Put, then sends PUT", call: (*Client).Put, method: http.MethodPut},
		{name: "given Delete, then sends DELETE", call: (*Client).Delete, method: http.MethodDelete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockTransport().StubResponse(http.StatusOK, "")
			client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

			// The verb wins over a method given in the options.
			resp, err := tt.call(client, context.Background(), "anything", WithMethod("TRACE"))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.method, mock.LastRequest().Method)
		})
	}

	t.Run("given options slice with spare capacity, then it is not written to", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusOK, "")
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

		marker := WithHeader("X-Marker", "1")
		opts := make([]Option, 1, 4)
		opts[0] = WithHeader("X-Test", "1")
		backing := opts[:2]
		backing[1] = marker

		resp, err := client.Post(context.Background(), "post", opts...)
		require.NoError(t, err)
		defer resp.Body.Close()

		cfg := newConfig(backing[1])
		assert.Equal(t, "1", cfg.Headers().Get("X-Marker"))
		assert.Empty(t, mock.LastRequest().Header.Get("X-Marker"))
	})

	t.Run("given Fetch without method, then sends GET", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusOK, "")
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

		resp, err := client.Fetch(context.Background(), "get")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.MethodGet, mock.LastRequest().Method)
	})
}

func TestClient_FetchURL(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport().StubResponse(http.StatusOK, "")
	client := New(WithBaseURL("https://httpbin.org/v1/"), WithMockTransport(mock))

	target := &url.URL{Path: "users", RawQuery: "page=1"}
	resp, err := client.FetchURL(context.Background(), target, WithSearchParam("limit", "10"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://httpbin.org/v1/users?page=1&limit=10", mock.LastRequest().URL.String())
	assert.Equal(t, "page=1", target.RawQuery, "target must not be modified")

	resp, err = client.FetchURL(context.Background(), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "https://httpbin.org/v1/", mock.LastRequest().URL.String())
}

func TestClient_Derive(t *testing.T) {
	t.Parallel()

	newParent := func(mock *MockTransport) *Client {
		return New(
			WithBaseURL("https://httpbin.org/"),
			WithHeaders(http.Header{"Foo": {"1"}, "Bar": {"1"}}),
			WithSearchParams(url.Values{"bar": {"2"}}),
			WithMockTransport(mock),
		)
	}

	t.Run("given no options, then derived client behaves like its parent", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusOK, "")
		parent := newParent(mock)
		derived := parent.Derive()

		for _, c := range []*Client{parent, derived} {
			resp, err := c.Get(context.Background(), "get?foo=1",
				WithHeader("Bar", "2"),
				WithSearchParam("baz", "3"),
			)
			require.NoError(t, err)
			require.NoError(t, resp.Body.Close())
		}

		reqs := mock.Requests()
		require.Len(t, reqs, 2)
		assert.Equal(t, reqs[0].URL.String(), reqs[1].URL.String())
		assert.Equal(t, reqs[0].Method, reqs[1].Method)
		assert.Equal(t, reqs[0].Header, reqs[1].Header)
		assert.Equal(t, parent.Config().Headers(), derived.Config().Headers())
		assert.Equal(t, parent.Config().SearchParams(), derived.Config().SearchParams())
	})

	t.Run("given options, then they merge onto the parent without mutating it", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusOK, "")
		parent := newParent(mock)
		derived := parent.Derive(
			WithHeader("Bar", "derived"),
			WithHeader("X-Extra", "1"),
			WithSearchParam("bar", "9"),
			WithTimeout(time.Minute),
		)

		resp, err := derived.Get(context.Background(), "get")
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		req := mock.LastRequest()
		assert.Equal(t, "1", req.Header.Get("Foo"))
		assert.Equal(t, "derived", req.Header.Get("Bar"))
		assert.Equal(t, "1", req.Header.Get("X-Extra"))
		assert.Equal(t, "9", req.URL.Query().Get("bar"))
		assert.Equal(t, time.Minute, derived.Config().Timeout())

		assert.Equal(t, "1", parent.Config().Headers().Get("Bar"))
		assert.Empty(t, parent.Config().Headers().Get("X-Extra"))
		assert.Equal(t, "2", parent.Config().SearchParams().Get("bar"))
		assert.Zero(t, parent.Config().Timeout())
	})

	t.Run("given one-shot values, then they are not kept as base", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusOK, "")
		derived := newParent(mock).Derive(WithJSON(map[string]int{"a": 1}))

		resp, err := derived.Post(context.Background(), "post")
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())

		assert.Empty(t, mock.LastBody())
		_, ok := derived.Config().JSON()
		assert.False(t, ok)
	})
}

func TestClient_ResponseBody(t *testing.T) {
	t.Parallel()

	t.Run("given timeout and unread body, then body stays readable after return", func(t *testing.T) {
		t.Parallel()

		var reqCtx context.Context
		mock := NewMockTransport().
			StubResponse(http.StatusOK, "payload").
			OnRequest(func(req *http.Request) { reqCtx = req.Context() })
		client := New(WithBaseURL("https://httpbin.org/"), WithMockTransport(mock))

		resp, err := client.Get(context.Background(), "get", WithTimeout(time.Minute))
		require.NoError(t, err)

		require.NoError(t, reqCtx.Err(), "request context must outlive the call")

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(body))

		require.NoError(t, resp.Body.Close())
		assert.Error(t, reqCtx.Err(), "closing the body releases the request context")
	})
}
