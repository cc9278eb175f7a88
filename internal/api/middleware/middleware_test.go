// SPDX-License-Identifier: MIT

package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mediad/internal/api/problem"
	"github.com/ManuGH/mediad/internal/log"
	"github.com/ManuGH/mediad/internal/telemetry"
)

func TestRecoverer_ReturnsJSON500(t *testing.T) {
	h := RequestID(Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/probe", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body problem.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.NotEmpty(t, body.RequestID)
	assert.Equal(t, rec.Header().Get(problem.HeaderRequestID), body.RequestID)
}

func TestRecoverer_RepanicsAbortHandler(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = log.RequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{name: "generated", inbound: "", keep: false},
		{name: "kept", inbound: "abc-123_x.y", keep: true},
		{name: "rejected characters", inbound: "bad id\n", keep: false},
		{name: "too long", inbound: strings.Repeat("a", 200), keep: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.inbound != "" {
				req.Header.Set(problem.HeaderRequestID, tt.inbound)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get(problem.HeaderRequestID))
			if tt.keep {
				assert.Equal(t, tt.inbound, seen)
			} else {
				assert.NotEqual(t, tt.inbound, seen)
			}
		})
	}
}

func TestTracing_PassesThrough(t *testing.T) {
	_, err := telemetry.NewProvider(context.Background(), telemetry.Config{Enabled: false, ServiceName: "test"})
	require.NoError(t, err)

	h := Tracing("mediad-test")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/play?ref=x", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "missing", rec.Body.String())
}

func TestShouldTrace(t *testing.T) {
	for path, want := range map[string]bool{
		"/healthz":        false,
		"/readyz":         false,
		"/metrics":        false,
		"/media/a.mkv":    true,
		"/api/v1/resolve": true,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		assert.Equal(t, want, shouldTrace(req), path)
	}
}

func TestSpanNameFormatter_OmitsQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/play?ref=secret", nil)
	assert.Equal(t, "HTTP GET /api/v1/play", spanNameFormatter("ignored", req))
}

func TestStack_PreservesFlusher(t *testing.T) {
	r := NewRouter(StackConfig{
		EnableMetrics:     true,
		TracingService:    "mediad-test",
		EnableLogging:     true,
		RequestsPerMinute: 100,
	})
	var flushable bool
	r.Get("/media/*", func(w http.ResponseWriter, _ *http.Request) {
		_, flushable = w.(http.Flusher)
		_, _ = w.Write([]byte("chunk"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/a.mkv", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, flushable)
	assert.NotEmpty(t, rec.Header().Get(problem.HeaderRequestID))
}

func TestRouteLabel(t *testing.T) {
	r := chi.NewRouter()
	var label string
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			label = routeLabel(req)
		})
	})
	r.Get("/media/*", func(http.ResponseWriter, *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/media/some/long/file.mkv", nil))
	assert.Equal(t, "/media/*", label)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, "unmatched", label)
}
