package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestInitMeters(t *testing.T) {
	m, err := initMeters(t.Context(), testConfig(""))
	require.NoError(t, err)
	assert.NotNil(t, m.requests)
	assert.NotNil(t, m.duration)
}

func TestNewTraceMiddleware(t *testing.T) {
	cfg := testConfig("")
	cfg.Application.Environment = "test"
	m, err := initMeters(t.Context(), cfg)
	require.NoError(t, err)

	middleware := newTraceMiddleware(cfg, m)

	t.Run("passes the request through and keeps the status", func(t *testing.T) {
		var gotCtx context.Context
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotCtx = r.Context()
			w.WriteHeader(http.StatusTeapot)
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("User-Agent", "test-agent")
		rec := httptest.NewRecorder()

		middleware("TestOperation", next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTeapot, rec.Code)
		require.NotNil(t, gotCtx)
		assert.True(t, trace.SpanContextFromContext(gotCtx).Equal(trace.SpanFromContext(gotCtx).SpanContext()))
	})

	t.Run("extracts parent trace context from headers", func(t *testing.T) {
		called := false
		next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			called = true
		})

		req := httptest.NewRequest(http.MethodGet, "/trace-test", nil)
		req.Header.Set("Traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

		middleware("TraceOperation", next).ServeHTTP(httptest.NewRecorder(), req)

		assert.True(t, called)
	})

	t.Run("records nothing without meters", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTraceMiddleware(cfg, nil)("NoMeters", http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("handles multiple sequential requests", func(t *testing.T) {
		calls := 0
		handler := middleware("SequentialOperation", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			calls++
		}))

		for range 3 {
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/seq", nil))
		}

		assert.Equal(t, 3, calls)
	})
}
