//go:build !integration

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"newspay-l402/internal/infra/logging"
)

func TestTraceID(t *testing.T) {
	var seen string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.TraceID(r.Context())
	}), TraceID())

	t.Run("should mint an id and echo it", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if seen == "" || rec.Header().Get(headerRequestID) != seen {
			t.Fatalf("trace id %q, header %q", seen, rec.Header().Get(headerRequestID))
		}
	})

	t.Run("should reuse the caller's request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(headerRequestID, "req-42")
		h.ServeHTTP(httptest.NewRecorder(), req)
		if seen != "req-42" {
			t.Fatalf("trace id = %q", seen)
		}
	})
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), Recover(&logger))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/news/politics", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal_error") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestRequestLogRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r := chi.NewRouter()
	r.Use(RequestLog(&logger))
	r.Get("/l402/payment-sessions/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/l402/payment-sessions/cs_123", nil))
	out := buf.String()
	if !strings.Contains(out, `"route":"/l402/payment-sessions/{id}"`) || !strings.Contains(out, `"status":418`) {
		t.Fatalf("unexpected log line: %s", out)
	}
}

func TestTimeout(t *testing.T) {
	var deadline bool
	h := Chain(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, deadline = r.Context().Deadline()
	}), Timeout(time.Second))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()))
	if !deadline {
		t.Fatal("expected a request deadline")
	}
}

func TestStatusFor(t *testing.T) {
	if status, code := statusFor(context.DeadlineExceeded); status != http.StatusInternalServerError || code != "internal_error" {
		t.Fatalf("got %d %s", status, code)
	}
}
