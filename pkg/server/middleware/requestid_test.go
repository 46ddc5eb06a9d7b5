package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	wrapped := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates request ID when not provided", func(t *testing.T) {
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/read", nil))

		requestID := w.Header().Get(RequestIDHeader)
		if len(requestID) != 36 {
			t.Errorf("Expected a UUID request ID, got %q", requestID)
		}
		if seen != requestID {
			t.Errorf("Context request ID = %q, want %q", seen, requestID)
		}
	})

	t.Run("uses provided request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/read", nil)
		req.Header.Set(RequestIDHeader, "custom-request-id-12345")
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)

		if got := w.Header().Get(RequestIDHeader); got != "custom-request-id-12345" {
			t.Errorf("Request ID = %v, want custom-request-id-12345", got)
		}
	})

	t.Run("replaces oversized request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/read", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)

		if got := w.Header().Get(RequestIDHeader); len(got) != 36 {
			t.Errorf("Expected generated ID, got %d characters", len(got))
		}
	})

	t.Run("generates unique IDs for different requests", func(t *testing.T) {
		w1 := httptest.NewRecorder()
		wrapped.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/read", nil))
		w2 := httptest.NewRecorder()
		wrapped.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/read", nil))

		if w1.Header().Get(RequestIDHeader) == w2.Header().Get(RequestIDHeader) {
			t.Error("Request IDs should be unique")
		}
	})
}
