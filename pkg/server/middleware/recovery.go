package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"logpipe-hq/logpipe/pkg/format"
)

var errInternal = errors.New("an internal error occurred")

// RecoveryMiddleware recovers from panics in HTTP handlers and returns a 500
// Internal Server Error as JSON. The panic is logged with its stack trace
// but no detail is exposed to the client.
//
// Example usage:
//
//	handler = RecoveryMiddleware(handler)
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}

				slog.ErrorContext(r.Context(), "panic in handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				out := format.NewJSONFormatter().Error(errInternal, http.StatusInternalServerError)
				w.Header().Set("Content-Type", out.MIMEType)
				w.WriteHeader(out.StatusCode)
				_, _ = w.Write(out.Body)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
