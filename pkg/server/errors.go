package server

import (
	"errors"
	"log/slog"
	"net/http"

	"logpipe-hq/logpipe/pkg/format"
	"logpipe-hq/logpipe/pkg/logstash"
)

var (
	errNotFound  = errors.New("not found")
	errLogTooOld = errors.New("log is too old")
	errNoLogs    = errors.New("request body holds no logs")
)

// StatusFor maps a stash or transport error to an HTTP status code.
func StatusFor(err error) int {
	var (
		validationErr *logstash.ValidationError
		filterErr     *logstash.FilterParseError
		storageErr    *logstash.StorageError
		maxBytesErr   *http.MaxBytesError
	)

	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errUnsupportedEncoding):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &validationErr), errors.As(err, &filterErr),
		errors.Is(err, errLogTooOld), errors.Is(err, errNoLogs),
		errors.Is(err, errMalformedBody):
		return http.StatusBadRequest
	case errors.Is(err, logstash.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.As(err, &storageErr), errors.Is(err, logstash.ErrNotReady),
		errors.Is(err, logstash.ErrStashClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeOutput writes a rendered value with its status and content type.
func writeOutput(w http.ResponseWriter, out format.Output) {
	w.Header().Set("Content-Type", out.MIMEType)
	w.WriteHeader(out.StatusCode)
	_, _ = w.Write(out.Body)
}

// writeError renders err with f. Server-side failures are logged; caller
// mistakes are not.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, f format.Formatter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeOutput(w, f.Error(err, status))
}
