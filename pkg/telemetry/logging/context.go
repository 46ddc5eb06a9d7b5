package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// StreamIDKey is the context key for live stream IDs.
	StreamIDKey contextKey = "stream_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithStreamID adds a stream ID to the context.
func WithStreamID(ctx context.Context, streamID string) context.Context {
	return context.WithValue(ctx, StreamIDKey, streamID)
}

// GetStreamID retrieves the stream ID from the context.
func GetStreamID(ctx context.Context) string {
	if streamID, ok := ctx.Value(StreamIDKey).(string); ok {
		return streamID
	}
	return ""
}

// contextAttrs extracts the known fields from ctx.
func contextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if requestID := GetRequestID(ctx); requestID != "" {
		attrs = append(attrs, slog.String(string(RequestIDKey), requestID))
	}
	if streamID := GetStreamID(ctx); streamID != "" {
		attrs = append(attrs, slog.String(string(StreamIDKey), streamID))
	}
	return attrs
}

// FromContext returns logger with the context fields attached, for code
// that logs without passing ctx to each call.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	attrs := contextAttrs(ctx)
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}
