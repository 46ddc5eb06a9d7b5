package logstash

import (
	"context"
	"encoding/json"
	"time"
)

// Log is a single structured log record. A Log is never mutated after
// construction; id assignment returns a copy via WithID.
type Log struct {
	ID        int64     `json:"id,omitempty"` // Assigned by storage, 0 until persisted
	Logger    string    `json:"logger"`       // Producer name
	Level     string    `json:"level"`        // Severity token ("INFO", "WARN", ...)
	Message   string    `json:"message"`      // Free text
	CreatedAt time.Time `json:"createdAt"`    // Producer timestamp
	Tags      []string  `json:"tags"`         // Labels used by tag filters
}

// NewLog validates its arguments and builds an unpersisted Log.
func NewLog(logger, level, message string, createdAt time.Time, tags []string) (*Log, error) {
	if logger == "" {
		return nil, NewValidationError("logger", "logger is required")
	}
	if level == "" {
		return nil, NewValidationError("level", "level is required")
	}
	if message == "" {
		return nil, NewValidationError("message", "message is required")
	}
	if createdAt.IsZero() {
		return nil, NewValidationError("createdAt", "createdAt is required")
	}

	copied := make([]string, len(tags))
	copy(copied, tags)

	return &Log{
		Logger:    logger,
		Level:     level,
		Message:   message,
		CreatedAt: createdAt,
		Tags:      copied,
	}, nil
}

// Validate reports the first missing required field of l.
func (l *Log) Validate() error {
	if l == nil {
		return NewValidationError("", "log is nil")
	}
	_, err := NewLog(l.Logger, l.Level, l.Message, l.CreatedAt, nil)
	return err
}

// WithID returns a copy of l carrying the given id.
func (l *Log) WithID(id int64) *Log {
	out := *l
	out.Tags = make([]string, len(l.Tags))
	copy(out.Tags, l.Tags)
	out.ID = id
	return &out
}

// MarshalJSON encodes createdAt as RFC 3339 with millisecond precision and
// always emits tags as an array.
func (l *Log) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID        int64    `json:"id,omitempty"`
		Logger    string   `json:"logger"`
		Level     string   `json:"level"`
		Message   string   `json:"message"`
		CreatedAt string   `json:"createdAt"`
		Tags      []string `json:"tags"`
	}
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(wire{
		ID:        l.ID,
		Logger:    l.Logger,
		Level:     l.Level,
		Message:   l.Message,
		CreatedAt: l.CreatedAt.UTC().Format(TimeLayout),
		Tags:      tags,
	})
}

// TimeLayout is the wire format of createdAt.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Storage defines the interface for log storage backends.
// Implementations must be thread-safe and support concurrent access.
type Storage interface {
	// Initialize prepares the backend (schema, pragmas). It is called
	// lazily by the stash and may be called again after a failure.
	Initialize(ctx context.Context) error

	// InsertWithEviction removes the oldest logs of the same logger and
	// caller scope so that, after inserting log, at most maxLogsPerScope
	// remain. A maxLogsPerScope <= 0 disables eviction.
	// Returns the id assigned to the inserted log.
	InsertWithEviction(ctx context.Context, log *Log, maxLogsPerScope int, callerKey string) (int64, error)

	// Query returns logs of the caller's scope matching filter, newest first,
	// capped at filter.EffectiveLimit().
	Query(ctx context.Context, filter Filter, callerKey string) ([]*Log, error)

	// Close releases any resources held by the storage backend.
	Close() error
}

// AgePruner is implemented by backends that support age-based retention.
type AgePruner interface {
	// DeleteOlderThan removes logs created before cutoff across all scopes.
	// Returns the number of logs deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pinger is implemented by backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Counter is implemented by backends that can count logs of a scope.
type Counter interface {
	Count(ctx context.Context, scope string) (int64, error)
}

// Recorder receives operational measurements from the stash. The
// telemetry/metrics package provides a Prometheus implementation.
type Recorder interface {
	RecordAdd(scopeKind string, duration time.Duration, err error)
	RecordGet(scopeKind string, duration time.Duration, err error)
	RecordInitFailure()
	StreamOpened()
	StreamClosed()
	StreamDropped(reason string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAdd(string, time.Duration, error) {}
func (nopRecorder) RecordGet(string, time.Duration, error) {}
func (nopRecorder) RecordInitFailure()                     {}
func (nopRecorder) StreamOpened()                          {}
func (nopRecorder) StreamClosed()                          {}
func (nopRecorder) StreamDropped(string)                   {}
