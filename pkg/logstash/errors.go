package logstash

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized matches every UnauthorizedError via errors.Is.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotReady is returned when storage initialization failed. The next
	// operation retries initialization.
	ErrNotReady = errors.New("log stash not ready")

	// ErrStashClosed is returned by operations on a closed stash.
	ErrStashClosed = errors.New("log stash closed")
)

// ValidationError represents a malformed log record.
type ValidationError struct {
	Field   string // Offending field ("logger", "level", ...)
	Message string // Human-readable reason
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid log: %s", e.Message)
	}
	return fmt.Sprintf("invalid log [field=%s]: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// UnauthorizedError is returned when a caller key is not whitelisted.
type UnauthorizedError struct {
	Operation string // Operation that was refused ("add", "get", "stream")
	Cause     error  // Underlying authorizer error
}

// Error implements the error interface.
func (e *UnauthorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unauthorized [operation=%s]: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("unauthorized [operation=%s]", e.Operation)
}

// Unwrap returns the underlying cause error.
func (e *UnauthorizedError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrUnauthorized.
func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}

// NewUnauthorizedError creates a new UnauthorizedError.
func NewUnauthorizedError(operation string, cause error) *UnauthorizedError {
	return &UnauthorizedError{
		Operation: operation,
		Cause:     cause,
	}
}

// StorageError represents an error from the storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "postgres", "memory")
	Operation string // Operation that failed ("initialize", "insert", "query", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// FilterParseError represents malformed filter input from a transport caller.
type FilterParseError struct {
	Param string // Parameter name ("from", "limit", ...)
	Value string // Raw value that failed to parse
	Cause error  // Underlying error
}

// Error implements the error interface.
func (e *FilterParseError) Error() string {
	return fmt.Sprintf("invalid filter [param=%s, value=%q]: %v", e.Param, e.Value, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *FilterParseError) Unwrap() error {
	return e.Cause
}

// NewFilterParseError creates a new FilterParseError.
func NewFilterParseError(param, value string, cause error) *FilterParseError {
	return &FilterParseError{
		Param: param,
		Value: value,
		Cause: cause,
	}
}
