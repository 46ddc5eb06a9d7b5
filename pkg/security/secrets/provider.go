package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no provider has the requested secret.
var ErrNotFound = errors.New("secret not found")

// Provider looks up secrets in one backend.
type Provider interface {
	// GetSecret returns the named secret. It returns an error wrapping
	// ErrNotFound when the backend does not have it.
	GetSecret(ctx context.Context, name string) (string, error)

	// Name identifies the backend in logs and errors.
	Name() string
}

// Refresher is implemented by providers that cache values and can drop them.
type Refresher interface {
	Refresh()
}
