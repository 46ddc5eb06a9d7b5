package health

import (
	"context"
	"errors"

	"logpipe-hq/logpipe/pkg/logstash"
)

// Initializer is the part of the stash the readiness check drives.
type Initializer interface {
	Ready() bool
	Init(ctx context.Context) error
}

// StashCheck reports whether the stash has initialized its backend. While
// it is not ready, each probe makes another initialization attempt, so a
// backend that comes up late is picked up without waiting for traffic.
func StashCheck(s Initializer) CheckFunc {
	return func(ctx context.Context) error {
		if s.Ready() {
			return nil
		}
		return s.Init(ctx)
	}
}

// StorageCheck pings the storage backend when it supports it.
func StorageCheck(storage logstash.Storage) CheckFunc {
	pinger, ok := storage.(logstash.Pinger)
	if !ok {
		return func(context.Context) error { return nil }
	}
	return pinger.Ping
}

// ErrNotRunning is reported by RunningCheck for a stopped component.
var ErrNotRunning = errors.New("not running")

// RunningCheck reports an error while running returns false.
func RunningCheck(running func() bool) CheckFunc {
	return func(context.Context) error {
		if !running() {
			return ErrNotRunning
		}
		return nil
	}
}
