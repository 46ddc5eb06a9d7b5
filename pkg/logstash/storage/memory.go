package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"logpipe-hq/logpipe/pkg/logstash"
)

type memoryRow struct {
	log   *logstash.Log
	scope string
}

// MemoryStorage implements the Storage interface in process memory.
// Intended for tests and local development; logs are lost on exit.
type MemoryStorage struct {
	rows   []memoryRow
	nextID int64
	closed bool
	mu     sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Initialize is a no-op for the memory backend.
func (s *MemoryStorage) Initialize(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return logstash.NewStorageError("memory", "initialize", errClosed)
	}
	return nil
}

// InsertWithEviction stores log under the caller's scope, then evicts the
// oldest logs of the same logger and scope beyond maxLogsPerScope.
func (s *MemoryStorage) InsertWithEviction(ctx context.Context, log *logstash.Log, maxLogsPerScope int, callerKey string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, logstash.NewStorageError("memory", "insert", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, logstash.NewStorageError("memory", "insert", errClosed)
	}

	scope := logstash.ScopeOf(callerKey)
	s.nextID++
	s.rows = append(s.rows, memoryRow{log: log.WithID(s.nextID), scope: scope})

	if maxLogsPerScope > 0 {
		s.evictLocked(log.Logger, scope, maxLogsPerScope)
	}
	return s.nextID, nil
}

// evictLocked removes the oldest rows of (logger, scope) beyond max.
func (s *MemoryStorage) evictLocked(logger, scope string, max int) {
	var group []memoryRow
	for _, row := range s.rows {
		if row.log.Logger == logger && row.scope == scope {
			group = append(group, row)
		}
	}

	excess := len(group) - max
	if excess <= 0 {
		return
	}

	slices.SortFunc(group, compareOldestFirst)
	evict := make(map[int64]struct{}, excess)
	for _, row := range group[:excess] {
		evict[row.log.ID] = struct{}{}
	}

	s.rows = slices.DeleteFunc(s.rows, func(row memoryRow) bool {
		_, ok := evict[row.log.ID]
		return ok
	})
}

// Query returns logs of the caller's scope matching filter, newest first.
func (s *MemoryStorage) Query(ctx context.Context, filter logstash.Filter, callerKey string) ([]*logstash.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, logstash.NewStorageError("memory", "query", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, logstash.NewStorageError("memory", "query", errClosed)
	}

	scope := logstash.ScopeOf(callerKey)
	var matched []memoryRow
	for _, row := range s.rows {
		if row.scope == scope && logstash.Matches(row.log, filter) {
			matched = append(matched, row)
		}
	}

	slices.SortFunc(matched, func(a, b memoryRow) int {
		return compareOldestFirst(b, a)
	})

	limit := filter.EffectiveLimit()
	if len(matched) > limit {
		matched = matched[:limit]
	}

	results := make([]*logstash.Log, 0, len(matched))
	for _, row := range matched {
		results = append(results, row.log.WithID(row.log.ID))
	}
	return results, nil
}

// DeleteOlderThan removes logs created before cutoff.
func (s *MemoryStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, logstash.NewStorageError("memory", "delete", errClosed)
	}

	before := len(s.rows)
	s.rows = slices.DeleteFunc(s.rows, func(row memoryRow) bool {
		return row.log.CreatedAt.Before(cutoff)
	})
	return int64(before - len(s.rows)), nil
}

// Count returns the number of logs stored under scope.
func (s *MemoryStorage) Count(ctx context.Context, scope string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, logstash.NewStorageError("memory", "count", errClosed)
	}

	var n int64
	for _, row := range s.rows {
		if row.scope == scope {
			n++
		}
	}
	return n, nil
}

// Ping reports whether the backend is open.
func (s *MemoryStorage) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return logstash.NewStorageError("memory", "ping", errClosed)
	}
	return nil
}

// Close releases all stored logs.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows = nil
	s.closed = true
	return nil
}

func compareOldestFirst(a, b memoryRow) int {
	if c := a.log.CreatedAt.Compare(b.log.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.log.ID, b.log.ID)
}
