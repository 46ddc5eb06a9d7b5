package logstash

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// DefaultLimit is the maximum number of logs a query returns when the filter
// does not set one.
const DefaultLimit = 1000

// Filter selects logs for queries and streams. The zero value matches every
// log of the caller's scope.
type Filter struct {
	Tags    []string   `json:"tags,omitempty"`    // Match logs sharing at least one tag
	From    *time.Time `json:"from,omitempty"`    // Inclusive lower bound on createdAt
	To      *time.Time `json:"to,omitempty"`      // Inclusive upper bound on createdAt
	Limit   int        `json:"limit,omitempty"`   // Max logs per query, 0 means DefaultLimit
	AfterID int64      `json:"afterId,omitempty"` // Only logs with a strictly greater id
	Level   string     `json:"level,omitempty"`   // Severity threshold
}

// EffectiveLimit returns Limit, or DefaultLimit when Limit is not positive.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

// Matches reports whether log satisfies every constraint of f.
//
// A log passes the level check when its level equals the filter level, or
// when its rank is at or below the filter's rank (ERROR passes a WARN filter,
// DEBUG does not).
func Matches(log *Log, f Filter) bool {
	if log == nil {
		return false
	}

	if len(f.Tags) > 0 && !slices.ContainsFunc(log.Tags, func(tag string) bool {
		return slices.Contains(f.Tags, tag)
	}) {
		return false
	}

	if f.From != nil && log.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && log.CreatedAt.After(*f.To) {
		return false
	}

	if f.AfterID > 0 && log.ID <= f.AfterID {
		return false
	}

	if f.Level != "" {
		want := NormalizeLevel(f.Level)
		if NormalizeLevel(log.Level) != want && Rank(log.Level) > Rank(want) {
			return false
		}
	}

	return true
}

// FilterOption configures a Filter built by NewFilter.
type FilterOption func(*Filter) error

// WithTags restricts the filter to logs carrying any of tags.
func WithTags(tags ...string) FilterOption {
	return func(f *Filter) error {
		f.Tags = append(f.Tags, tags...)
		return nil
	}
}

// WithTimeRange sets inclusive createdAt bounds. A zero time leaves that side
// open.
func WithTimeRange(from, to time.Time) FilterOption {
	return func(f *Filter) error {
		if !from.IsZero() {
			f.From = &from
		}
		if !to.IsZero() {
			f.To = &to
		}
		return nil
	}
}

// WithLimit caps the number of logs returned.
func WithLimit(limit int) FilterOption {
	return func(f *Filter) error {
		if limit < 0 {
			return fmt.Errorf("limit must be non-negative, got %d", limit)
		}
		f.Limit = limit
		return nil
	}
}

// WithAfterID only selects logs with an id strictly greater than id.
func WithAfterID(id int64) FilterOption {
	return func(f *Filter) error {
		if id < 0 {
			return fmt.Errorf("afterId must be non-negative, got %d", id)
		}
		f.AfterID = id
		return nil
	}
}

// WithLevel sets the severity threshold.
func WithLevel(level string) FilterOption {
	return func(f *Filter) error {
		f.Level = NormalizeLevel(level)
		return nil
	}
}

// NewFilter builds a Filter from options and validates it.
func NewFilter(opts ...FilterOption) (Filter, error) {
	var f Filter
	for _, opt := range opts {
		if err := opt(&f); err != nil {
			return Filter{}, err
		}
	}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

// Validate checks the filter for contradictory bounds.
func (f Filter) Validate() error {
	if f.Limit < 0 {
		return errors.New("limit must be non-negative")
	}
	if f.AfterID < 0 {
		return errors.New("afterId must be non-negative")
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return errors.New("from must not be after to")
	}
	return nil
}
