package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"logpipe-hq/logpipe/pkg/logstash"
)

// ErrPruningUnsupported is returned when the backend cannot delete by age.
var ErrPruningUnsupported = errors.New("storage backend does not support age-based pruning")

// Config contains configuration for the retention pruner.
type Config struct {
	// MaxAge is how long logs are kept. 0 keeps logs forever.
	MaxAge time.Duration

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAge:        0,
		PruneSchedule: "0 3 * * *",
	}
}

// Pruner deletes logs older than the configured maximum age.
type Pruner struct {
	storage   logstash.AgePruner
	config    *Config
	logger    *slog.Logger
	now       func() time.Time
	scheduler *Scheduler
}

// NewPruner creates a new retention pruner for storage.
func NewPruner(storage logstash.Storage, config *Config) (*Pruner, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxAge < 0 {
		return nil, fmt.Errorf("max age must be non-negative, got %s", config.MaxAge)
	}

	pruner := &Pruner{
		config: config,
		logger: slog.Default().With("component", "logstash.retention"),
		now:    time.Now,
	}

	if ap, ok := storage.(logstash.AgePruner); ok {
		pruner.storage = ap
	} else if config.MaxAge > 0 {
		return nil, ErrPruningUnsupported
	}

	pruner.scheduler = NewScheduler(pruner)
	return pruner, nil
}

// Prune deletes logs created before now minus MaxAge and returns the
// number deleted. It is a no-op when MaxAge is 0.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.config.MaxAge <= 0 || p.storage == nil {
		return 0, nil
	}

	cutoff := p.now().Add(-p.config.MaxAge)
	p.logger.Debug("pruning by age",
		"cutoff_time", cutoff,
		"max_age", p.config.MaxAge,
	)

	deleted, err := p.storage.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune logs older than %s: %w", p.config.MaxAge, err)
	}

	if deleted == 0 {
		p.logger.Debug("no logs pruned", "max_age", p.config.MaxAge)
	} else {
		p.logger.Info("log pruning completed",
			"deleted_count", deleted,
			"max_age", p.config.MaxAge,
		)
	}
	return deleted, nil
}

// Start starts the automatic pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the automatic pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
