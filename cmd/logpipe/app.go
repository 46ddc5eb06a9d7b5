package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"logpipe-hq/logpipe/pkg/config"
	"logpipe-hq/logpipe/pkg/format"
	"logpipe-hq/logpipe/pkg/ingest/kafka"
	"logpipe-hq/logpipe/pkg/logstash"
	"logpipe-hq/logpipe/pkg/logstash/retention"
	"logpipe-hq/logpipe/pkg/logstash/storage"
	"logpipe-hq/logpipe/pkg/security/auth"
	"logpipe-hq/logpipe/pkg/security/secrets"
	"logpipe-hq/logpipe/pkg/server"
	"logpipe-hq/logpipe/pkg/telemetry/health"
	"logpipe-hq/logpipe/pkg/telemetry/metrics"
	"logpipe-hq/logpipe/pkg/telemetry/tracing"
)

const tracerShutdownTimeout = 5 * time.Second

// app is a fully wired logpipe server.
type app struct {
	cfg       *config.Config
	cfgPath   string
	store     logstash.Storage
	stash     *logstash.Stash
	whitelist *auth.Whitelist
	formats   *format.Registry
	collector *metrics.Collector
	tracer    *tracing.Tracer
	checker   *health.Checker
	server    *server.Server
	pruner    *retention.Pruner
	consumer  *kafka.Consumer
	secrets   *secrets.Manager
	logger    *slog.Logger
}

func storageOptions(cfg *config.StorageConfig) storage.OpenOptions {
	return storage.OpenOptions{
		URL:                  cfg.URL,
		Table:                cfg.Table,
		SQLiteDriver:         cfg.SQLite.Driver,
		WALMode:              cfg.SQLite.WALMode,
		BusyTimeout:          cfg.SQLite.BusyTimeout,
		MaxOpenConns:         cfg.SQLite.MaxOpenConns,
		CheckpointInterval:   cfg.SQLite.CheckpointInterval,
		PostgresMaxOpenConns: cfg.Postgres.MaxOpenConns,
	}
}

// openStash opens the configured backend behind a stash guarded by the
// configured whitelist.
func openStash(cfg *config.Config, opts ...logstash.Option) (*logstash.Stash, logstash.Storage, *auth.Whitelist, error) {
	store, err := storage.Open(storageOptions(&cfg.Storage))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	whitelist := auth.NewWhitelist(cfg.Auth.Whitelist)
	opts = append([]logstash.Option{
		logstash.WithAuthorizer(whitelist),
		logstash.WithMaxLogs(cfg.Storage.MaxLogs),
		logstash.WithStreamQueueLimit(cfg.Stream.QueueLimit),
		logstash.WithInitTimeout(cfg.Storage.InitTimeout),
	}, opts...)
	return logstash.New(store, opts...), store, whitelist, nil
}

// newApp wires every component from cfg. cfgPath, when set, is watched for
// whitelist and retention changes.
func newApp(cfg *config.Config, cfgPath string, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		cfgPath: cfgPath,
		logger:  logger,
	}

	secretsMgr, err := secrets.FromConfig(cfg.Secrets)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets manager: %w", err)
	}
	a.secrets = secretsMgr

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	a.tracer = tracer

	a.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())

	a.stash, a.store, a.whitelist, err = openStash(cfg,
		logstash.WithMetrics(a.collector),
		logstash.WithLogger(logger.With("component", "logstash")),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	if cfg.Retention.MaxAge > 0 {
		a.pruner, err = retention.NewPruner(a.store, &retention.Config{
			MaxAge:        cfg.Retention.MaxAge,
			PruneSchedule: cfg.Retention.PruneSchedule,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to create retention pruner: %w", err)
		}
	}

	a.formats = format.NewRegistry()
	if err := a.formats.SetDefault(cfg.Format.Default); err != nil {
		a.close()
		return nil, err
	}

	a.checker = health.New(0)
	a.checker.RegisterCheck("stash", health.StashCheck(a.stash))
	a.checker.RegisterCheck("storage", health.StorageCheck(a.store))

	if cfg.Kafka.Enabled() {
		a.consumer = kafka.NewConsumer(kafka.NewReader(cfg.Kafka), a.stash, cfg.Kafka.CallerKey,
			kafka.WithMetrics(a.collector),
			kafka.WithTracer(a.tracer),
		)
		a.checker.RegisterCheck("kafka", health.RunningCheck(a.consumer.Running))
	}

	opts := []server.Option{
		server.WithHealth(a.checker),
		server.WithTracer(a.tracer),
		server.WithFormats(a.formats),
		server.WithVersion(versionInfo()),
		server.WithStreamConfig(cfg.Stream),
	}
	if cfg.Telemetry.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(a.collector, cfg.Telemetry.Metrics.Path))
	}
	a.server = server.NewServer(&cfg.Server, a.stash, opts...)
	return a, nil
}

// run serves until ctx ends or a component fails.
func (a *app) run(ctx context.Context) error {
	if err := a.stash.Init(ctx); err != nil {
		a.logger.Warn("storage not ready, retrying on demand", "error", err)
	}

	if a.pruner != nil {
		if err := a.pruner.Start(ctx); err != nil {
			return err
		}
		if next := a.pruner.NextPruning(); next != nil {
			a.logger.Info("retention pruning scheduled", "max_age", a.cfg.Retention.MaxAge.String(), "next_pruning", next)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Start(gctx)
	})
	if a.consumer != nil {
		g.Go(func() error {
			return a.consumer.Run(gctx)
		})
	}
	if a.cfgPath != "" {
		watcher, err := config.NewWatcher(a.cfgPath, 0)
		if err != nil {
			a.logger.Warn("config reload disabled", "error", err)
		} else {
			g.Go(func() error {
				defer watcher.Stop()
				if err := watcher.Watch(gctx, a.reload); err != nil {
					a.logger.Warn("config reload stopped", "error", err)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

// reload applies the settings that can change without a restart. Secrets
// are read again, so rotated whitelist keys take effect too.
func (a *app) reload(next *config.Config) {
	a.secrets.Refresh()
	if err := a.secrets.ResolveConfig(context.Background(), next); err != nil {
		a.logger.Error("configuration not reloaded", "error", err)
		return
	}
	a.whitelist.Replace(next.Auth.Whitelist)
	a.stash.SetMaxLogs(next.Storage.MaxLogs)
	if err := a.formats.SetDefault(next.Format.Default); err != nil {
		a.logger.Warn("default format not changed", "error", err)
	}
	a.logger.Info("configuration reloaded",
		"whitelist_keys", len(next.Auth.Whitelist),
		"max_logs", next.Storage.MaxLogs,
		"default_format", next.Format.Default,
	)
}

func (a *app) close() error {
	var errs []error
	if a.pruner != nil {
		a.pruner.Stop()
	}
	if a.consumer != nil {
		errs = append(errs, a.consumer.Close())
	}
	if a.stash != nil {
		errs = append(errs, a.stash.Close())
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
