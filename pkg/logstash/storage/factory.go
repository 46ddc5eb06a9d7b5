package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"logpipe-hq/logpipe/pkg/logstash"
)

// DefaultSQLiteFile is the database file created in the system temp
// directory when no storage URL is configured.
const DefaultSQLiteFile = "logpipe.sqlite"

// OpenOptions selects and configures a backend.
type OpenOptions struct {
	// URL selects the backend by scheme:
	//   sqlite:///var/lib/logpipe.db or sqlite://relative/path.db
	//   postgres://... or postgresql://...
	//   memory://
	// Empty selects a SQLite file in the system temp directory.
	URL string

	// Table is the log table name for SQL backends.
	Table string

	// SQLite backend tuning.
	SQLiteDriver       string
	WALMode            bool
	BusyTimeout        time.Duration
	MaxOpenConns       int
	CheckpointInterval time.Duration

	// PostgreSQL pool size.
	PostgresMaxOpenConns int
}

// Open creates the backend selected by opts.URL. The backend is not
// initialized; the stash does that lazily.
func Open(opts OpenOptions) (logstash.Storage, error) {
	logger := slog.Default().With("component", "logstash.storage")

	url := strings.TrimSpace(opts.URL)
	switch {
	case url == "":
		path := filepath.Join(os.TempDir(), DefaultSQLiteFile)
		logger.Info("no storage url configured, using temporary SQLite database", "path", path)
		return openSQLite(path, opts)

	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite url %q has no path", url)
		}
		return openSQLite(path, opts)

	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		store, err := NewPostgresStorage(&PostgresConfig{
			URL:          url,
			Table:        opts.Table,
			MaxOpenConns: opts.PostgresMaxOpenConns,
		})
		if err != nil {
			return nil, err
		}
		return store, nil

	case strings.HasPrefix(url, "memory://"):
		return NewMemoryStorage(), nil

	default:
		return nil, fmt.Errorf("unsupported storage url %q: expected sqlite://, postgres://, postgresql:// or memory://", redactURL(url))
	}
}

func openSQLite(path string, opts OpenOptions) (logstash.Storage, error) {
	config := DefaultSQLiteConfig()
	config.Path = path
	config.WALMode = opts.WALMode
	if opts.Table != "" {
		config.Table = opts.Table
	}
	if opts.SQLiteDriver != "" {
		config.Driver = opts.SQLiteDriver
	}
	if opts.BusyTimeout > 0 {
		config.BusyTimeout = opts.BusyTimeout
	}
	if opts.MaxOpenConns > 0 {
		config.MaxOpenConns = opts.MaxOpenConns
	}
	if opts.CheckpointInterval > 0 {
		config.CheckpointInterval = opts.CheckpointInterval
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, logstash.NewStorageError("sqlite", "open", err)
		}
	}
	store, err := NewSQLiteStorage(config)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// redactURL drops everything after the scheme so credentials never reach
// error messages.
func redactURL(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		return url[:i+3] + "..."
	}
	if len(url) > 8 {
		return url[:8] + "..."
	}
	return url
}
