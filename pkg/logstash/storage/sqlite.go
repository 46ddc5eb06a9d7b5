package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"logpipe-hq/logpipe/pkg/logstash"
)

// SQLite driver names accepted by SQLiteConfig.Driver.
const (
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3, requires cgo
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Table is the log table name.
	// Default: "logs"
	Table string

	// Driver selects the database/sql driver: "sqlite3" or "sqlite".
	// Default: "sqlite3"
	Driver string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CheckpointInterval is how often the WAL is checkpointed. Zero disables
	// the background checkpoint.
	// Default: 5 minutes
	CheckpointInterval time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:               "data/logpipe.db",
		Table:              DefaultTable,
		Driver:             DriverMattn,
		MaxOpenConns:       10,
		MaxIdleConns:       5,
		WALMode:            true,
		BusyTimeout:        5 * time.Second,
		CheckpointInterval: 5 * time.Minute,
	}
}

// SQLiteStorage implements the logstash.Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	table  string
	logger *slog.Logger

	// writeMu serializes eviction and insert; SQLite allows one writer.
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
	loopOnce  sync.Once
}

// NewSQLiteStorage creates a new SQLite storage backend. The database is
// opened lazily; schema creation happens in Initialize.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Path == "" {
		return nil, logstash.NewStorageError("sqlite", "open", fmt.Errorf("db path cannot be empty"))
	}
	if config.Table == "" {
		config.Table = DefaultTable
	}
	if err := ValidateTableName(config.Table); err != nil {
		return nil, logstash.NewStorageError("sqlite", "open", err)
	}
	if config.Driver == "" {
		config.Driver = DriverMattn
	}
	if config.Driver != DriverMattn && config.Driver != DriverModernc {
		return nil, logstash.NewStorageError("sqlite", "open", fmt.Errorf("unknown sqlite driver %q", config.Driver))
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "logstash.storage.sqlite")

	db, err := sql.Open(config.Driver, sqliteDSN(config))
	if err != nil {
		return nil, logstash.NewStorageError("sqlite", "open", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	return &SQLiteStorage{
		db:     db,
		config: config,
		table:  config.Table,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// sqliteDSN puts per-connection pragmas in the DSN so every pooled
// connection gets them.
func sqliteDSN(config *SQLiteConfig) string {
	busy := config.BusyTimeout.Milliseconds()
	if config.Driver == DriverModernc {
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", config.Path, busy)
		if config.WALMode {
			dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
		}
		return dsn
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", config.Path, busy)
	if config.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	return dsn
}

// Initialize creates the schema and verifies its version. It is idempotent.
func (s *SQLiteStorage) Initialize(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return logstash.NewStorageError("sqlite", "connect", err)
	}

	if _, err := s.db.ExecContext(ctx, sqliteSchema(s.table)); err != nil {
		return logstash.NewStorageError("sqlite", "create_schema", err)
	}
	s.logger.Debug("database schema created", "table", s.table)

	if err := s.migrate(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, InsertSchemaVersion, SchemaVersion); err != nil {
		return logstash.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRowContext(ctx, GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return logstash.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return logstash.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	if s.config.WALMode && s.config.CheckpointInterval > 0 {
		s.loopOnce.Do(func() {
			go s.checkpointLoop()
		})
	}

	s.logger.Info("SQLite storage initialized",
		"path", s.config.Path,
		"driver", s.config.Driver,
		"table", s.table,
		"wal_mode", s.config.WALMode,
	)
	return nil
}

// migrate upgrades a database written by an earlier schema version.
func (s *SQLiteStorage) migrate(ctx context.Context) error {
	var version int
	err := s.db.QueryRowContext(ctx, GetSchemaVersion).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return logstash.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != 1 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return logstash.NewStorageError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, fmt.Sprintf(migrateNanosToMillis, s.table))
	if err != nil {
		return logstash.NewStorageError("sqlite", "migrate", err)
	}
	if _, err := tx.ExecContext(ctx, InsertSchemaVersion, SchemaVersion); err != nil {
		return logstash.NewStorageError("sqlite", "insert_schema_version", err)
	}
	if err := tx.Commit(); err != nil {
		return logstash.NewStorageError("sqlite", "commit", err)
	}

	rows, _ := result.RowsAffected()
	s.logger.Info("migrated schema", "from", version, "to", SchemaVersion, "rows", rows)
	return nil
}

// InsertWithEviction inserts log and then evicts the oldest logs of the same
// logger and scope beyond maxLogsPerScope, inside one transaction. A log
// older than every retained one is evicted by its own insert.
func (s *SQLiteStorage) InsertWithEviction(ctx context.Context, log *logstash.Log, maxLogsPerScope int, callerKey string) (int64, error) {
	scope := logstash.ScopeOf(callerKey)
	tags, err := json.Marshal(nonNilTags(log.Tags))
	if err != nil {
		return 0, logstash.NewStorageError("sqlite", "insert", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, logstash.NewStorageError("sqlite", "begin", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (logger, level, level_rank, message, tags, scope, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.table)

	result, err := tx.ExecContext(ctx, query,
		log.Logger, log.Level, logstash.Rank(log.Level), log.Message,
		string(tags), scope, log.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return 0, logstash.NewStorageError("sqlite", "insert", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, logstash.NewStorageError("sqlite", "insert", err)
	}

	if maxLogsPerScope > 0 {
		if err := s.evict(ctx, tx, log.Logger, scope, maxLogsPerScope); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, logstash.NewStorageError("sqlite", "commit", err)
	}
	return id, nil
}

func (s *SQLiteStorage) evict(ctx context.Context, tx *sql.Tx, logger, scope string, max int) error {
	var count int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE logger = ? AND scope = ?", s.table)
	if err := tx.QueryRowContext(ctx, countQuery, logger, scope).Scan(&count); err != nil {
		return logstash.NewStorageError("sqlite", "count", err)
	}

	excess := count - max
	if excess <= 0 {
		return nil
	}

	deleteQuery := fmt.Sprintf(`
		DELETE FROM %[1]s
		WHERE id IN (
			SELECT id FROM %[1]s
			WHERE logger = ? AND scope = ?
			ORDER BY created_at ASC, id ASC
			LIMIT ?
		)
	`, s.table)
	if _, err := tx.ExecContext(ctx, deleteQuery, logger, scope, excess); err != nil {
		return logstash.NewStorageError("sqlite", "evict", err)
	}

	s.logger.Debug("evicted logs", "logger", logger, "count", excess)
	return nil
}

// Query returns logs of the caller's scope matching filter, newest first.
func (s *SQLiteStorage) Query(ctx context.Context, filter logstash.Filter, callerKey string) ([]*logstash.Log, error) {
	where := s.buildWhereClause(filter, logstash.ScopeOf(callerKey))

	query := fmt.Sprintf(
		"SELECT id, logger, level, message, tags, created_at FROM %s WHERE %s ORDER BY created_at DESC, id DESC LIMIT %s",
		s.table, where.String(), where.next(),
	)
	args := append(where.args, filter.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, logstash.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	logs := []*logstash.Log{}
	for rows.Next() {
		log, err := scanSQLiteRow(rows)
		if err != nil {
			return nil, logstash.NewStorageError("sqlite", "scan", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, logstash.NewStorageError("sqlite", "query", err)
	}
	return logs, nil
}

// buildWhereClause builds the WHERE clause for filter within scope.
func (s *SQLiteStorage) buildWhereClause(filter logstash.Filter, scope string) *whereBuilder {
	b := &whereBuilder{placeholder: func(int) string { return "?" }}

	b.add("scope = %s", scope)

	if len(filter.Tags) > 0 {
		markers := strings.TrimSuffix(strings.Repeat("%s,", len(filter.Tags)), ",")
		args := make([]interface{}, len(filter.Tags))
		for i, tag := range filter.Tags {
			args[i] = tag
		}
		b.add("EXISTS (SELECT 1 FROM json_each("+s.table+".tags) WHERE json_each.value IN ("+markers+"))", args...)
	}
	if filter.From != nil {
		b.add("created_at >= %s", ceilMilli(*filter.From))
	}
	if filter.To != nil {
		b.add("created_at <= %s", filter.To.UnixMilli())
	}
	if filter.AfterID > 0 {
		b.add("id > %s", filter.AfterID)
	}
	if filter.Level != "" {
		level, rank := levelArgs(filter)
		b.add("(UPPER(TRIM(level)) = %s OR level_rank <= %s)", level, rank)
	}

	return b
}

// DeleteOlderThan removes logs created before cutoff across all scopes.
func (s *SQLiteStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := fmt.Sprintf("DELETE FROM %s WHERE created_at < ?", s.table)
	result, err := s.db.ExecContext(ctx, query, ceilMilli(cutoff))
	if err != nil {
		return 0, logstash.NewStorageError("sqlite", "delete", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, logstash.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Count returns the number of logs stored under scope.
func (s *SQLiteStorage) Count(ctx context.Context, scope string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE scope = ?", s.table)
	if err := s.db.QueryRowContext(ctx, query, scope).Scan(&count); err != nil {
		return 0, logstash.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return logstash.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close stops the checkpoint loop and closes the database.
func (s *SQLiteStorage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if closeErr := s.db.Close(); closeErr != nil {
			err = logstash.NewStorageError("sqlite", "close", closeErr)
			return
		}
		s.logger.Info("SQLite storage closed")
	})
	return err
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteStorage) checkpointLoop() {
	ticker := time.NewTicker(s.config.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
				s.logger.Warn("WAL checkpoint failed", "error", err)
			}
		case <-s.done:
			return
		}
	}
}

func scanSQLiteRow(rows *sql.Rows) (*logstash.Log, error) {
	var (
		id        int64
		logger    string
		level     string
		message   string
		tags      string
		createdAt int64
	)
	if err := rows.Scan(&id, &logger, &level, &message, &tags, &createdAt); err != nil {
		return nil, err
	}

	var tagList []string
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &tagList); err != nil {
			return nil, fmt.Errorf("decode tags of log %d: %w", id, err)
		}
	}

	return &logstash.Log{
		ID:        id,
		Logger:    logger,
		Level:     level,
		Message:   message,
		CreatedAt: time.UnixMilli(createdAt).UTC(),
		Tags:      nonNilTags(tagList),
	}, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// ceilMilli rounds t up to whole milliseconds. created_at holds milliseconds,
// so created_at >= ceilMilli(t) is the same predicate as createdAt >= t.
func ceilMilli(t time.Time) int64 {
	ms := t.UnixMilli()
	if t.Nanosecond()%int(time.Millisecond) != 0 {
		ms++
	}
	return ms
}
