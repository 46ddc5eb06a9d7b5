package storage

import "fmt"

// SchemaVersion is the current database schema version. Version 1 stored
// SQLite created_at in nanoseconds, which overflows past the year 2262.
const SchemaVersion = 2

// sqliteSchema returns the statements creating the log table and its
// indexes. created_at holds Unix milliseconds so range filters compare
// integers.
func sqliteSchema(table string) string {
	return fmt.Sprintf(`
-- Log records table
CREATE TABLE IF NOT EXISTS %[1]s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    logger TEXT NOT NULL,
    level TEXT NOT NULL,
    level_rank INTEGER NOT NULL,
    message TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    scope TEXT NOT NULL DEFAULT 'public',
    created_at INTEGER NOT NULL
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- Eviction walks (scope, logger) oldest first; queries walk scope newest first
CREATE INDEX IF NOT EXISTS idx_%[1]s_scope_logger_created ON %[1]s(scope, logger, created_at);
CREATE INDEX IF NOT EXISTS idx_%[1]s_scope_created ON %[1]s(scope, created_at);
CREATE INDEX IF NOT EXISTS idx_%[1]s_created ON %[1]s(created_at);
`, table)
}

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

// migrateNanosToMillis rewrites version 1 timestamps.
const migrateNanosToMillis = `UPDATE %s SET created_at = created_at / 1000000`
