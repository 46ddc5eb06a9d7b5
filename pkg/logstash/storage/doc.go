// Package storage provides storage backends for the log stash.
//
// # Storage Backends
//
//   - SQLite: Embedded database for single-node deployments. Two drivers are
//     supported: github.com/mattn/go-sqlite3 (cgo) and modernc.org/sqlite
//     (pure Go).
//   - PostgreSQL: Shared database through the pgx database/sql driver.
//   - Memory: In-process storage for tests and local development.
//
// # Retention
//
// Every backend evicts per (logger, scope) group inside InsertWithEviction:
// before a log is inserted, the oldest logs of its group are deleted so that
// the group never holds more than the configured maximum. SQL backends run
// eviction and insert in one transaction.
//
// # Selecting a Backend
//
//	store, err := storage.Open(storage.OpenOptions{
//	    URL:     "sqlite://data/logpipe.db",
//	    Table:   "logs",
//	    WALMode: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	stash := logstash.New(store)
package storage
