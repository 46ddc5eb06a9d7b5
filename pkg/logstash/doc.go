// Package logstash stores structured log records and serves them back as
// point-in-time queries and live tail subscriptions.
//
// # Architecture
//
// The stash sits between producers and a pluggable storage backend:
//
//  1. Stash - authorization, lazy initialization, retention bound, listener fan-out
//  2. Storage - durable insert-with-eviction and range queries (SQLite, PostgreSQL, memory)
//  3. Stream - per-subscription bridge that replays history and then tails new writes
//
// # Write Flow
//
//	Producer → AddLog(log, callerKey)
//	     ↓
//	Authorize caller key against whitelist
//	     ↓
//	Initialize storage (once, retried after failure)
//	     ↓
//	InsertWithEviction (oldest rows per logger and scope removed)
//	     ↓
//	Notify every registered stream listener
//
// # Scopes
//
// Every log is written under the scope of its caller key. A missing key maps to
// the "public" scope. Queries and streams only ever see logs of their own scope.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{Path: "data/logpipe.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	stash := logstash.New(store, logstash.WithMaxLogs(1000))
//	defer stash.Close()
//
//	entry, _ := logstash.NewLog("svc", "INFO", "started", time.Now(), []string{"boot"})
//	saved, err := stash.AddLog(ctx, entry, "")
//
//	stream, err := stash.GetAsStream(ctx, logstash.Filter{Tags: []string{"boot"}}, "")
//	defer stream.Close()
//	for entry := range stream.All(ctx) {
//	    fmt.Println(entry.Message)
//	}
//
// # Delivery Guarantees
//
// A stream registers its listener before it reads history, so a log written
// while the stream starts is never missed. The same log may however be seen
// twice: once from history and once from the live queue. Consumers that need
// uniqueness should drop ids they have already seen.
package logstash
