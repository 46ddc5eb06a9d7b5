// Package retention removes logs that have outlived the configured maximum
// age.
//
// Count-based retention is enforced by the storage backend on every insert
// (see logstash.Storage.InsertWithEviction). This package covers the other
// half: a Pruner that deletes logs older than MaxAge across all loggers and
// scopes, and a Scheduler that runs it on a cron schedule.
//
// Usage:
//
//	pruner, err := retention.NewPruner(store, &retention.Config{
//	    MaxAge:        7 * 24 * time.Hour,
//	    PruneSchedule: "0 3 * * *",
//	})
//	if err != nil {
//	    return err
//	}
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
//
// Backends that do not implement logstash.AgePruner cannot be pruned by age
// and NewPruner rejects them when MaxAge is set.
package retention
