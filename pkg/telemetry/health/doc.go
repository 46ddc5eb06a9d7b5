// Package health provides liveness and readiness endpoints.
//
// # Endpoints
//
//   - /health: liveness, 200 while the process runs
//   - /ready: readiness, 200 when every registered check passes, else 503
//   - /version: build information
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("stash", health.StashCheck(stash))
//	checker.RegisterCheck("storage", health.StorageCheck(store))
//
//	mux.HandleFunc("/health", checker.LivenessHandler())
//	mux.HandleFunc("/ready", checker.ReadinessHandler())
//
// StashCheck doubles as an initialization driver: while the stash is not
// ready, each probe retries backend initialization.
//
// Checks run concurrently, each bounded by the checker timeout; a check
// that overruns is reported unhealthy with ErrCheckTimeout.
package health
