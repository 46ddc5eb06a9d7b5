// Package config provides configuration management for logpipe.
//
// Configuration is read from an optional YAML file, layered over defaults,
// overridden by environment variables and validated as a whole.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("logpipe.yaml")
//
//  2. From a YAML file (optional) with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("logpipe.yaml")
//
// # Environment Variable Overrides
//
// Variables use the LOGPIPE_ prefix:
//
//   - LOGPIPE_DATABASE_URL (or DATABASE_URL) overrides storage.url
//   - LOGPIPE_MAX_LOGS overrides storage.max_logs
//   - LOGPIPE_TABLE overrides storage.table
//   - LOGPIPE_HOST and LOGPIPE_PORT override server.host and server.port
//   - LOGPIPE_DEFAULT_FORMAT overrides format.default
//   - LOGPIPE_AUTH_WHITELIST (comma separated) overrides auth.whitelist
//
// Malformed numeric, boolean or duration values are reported as
// FieldErrors naming the variable.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Hot Reload
//
// Watcher observes the configuration file and hands every successfully
// validated reload to a callback. The server uses it to swap the caller
// key whitelist and the per-scope retention bound without a restart.
//
// # Example Configuration
//
//	server:
//	  host: 0.0.0.0
//	  port: 7068
//	  max_log_age: 1h
//	storage:
//	  url: sqlite:///var/lib/logpipe/logs.sqlite
//	  max_logs: 1000
//	auth:
//	  whitelist: ["team-a-key", "team-b-key"]
//	retention:
//	  max_age: 168h
//	  prune_schedule: "0 3 * * *"
package config
