/*
Package secrets resolves ${secret:name} references in configuration values.

Credentials such as a database password or caller keys do not have to live
in the config file. A value can reference a secret instead:

	storage:
	  url: postgres://logpipe:${secret:db-password}@db:5432/logs
	auth:
	  whitelist: ["${secret:ingest-key}", "ops"]
	kafka:
	  caller_key: ${secret:ingest-key}

References are looked up in environment variables first, then in the
secrets directory:

  - EnvProvider: ${secret:db-password} reads LOGPIPE_SECRET_DB_PASSWORD
  - FileProvider: ${secret:db-password} reads <dir>/db-password, trimmed,
    which must be mode 0600 or 0400

# Usage

	mgr, err := secrets.FromConfig(cfg.Secrets)
	if err != nil {
		return err
	}
	if err := mgr.ResolveConfig(ctx, cfg); err != nil {
		return err
	}

Resolved values are cached for secrets.cache_ttl. Refresh drops the cache
so rotated secrets are read again on the next configuration reload.
*/
package secrets
