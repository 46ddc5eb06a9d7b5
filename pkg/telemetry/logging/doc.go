// Package logging builds the process logger on log/slog.
//
// # Usage
//
//	logger, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging, os.Stderr))
//	if err != nil {
//	    return err
//	}
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.InfoContext(ctx, "log stored", "logger", "billing")
//	// {"level":"INFO","msg":"log stored","logger":"billing","request_id":"req-123"}
//
// Components take their logger from slog.Default() and tag it with a
// "component" attribute.
//
// # Redaction
//
// With RedactKeys enabled, values under keys such as auth_key, caller_key,
// authorization and database_url are cut to a four character prefix.
// String values are also scanned for bearer tokens, authKey query
// parameters and passwords embedded in connection URLs.
package logging
