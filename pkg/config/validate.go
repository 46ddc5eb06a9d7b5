package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.port").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Known option values.
var (
	validSQLiteDrivers = []string{"sqlite3", "sqlite"}
	validFormats       = []string{"json", "console", "cconsole"}
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validLogFormats    = []string{"json", "text"}
	validStorageURLs   = []string{"sqlite://", "postgres://", "postgresql://", "memory://"}
	validSamplers      = []string{"always", "never", "ratio"}
)

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateStream(&cfg.Stream)...)
	errs = append(errs, validateFormat(&cfg.Format)...)
	errs = append(errs, validateKafka(&cfg.Kafka)...)
	errs = append(errs, validateSecrets(&cfg.Secrets)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.Host == "" {
		errs = append(errs, FieldError{Field: "server.host", Message: "host is required"})
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, FieldError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "max body bytes must be non-negative"})
	}
	if cfg.MaxLogAge < 0 {
		errs = append(errs, FieldError{Field: "server.max_log_age", Message: "max log age must be non-negative"})
	}

	if cfg.CORS.MaxAge < 0 {
		errs = append(errs, FieldError{Field: "server.cors.max_age", Message: "max age must be non-negative"})
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, FieldError{
				Field:   "server.rate_limit.requests_per_second",
				Message: "requests per second must be positive when rate limiting is enabled",
			})
		}
		if cfg.RateLimit.Burst < 1 {
			errs = append(errs, FieldError{
				Field:   "server.rate_limit.burst",
				Message: "burst must be at least 1 when rate limiting is enabled",
			})
		}
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.cert_file", Message: "cert file is required when TLS is enabled"})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.key_file", Message: "key file is required when TLS is enabled"})
		}
		if cfg.TLS.MinVersion != "1.2" && cfg.TLS.MinVersion != "1.3" {
			errs = append(errs, FieldError{
				Field:   "server.tls.min_version",
				Message: fmt.Sprintf("min version must be 1.2 or 1.3, got %q", cfg.TLS.MinVersion),
			})
		}
		if cfg.TLS.ReloadInterval < 0 {
			errs = append(errs, FieldError{Field: "server.tls.reload_interval", Message: "reload interval must be non-negative"})
		}
	}

	return errs
}

// validateStorage validates storage configuration.
func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	if cfg.URL != "" && !HasSecretRef(cfg.URL) {
		if !slices.ContainsFunc(validStorageURLs, func(prefix string) bool {
			return strings.HasPrefix(cfg.URL, prefix)
		}) {
			errs = append(errs, FieldError{
				Field:   "storage.url",
				Message: fmt.Sprintf("unsupported storage URL scheme (supported: %s)", strings.Join(validStorageURLs, ", ")),
			})
		} else if _, err := url.Parse(cfg.URL); err != nil {
			errs = append(errs, FieldError{Field: "storage.url", Message: "invalid URL"})
		}
	}

	if cfg.MaxLogs < 1 {
		errs = append(errs, FieldError{
			Field:   "storage.max_logs",
			Message: fmt.Sprintf("max logs must be at least 1, got %d", cfg.MaxLogs),
		})
	}
	if cfg.InitTimeout < 0 {
		errs = append(errs, FieldError{Field: "storage.init_timeout", Message: "init timeout must be positive"})
	}

	if !slices.Contains(validSQLiteDrivers, cfg.SQLite.Driver) {
		errs = append(errs, FieldError{
			Field:   "storage.sqlite.driver",
			Message: fmt.Sprintf("invalid driver %q (valid: %s)", cfg.SQLite.Driver, strings.Join(validSQLiteDrivers, ", ")),
		})
	}
	if cfg.SQLite.BusyTimeout < 0 {
		errs = append(errs, FieldError{Field: "storage.sqlite.busy_timeout", Message: "busy timeout must be non-negative"})
	}
	if cfg.SQLite.MaxOpenConns < 0 {
		errs = append(errs, FieldError{Field: "storage.sqlite.max_open_conns", Message: "max open connections must be non-negative"})
	}
	if cfg.Postgres.MaxOpenConns < 0 {
		errs = append(errs, FieldError{Field: "storage.postgres.max_open_conns", Message: "max open connections must be non-negative"})
	}

	return errs
}

// validateSecrets validates secret lookup configuration.
func validateSecrets(cfg *SecretsConfig) []FieldError {
	var errs []FieldError
	if cfg.CacheTTL < 0 {
		errs = append(errs, FieldError{Field: "secrets.cache_ttl", Message: "cache TTL must be non-negative"})
	}
	return errs
}

// HasSecretRef reports whether v contains a ${secret:name} reference.
// Such values are checked after resolution, not here.
func HasSecretRef(v string) bool {
	return strings.Contains(v, "${secret:")
}

// validateRetention validates retention configuration.
func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxAge < 0 {
		errs = append(errs, FieldError{Field: "retention.max_age", Message: "max age must be non-negative"})
	}
	if cfg.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

// validateStream validates stream configuration.
func validateStream(cfg *StreamConfig) []FieldError {
	var errs []FieldError

	if cfg.QueueLimit < 0 {
		errs = append(errs, FieldError{Field: "stream.queue_limit", Message: "queue limit must be non-negative"})
	}
	if cfg.PingInterval < 0 {
		errs = append(errs, FieldError{Field: "stream.ping_interval", Message: "ping interval must be non-negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "stream.write_timeout", Message: "write timeout must be non-negative"})
	}

	return errs
}

// validateFormat validates format configuration.
func validateFormat(cfg *FormatConfig) []FieldError {
	if !slices.Contains(validFormats, cfg.Default) {
		return []FieldError{{
			Field:   "format.default",
			Message: fmt.Sprintf("invalid format %q (valid: %s)", cfg.Default, strings.Join(validFormats, ", ")),
		}}
	}
	return nil
}

// validateKafka validates Kafka configuration. Settings are only checked
// when brokers are configured.
func validateKafka(cfg *KafkaConfig) []FieldError {
	if !cfg.Enabled() {
		return nil
	}

	var errs []FieldError
	if cfg.Topic == "" {
		errs = append(errs, FieldError{Field: "kafka.topic", Message: "topic is required when brokers are set"})
	}
	if cfg.GroupID == "" {
		errs = append(errs, FieldError{Field: "kafka.group_id", Message: "group id is required when brokers are set"})
	}
	if cfg.MinBytes < 1 || cfg.MaxBytes < cfg.MinBytes {
		errs = append(errs, FieldError{
			Field:   "kafka.max_bytes",
			Message: fmt.Sprintf("fetch bounds must satisfy 1 <= min_bytes <= max_bytes, got %d..%d", cfg.MinBytes, cfg.MaxBytes),
		})
	}
	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if !slices.Contains(validLogLevels, strings.ToLower(cfg.Logging.Level)) {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (valid: %s)", cfg.Logging.Level, strings.Join(validLogLevels, ", ")),
		})
	}
	if !slices.Contains(validLogFormats, strings.ToLower(cfg.Logging.Format)) {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (valid: %s)", cfg.Logging.Format, strings.Join(validLogFormats, ", ")),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}
	if !slices.IsSorted(cfg.Metrics.DurationBuckets) {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.duration_buckets",
			Message: "buckets must be in increasing order",
		})
	}

	if cfg.Tracing.Enabled {
		if !slices.Contains(validSamplers, cfg.Tracing.Sampler) {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q (valid: %s)", cfg.Tracing.Sampler, strings.Join(validSamplers, ", ")),
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: fmt.Sprintf("sample ratio must be between 0.0 and 1.0, got %g", cfg.Tracing.SampleRatio),
			})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
	}

	return errs
}
