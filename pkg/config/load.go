package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// Values are decoded over Defaults and validated. Environment variables are
// not consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. An empty path, or a path that
// does not exist, yields defaults plus environment.
//
// The loading sequence is:
// 1. Start from default values
// 2. Decode the YAML file, if any
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		default:
			if cfg, err = parse(data); err != nil {
				return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
			}
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// envOverride binds an environment variable to a setter.
type envOverride struct {
	names []string
	apply func(cfg *Config, val string) error
}

// envOverrides lists the supported variables. Where several names are
// given the first one set wins; DATABASE_URL is honoured for platforms
// that inject it.
var envOverrides = []envOverride{
	{[]string{"LOGPIPE_DATABASE_URL", "DATABASE_URL"}, func(c *Config, v string) error { c.Storage.URL = v; return nil }},
	{[]string{"LOGPIPE_TABLE"}, func(c *Config, v string) error { c.Storage.Table = v; return nil }},
	{[]string{"LOGPIPE_MAX_LOGS"}, intSetter(func(c *Config) *int { return &c.Storage.MaxLogs })},
	{[]string{"LOGPIPE_SQLITE_DRIVER"}, func(c *Config, v string) error { c.Storage.SQLite.Driver = v; return nil }},
	{[]string{"LOGPIPE_HOST"}, func(c *Config, v string) error { c.Server.Host = v; return nil }},
	{[]string{"LOGPIPE_PORT"}, intSetter(func(c *Config) *int { return &c.Server.Port })},
	{[]string{"LOGPIPE_TLS_CERT_FILE"}, func(c *Config, v string) error { c.Server.TLS.CertFile = v; c.Server.TLS.Enabled = true; return nil }},
	{[]string{"LOGPIPE_TLS_KEY_FILE"}, func(c *Config, v string) error { c.Server.TLS.KeyFile = v; return nil }},
	{[]string{"LOGPIPE_MAX_LOG_AGE"}, durationSetter(func(c *Config) *time.Duration { return &c.Server.MaxLogAge })},
	{[]string{"LOGPIPE_DEFAULT_FORMAT"}, func(c *Config, v string) error { c.Format.Default = v; return nil }},
	{[]string{"LOGPIPE_AUTH_WHITELIST"}, func(c *Config, v string) error { c.Auth.Whitelist = splitList(v); return nil }},
	{[]string{"LOGPIPE_RETENTION_MAX_AGE"}, durationSetter(func(c *Config) *time.Duration { return &c.Retention.MaxAge })},
	{[]string{"LOGPIPE_RETENTION_PRUNE_SCHEDULE"}, func(c *Config, v string) error { c.Retention.PruneSchedule = v; return nil }},
	{[]string{"LOGPIPE_STREAM_QUEUE_LIMIT"}, intSetter(func(c *Config) *int { return &c.Stream.QueueLimit })},
	{[]string{"LOGPIPE_KAFKA_BROKERS"}, func(c *Config, v string) error { c.Kafka.Brokers = splitList(v); return nil }},
	{[]string{"LOGPIPE_KAFKA_TOPIC"}, func(c *Config, v string) error { c.Kafka.Topic = v; return nil }},
	{[]string{"LOGPIPE_KAFKA_GROUP_ID"}, func(c *Config, v string) error { c.Kafka.GroupID = v; return nil }},
	{[]string{"LOGPIPE_KAFKA_CALLER_KEY"}, func(c *Config, v string) error { c.Kafka.CallerKey = v; return nil }},
	{[]string{"LOGPIPE_SECRETS_DIR"}, func(c *Config, v string) error { c.Secrets.Dir = v; return nil }},
	{[]string{"LOGPIPE_LOG_LEVEL"}, func(c *Config, v string) error { c.Telemetry.Logging.Level = v; return nil }},
	{[]string{"LOGPIPE_LOG_FORMAT"}, func(c *Config, v string) error { c.Telemetry.Logging.Format = v; return nil }},
	{[]string{"LOGPIPE_METRICS_ENABLED"}, boolSetter(func(c *Config) *bool { return &c.Telemetry.Metrics.Enabled })},
	{[]string{"LOGPIPE_RATE_LIMIT_ENABLED"}, boolSetter(func(c *Config) *bool { return &c.Server.RateLimit.Enabled })},
	{[]string{"LOGPIPE_TRACING_ENABLED"}, boolSetter(func(c *Config) *bool { return &c.Telemetry.Tracing.Enabled })},
	{[]string{"LOGPIPE_TRACING_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, func(c *Config, v string) error { c.Telemetry.Tracing.Endpoint = v; return nil }},
}

// applyEnvOverrides applies environment variable overrides. Unlike file
// values, malformed numbers are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []FieldError
	for _, o := range envOverrides {
		for _, name := range o.names {
			val, ok := os.LookupEnv(name)
			if !ok || val == "" {
				continue
			}
			if err := o.apply(cfg, val); err != nil {
				errs = append(errs, FieldError{Field: name, Message: err.Error()})
			}
			break
		}
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid integer %q", v)
		}
		*field(c) = i
		return nil
	}
}

func boolSetter(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid boolean %q", v)
		}
		*field(c) = b
		return nil
	}
}

func durationSetter(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid duration %q", v)
		}
		*field(c) = d
		return nil
	}
}

// splitList splits a comma separated list, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
