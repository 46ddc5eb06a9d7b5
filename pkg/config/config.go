package config

import "time"

// Config is the root configuration structure for logpipe.
type Config struct {
	// Server contains HTTP/WebSocket server configuration.
	Server ServerConfig `yaml:"server"`

	// Storage selects and tunes the log storage backend.
	Storage StorageConfig `yaml:"storage"`

	// Retention configures age-based pruning.
	Retention RetentionConfig `yaml:"retention"`

	// Auth contains the caller-key whitelist.
	Auth AuthConfig `yaml:"auth"`

	// Stream contains live-stream settings.
	Stream StreamConfig `yaml:"stream"`

	// Format contains output format settings.
	Format FormatConfig `yaml:"format"`

	// Kafka configures the optional Kafka ingestion consumer.
	Kafka KafkaConfig `yaml:"kafka"`

	// Secrets configures ${secret:name} references in other values.
	Secrets SecretsConfig `yaml:"secrets"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// Host is the interface to listen on.
	// Default: "0.0.0.0"
	Host string `yaml:"host"`

	// Port is the TCP port to listen on.
	// Default: 7068
	Port int `yaml:"port"`

	// ReadTimeout is the maximum duration for reading an entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response. It does
	// not apply to WebSocket streams, which manage their own deadlines.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1MB
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits the /write request body.
	// Default: 10MB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// MaxLogAge rejects writes whose createdAt is older than this.
	// 0 disables the check.
	// Default: 1h
	MaxLogAge time.Duration `yaml:"max_log_age"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`

	// RateLimit limits writes per caller key.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// TLS serves HTTPS and WSS when enabled.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS termination settings.
type TLSConfig struct {
	// Enabled turns on TLS.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM certificate path.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM private key path.
	KeyFile string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// ReloadInterval is how often certificate files are checked for
	// changes. 0 disables reloading.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are sent.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists allowed origins; ["*"] allows all.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods lists allowed methods.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders lists allowed request headers.
	// Default: ["Authorization", "Content-Type", "X-Auth-Key", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the preflight cache lifetime in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// RateLimitConfig configures per-caller write rate limiting.
type RateLimitConfig struct {
	// Enabled turns the limiter on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// RequestsPerSecond is the sustained rate per caller key.
	// Default: 100
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the bucket size per caller key.
	// Default: 200
	Burst int `yaml:"burst"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// URL selects the backend: sqlite://path, postgres://..., memory://.
	// Empty means a SQLite file in the system temp directory.
	URL string `yaml:"url"`

	// Table is the log table name.
	// Default: "logs"
	Table string `yaml:"table"`

	// MaxLogs is the per-(logger, caller scope) retention bound.
	// Default: 1000
	MaxLogs int `yaml:"max_logs"`

	// InitTimeout bounds lazy backend initialization.
	// Default: 30s
	InitTimeout time.Duration `yaml:"init_timeout"`

	// SQLite tunes the SQLite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres tunes the PostgreSQL backend.
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig tunes the SQLite backend.
type SQLiteConfig struct {
	// Driver is "sqlite3" (cgo) or "sqlite" (pure Go).
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// MaxOpenConns bounds the connection pool.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// CheckpointInterval runs periodic WAL checkpoints. 0 disables them.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// PostgresConfig tunes the PostgreSQL backend.
type PostgresConfig struct {
	// MaxOpenConns bounds the connection pool.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`
}

// RetentionConfig configures age-based pruning.
type RetentionConfig struct {
	// MaxAge deletes logs older than this. 0 keeps logs forever.
	// Default: 0
	MaxAge time.Duration `yaml:"max_age"`

	// PruneSchedule is a cron expression.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// AuthConfig contains the caller-key whitelist.
type AuthConfig struct {
	// Whitelist lists accepted caller keys. Empty or ["*"] accepts any
	// caller, including anonymous ones.
	Whitelist []string `yaml:"whitelist"`
}

// StreamConfig contains live-stream settings.
type StreamConfig struct {
	// QueueLimit bounds each stream's pending queue; the oldest entry is
	// dropped when full. 0 means unbounded.
	// Default: 0
	QueueLimit int `yaml:"queue_limit"`

	// PingInterval is the WebSocket keep-alive interval.
	// Default: 30s
	PingInterval time.Duration `yaml:"ping_interval"`

	// WriteTimeout bounds a single WebSocket write.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// FormatConfig contains output format settings.
type FormatConfig struct {
	// Default is the format used when a request names none.
	// Options: "json", "console", "cconsole"
	// Default: "console"
	Default string `yaml:"default"`
}

// KafkaConfig configures the Kafka ingestion consumer.
type KafkaConfig struct {
	// Brokers lists bootstrap brokers. Empty disables the consumer.
	Brokers []string `yaml:"brokers"`

	// Topic is the topic to consume.
	// Default: "logs"
	Topic string `yaml:"topic"`

	// GroupID is the consumer group.
	// Default: "logpipe"
	GroupID string `yaml:"group_id"`

	// CallerKey is the key under which consumed logs are stored.
	CallerKey string `yaml:"caller_key"`

	// MinBytes and MaxBytes bound fetch sizes.
	// Defaults: 1 and 10MB
	MinBytes int `yaml:"min_bytes"`
	MaxBytes int `yaml:"max_bytes"`
}

// Enabled reports whether Kafka ingestion is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// SecretsConfig configures where ${secret:name} references are looked up.
// Environment variables are consulted first, then Dir.
type SecretsConfig struct {
	// EnvPrefix namespaces secret environment variables: with the default,
	// ${secret:db-password} reads LOGPIPE_SECRET_DB_PASSWORD.
	// Default: "LOGPIPE_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir holds one file per secret, as mounted by Kubernetes. Empty
	// disables file secrets.
	Dir string `yaml:"dir"`

	// CacheTTL bounds how long a resolved secret is reused. 0 disables
	// caching.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactKeys masks caller keys and credentials in log attributes.
	// Default: true
	RedactKeys bool `yaml:"redact_keys"`
}

// MetricsConfig contains metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "logpipe"
	Namespace string `yaml:"namespace"`

	// DurationBuckets are histogram buckets for stash operations, in seconds.
	DurationBuckets []float64 `yaml:"duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "logpipe"
	ServiceName string `yaml:"service_name"`
}

// ListenAddress returns host:port.
func (s ServerConfig) ListenAddress() string {
	return joinHostPort(s.Host, s.Port)
}
