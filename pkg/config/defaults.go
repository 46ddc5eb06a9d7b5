package config

import (
	"net"
	"strconv"
	"time"
)

// Default values for configuration fields.
const (
	// Server defaults
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 7068
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20
	DefaultMaxBodyBytes    = int64(10 << 20)
	DefaultMaxLogAge       = time.Hour

	// CORS defaults
	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600

	// Rate limit defaults
	DefaultRateLimitRPS   = 100.0
	DefaultRateLimitBurst = 200

	// TLS defaults
	DefaultTLSMinVersion     = "1.3"
	DefaultTLSReloadInterval = 5 * time.Minute

	// Storage defaults
	DefaultStorageTable = "logs"
	DefaultMaxLogs      = 1000
	DefaultInitTimeout  = 30 * time.Second

	// SQLite defaults
	DefaultSQLiteDriver             = "sqlite3"
	DefaultSQLiteWALMode            = true
	DefaultSQLiteBusyTimeout        = 5 * time.Second
	DefaultSQLiteMaxOpenConns       = 10
	DefaultSQLiteCheckpointInterval = 5 * time.Minute
	DefaultPostgresMaxOpenConns     = 10

	// Retention defaults
	DefaultRetentionPruneSchedule = "0 3 * * *"

	// Stream defaults
	DefaultStreamPingInterval = 30 * time.Second
	DefaultStreamWriteTimeout = 10 * time.Second
	DefaultFormat             = "console"

	// Kafka defaults
	DefaultKafkaTopic    = "logs"
	DefaultKafkaGroupID  = "logpipe"
	DefaultKafkaMinBytes = 1
	DefaultKafkaMaxBytes = 10 << 20

	// Secrets defaults
	DefaultSecretsEnvPrefix = "LOGPIPE_SECRET_"
	DefaultSecretsCacheTTL  = 5 * time.Minute

	// Telemetry defaults
	DefaultLoggingLevel      = "info"
	DefaultLoggingFormat     = "json"
	DefaultLoggingRedactKeys = true
	DefaultMetricsEnabled    = true
	DefaultMetricsPath       = "/metrics"
	DefaultMetricsNamespace  = "logpipe"
	DefaultTracingSampler    = "ratio"
	DefaultTracingRatio      = 0.1
	DefaultTracingEndpoint   = "localhost:4317"
	DefaultTracingTimeout    = 10 * time.Second
	DefaultTracingService    = "logpipe"
)

// DefaultDurationBuckets are histogram buckets for stash operations.
var DefaultDurationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// Defaults returns a configuration with every field at its default. Boolean
// defaults, and defaults whose zero value is meaningful, can only be
// expressed here: YAML is decoded on top of this value so an explicit false
// or zero survives.
func Defaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			CORS: CORSConfig{Enabled: DefaultCORSEnabled},
			TLS:  TLSConfig{ReloadInterval: DefaultTLSReloadInterval},
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{WALMode: DefaultSQLiteWALMode},
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactKeys: DefaultLoggingRedactKeys},
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. Booleans are
// left untouched.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Server.MaxLogAge == 0 {
		cfg.Server.MaxLogAge = DefaultMaxLogAge
	}

	// CORS defaults
	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
	}
	if len(cfg.Server.CORS.AllowedMethods) == 0 {
		cfg.Server.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.Server.CORS.AllowedHeaders) == 0 {
		cfg.Server.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Auth-Key", "X-Request-ID"}
	}
	if cfg.Server.CORS.MaxAge == 0 {
		cfg.Server.CORS.MaxAge = DefaultCORSMaxAge
	}

	// Rate limit defaults
	if cfg.Server.RateLimit.RequestsPerSecond == 0 {
		cfg.Server.RateLimit.RequestsPerSecond = DefaultRateLimitRPS
	}
	if cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = DefaultRateLimitBurst
	}

	// TLS defaults
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = DefaultTLSMinVersion
	}

	// Storage defaults
	if cfg.Storage.Table == "" {
		cfg.Storage.Table = DefaultStorageTable
	}
	if cfg.Storage.MaxLogs == 0 {
		cfg.Storage.MaxLogs = DefaultMaxLogs
	}
	if cfg.Storage.InitTimeout == 0 {
		cfg.Storage.InitTimeout = DefaultInitTimeout
	}
	if cfg.Storage.SQLite.Driver == "" {
		cfg.Storage.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Storage.SQLite.MaxOpenConns == 0 {
		cfg.Storage.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Storage.SQLite.CheckpointInterval == 0 {
		cfg.Storage.SQLite.CheckpointInterval = DefaultSQLiteCheckpointInterval
	}
	if cfg.Storage.Postgres.MaxOpenConns == 0 {
		cfg.Storage.Postgres.MaxOpenConns = DefaultPostgresMaxOpenConns
	}

	// Retention defaults
	if cfg.Retention.PruneSchedule == "" {
		cfg.Retention.PruneSchedule = DefaultRetentionPruneSchedule
	}

	// Stream defaults
	if cfg.Stream.PingInterval == 0 {
		cfg.Stream.PingInterval = DefaultStreamPingInterval
	}
	if cfg.Stream.WriteTimeout == 0 {
		cfg.Stream.WriteTimeout = DefaultStreamWriteTimeout
	}

	// Format defaults
	if cfg.Format.Default == "" {
		cfg.Format.Default = DefaultFormat
	}

	// Kafka defaults
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.MinBytes == 0 {
		cfg.Kafka.MinBytes = DefaultKafkaMinBytes
	}
	if cfg.Kafka.MaxBytes == 0 {
		cfg.Kafka.MaxBytes = DefaultKafkaMaxBytes
	}

	// Secrets defaults
	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}
	if cfg.Secrets.CacheTTL == 0 {
		cfg.Secrets.CacheTTL = DefaultSecretsCacheTTL
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Telemetry.Metrics.DurationBuckets) == 0 {
		cfg.Telemetry.Metrics.DurationBuckets = append([]float64(nil), DefaultDurationBuckets...)
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.Sampler == DefaultTracingSampler && cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingRatio
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
