// Package telemetry groups logpipe's observability packages.
//
//   - logging: slog construction, context fields and credential redaction
//   - metrics: Prometheus collector implementing logstash.Recorder
//   - tracing: OpenTelemetry spans for HTTP requests and Kafka messages
//   - health: liveness and readiness checks
//
// Each subpackage is configured from the telemetry section of the config
// file and wired together in cmd/logpipe.
package telemetry
