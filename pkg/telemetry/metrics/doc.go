// Package metrics exposes logpipe metrics to Prometheus.
//
// Collector implements logstash.Recorder and adds counters for Kafka
// ingestion and HTTP traffic. Metrics are registered in a per-collector
// registry, so tests can create as many collectors as they need.
//
// # Metrics
//
//   - logpipe_logs_added_total{scope_kind}
//   - logpipe_add_duration_seconds{scope_kind}
//   - logpipe_queries_total{scope_kind}
//   - logpipe_get_duration_seconds{scope_kind}
//   - logpipe_operation_errors_total{operation, kind}
//   - logpipe_init_failures_total
//   - logpipe_active_streams
//   - logpipe_streams_opened_total
//   - logpipe_stream_dropped_total{reason}
//   - logpipe_kafka_messages_consumed_total{result}
//   - logpipe_http_requests_total{route, method, code}
//   - logpipe_http_request_duration_seconds{route}
//
// scope_kind is "public" for anonymous callers and "keyed" otherwise; caller
// keys are never used as label values.
//
// When MetricsConfig.Enabled is false every Record method is a no-op.
package metrics
