// Package tracing provides OpenTelemetry tracing for logpipe.
//
// Spans are exported over OTLP/gRPC when telemetry.tracing.enabled is set;
// otherwise a noop tracer is used. The HTTP middleware continues traces
// propagated with the W3C traceparent header, and the Kafka consumer
// continues traces found in message headers.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	handler = tracer.HTTPMiddleware(handler)
//
// Sampling is parent based. For root spans the strategy is one of
// "always", "never" or "ratio" (with sample_ratio between 0 and 1).
package tracing
