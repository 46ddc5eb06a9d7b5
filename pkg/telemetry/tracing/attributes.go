package tracing

import (
	"net/http"

	"logpipe-hq/logpipe/pkg/logstash"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Caller keys are never recorded; only the scope kind is.
const (
	AttrScopeKind   = "logpipe.scope_kind"
	AttrLogger      = "logpipe.log.logger"
	AttrLevel       = "logpipe.log.level"
	AttrLogID       = "logpipe.log.id"
	AttrBatchSize   = "logpipe.batch.size"
	AttrResultCount = "logpipe.result.count"
	AttrStreamID    = "logpipe.stream.id"

	AttrFilterTags    = "logpipe.filter.tags"
	AttrFilterLevel   = "logpipe.filter.level"
	AttrFilterLimit   = "logpipe.filter.limit"
	AttrFilterAfterID = "logpipe.filter.after_id"

	AttrKafkaTopic     = "messaging.destination.name"
	AttrKafkaPartition = "messaging.kafka.destination.partition"
	AttrKafkaOffset    = "messaging.kafka.message.offset"
)

func serverSpan() trace.SpanStartOption {
	return trace.WithSpanKind(trace.SpanKindServer)
}

// ConsumerSpan marks a span as consuming a message.
func ConsumerSpan() trace.SpanStartOption {
	return trace.WithSpanKind(trace.SpanKindConsumer)
}

// SetHTTPAttributes records the request method and route.
func SetHTTPAttributes(span trace.Span, r *http.Request) {
	span.SetAttributes(
		attribute.String("http.request.method", r.Method),
		attribute.String("url.path", r.URL.Path),
	)
}

// SetScopeAttribute records whether the caller is public or keyed.
func SetScopeAttribute(span trace.Span, callerKey string) {
	kind := "keyed"
	if callerKey == "" {
		kind = logstash.PublicScope
	}
	span.SetAttributes(attribute.String(AttrScopeKind, kind))
}

// SetLogAttributes records the identity of a stored log.
func SetLogAttributes(span trace.Span, log *logstash.Log) {
	if log == nil {
		return
	}
	span.SetAttributes(
		attribute.String(AttrLogger, log.Logger),
		attribute.String(AttrLevel, log.Level),
	)
	if log.ID > 0 {
		span.SetAttributes(attribute.Int64(AttrLogID, log.ID))
	}
}

// SetFilterAttributes records a query filter.
func SetFilterAttributes(span trace.Span, f logstash.Filter) {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrFilterLimit, f.EffectiveLimit()),
	}
	if len(f.Tags) > 0 {
		attrs = append(attrs, attribute.StringSlice(AttrFilterTags, f.Tags))
	}
	if f.Level != "" {
		attrs = append(attrs, attribute.String(AttrFilterLevel, f.Level))
	}
	if f.AfterID > 0 {
		attrs = append(attrs, attribute.Int64(AttrFilterAfterID, f.AfterID))
	}
	span.SetAttributes(attrs...)
}

// SetCountAttribute records how many logs an operation handled.
func SetCountAttribute(span trace.Span, key string, n int) {
	span.SetAttributes(attribute.Int(key, n))
}

// SetKafkaAttributes records the position of a consumed message.
func SetKafkaAttributes(span trace.Span, topic string, partition int, offset int64) {
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String(AttrKafkaTopic, topic),
		attribute.Int(AttrKafkaPartition, partition),
		attribute.Int64(AttrKafkaOffset, offset),
	)
}
