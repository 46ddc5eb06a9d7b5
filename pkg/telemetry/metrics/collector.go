package metrics

import (
	"errors"
	"strconv"
	"time"

	"logpipe-hq/logpipe/pkg/config"
	"logpipe-hq/logpipe/pkg/logstash"

	"github.com/prometheus/client_golang/prometheus"
)

// Kafka consumption outcomes.
const (
	KafkaStored   = "stored"
	KafkaInvalid  = "invalid"
	KafkaRejected = "rejected"
)

// Collector records logpipe metrics in a Prometheus registry. It
// implements logstash.Recorder so the stash can report without importing
// Prometheus.
//
// Caller keys never appear in labels; operations are split by scope kind
// ("public" or "keyed") instead.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	logsAdded     *prometheus.CounterVec
	addDuration   *prometheus.HistogramVec
	queries       *prometheus.CounterVec
	getDuration   *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	initFailures  prometheus.Counter
	activeStreams prometheus.Gauge
	streamsOpened prometheus.Counter
	streamDropped *prometheus.CounterVec
	kafkaMessages *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

var _ logstash.Recorder = (*Collector)(nil)

// NewCollector creates a collector and registers its metrics. A nil
// registry gets a fresh one.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	stash := logstash.New(store, logstash.WithMetrics(collector))
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = config.DefaultDurationBuckets
	}

	ns := cfg.Namespace
	c := &Collector{
		config:   cfg,
		registry: registry,

		logsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "logs_added_total",
			Help:      "Logs stored, by caller scope kind",
		}, []string{"scope_kind"}),

		addDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "add_duration_seconds",
			Help:      "Duration of add operations including eviction",
			Buckets:   buckets,
		}, []string{"scope_kind"}),

		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "queries_total",
			Help:      "Successful get operations, by caller scope kind",
		}, []string{"scope_kind"}),

		getDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "get_duration_seconds",
			Help:      "Duration of get operations",
			Buckets:   buckets,
		}, []string{"scope_kind"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "operation_errors_total",
			Help:      "Failed stash operations, by operation and error kind",
		}, []string{"operation", "kind"}),

		initFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "init_failures_total",
			Help:      "Failed storage initialization attempts",
		}),

		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "active_streams",
			Help:      "Live streams currently open",
		}),

		streamsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "streams_opened_total",
			Help:      "Live streams opened",
		}),

		streamDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "stream_dropped_total",
			Help:      "Logs dropped from live stream queues",
		}, []string{"reason"}),

		kafkaMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "kafka_messages_consumed_total",
			Help:      "Kafka messages consumed, by outcome",
		}, []string{"result"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "HTTP requests served",
		}, []string{"route", "method", "code"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration; streams are measured until they close",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	registry.MustRegister(
		c.logsAdded,
		c.addDuration,
		c.queries,
		c.getDuration,
		c.errors,
		c.initFailures,
		c.activeStreams,
		c.streamsOpened,
		c.streamDropped,
		c.kafkaMessages,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

// RecordAdd records the outcome of an add operation.
func (c *Collector) RecordAdd(scopeKind string, duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}
	c.addDuration.WithLabelValues(scopeKind).Observe(duration.Seconds())
	if err != nil {
		c.errors.WithLabelValues("add", errorKind(err)).Inc()
		return
	}
	c.logsAdded.WithLabelValues(scopeKind).Inc()
}

// RecordGet records the outcome of a get or stream history query.
func (c *Collector) RecordGet(scopeKind string, duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}
	c.getDuration.WithLabelValues(scopeKind).Observe(duration.Seconds())
	if err != nil {
		c.errors.WithLabelValues("get", errorKind(err)).Inc()
		return
	}
	c.queries.WithLabelValues(scopeKind).Inc()
}

// RecordInitFailure counts a failed initialization attempt.
func (c *Collector) RecordInitFailure() {
	if !c.config.Enabled {
		return
	}
	c.initFailures.Inc()
}

// StreamOpened tracks a newly opened stream.
func (c *Collector) StreamOpened() {
	if !c.config.Enabled {
		return
	}
	c.streamsOpened.Inc()
	c.activeStreams.Inc()
}

// StreamClosed tracks a closed stream.
func (c *Collector) StreamClosed() {
	if !c.config.Enabled {
		return
	}
	c.activeStreams.Dec()
}

// StreamDropped counts a log dropped from a stream queue.
func (c *Collector) StreamDropped(reason string) {
	if !c.config.Enabled {
		return
	}
	c.streamDropped.WithLabelValues(reason).Inc()
}

// RecordKafkaMessage counts a consumed Kafka message by outcome
// (KafkaStored, KafkaInvalid or KafkaRejected).
func (c *Collector) RecordKafkaMessage(result string) {
	if !c.config.Enabled {
		return
	}
	c.kafkaMessages.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records a served HTTP request. route must be a fixed
// pattern, never a raw path.
func (c *Collector) RecordHTTPRequest(route, method string, code int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// errorKind classifies err into a bounded label value.
func errorKind(err error) string {
	var (
		validationErr *logstash.ValidationError
		storageErr    *logstash.StorageError
	)
	switch {
	case errors.Is(err, logstash.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, logstash.ErrNotReady):
		return "not_ready"
	case errors.Is(err, logstash.ErrStashClosed):
		return "closed"
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &storageErr):
		return "storage"
	default:
		return "other"
	}
}
