package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"logpipe-hq/logpipe/pkg/config"
	"logpipe-hq/logpipe/pkg/logstash"
	"logpipe-hq/logpipe/pkg/telemetry/metrics"
	"logpipe-hq/logpipe/pkg/telemetry/tracing"
)

// DefaultRetryDelay is the pause between attempts after a fetch or storage
// failure.
const DefaultRetryDelay = time.Second

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Adder stores logs. *logstash.Stash implements it.
type Adder interface {
	AddLog(ctx context.Context, log *logstash.Log, callerKey string) (*logstash.Log, error)
}

// Recorder counts consumed messages by outcome. *metrics.Collector
// implements it.
type Recorder interface {
	RecordKafkaMessage(result string)
}

// Consumer reads logs from a Kafka topic into a stash. A message's offset
// is committed once its log is stored, or once it is known it never can be:
// malformed messages and unauthorized caller keys are logged and skipped.
// Storage failures are retried on the same message.
type Consumer struct {
	reader     Reader
	stash      Adder
	callerKey  string
	metrics    Recorder
	tracer     *tracing.Tracer
	retryDelay time.Duration
	logger     *slog.Logger
	running    atomic.Bool
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithMetrics counts consumed messages with r.
func WithMetrics(r Recorder) Option {
	return func(c *Consumer) {
		c.metrics = r
	}
}

// WithTracer traces each consumed message, continuing the producer's trace
// when the message headers carry one.
func WithTracer(t *tracing.Tracer) Option {
	return func(c *Consumer) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithRetryDelay sets the pause between failed attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Consumer) {
		c.retryDelay = d
	}
}

// NewReader creates a consumer-group reader for cfg.
func NewReader(cfg config.KafkaConfig) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
}

// NewConsumer creates a consumer storing logs from reader under callerKey.
func NewConsumer(reader Reader, stash Adder, callerKey string, opts ...Option) *Consumer {
	noop, _ := tracing.New(&config.TracingConfig{}, "")
	c := &Consumer{
		reader:     reader,
		stash:      stash,
		callerKey:  callerKey,
		tracer:     noop,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default().With("component", "kafka"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Running reports whether Run is consuming.
func (c *Consumer) Running() bool {
	return c.running.Load()
}

// Close closes the reader. Run also closes it when it returns.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Run consumes until ctx is done or the stash closes, then closes the
// reader.
func (c *Consumer) Run(ctx context.Context) error {
	c.running.Store(true)
	defer c.running.Store(false)
	defer c.reader.Close()

	c.logger.Info("kafka consumer started")
	defer c.logger.Info("kafka consumer stopped")

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			if !c.sleep(ctx) {
				return nil
			}
			continue
		}

		if err := c.handle(ctx, m); err != nil {
			if errors.Is(err, logstash.ErrStashClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// handle stores one message, retrying storage failures until it succeeds
// or ctx ends, and commits its offset.
func (c *Consumer) handle(ctx context.Context, m kafkago.Message) error {
	ctx = tracing.ExtractFromMap(ctx, headerMap(m.Headers))
	ctx, span := c.tracer.Start(ctx, "logpipe.kafka.consume", tracing.ConsumerSpan())
	defer span.End()
	tracing.SetKafkaAttributes(span, m.Topic, m.Partition, m.Offset)

	log, err := logstash.ParseLog(m.Value)
	if err != nil {
		c.logger.WarnContext(ctx, "skipping malformed message",
			"partition", m.Partition,
			"offset", m.Offset,
			"error", err,
		)
		c.record(metrics.KafkaInvalid)
		return c.commit(ctx, m)
	}
	tracing.SetLogAttributes(span, log)

	for {
		_, err = c.stash.AddLog(ctx, log, c.callerKey)
		if err == nil {
			c.record(metrics.KafkaStored)
			return c.commit(ctx, m)
		}

		var validationErr *logstash.ValidationError
		switch {
		case errors.As(err, &validationErr), errors.Is(err, logstash.ErrUnauthorized):
			c.logger.WarnContext(ctx, "skipping rejected message",
				"partition", m.Partition,
				"offset", m.Offset,
				"error", err,
			)
			c.record(metrics.KafkaRejected)
			return c.commit(ctx, m)
		case errors.Is(err, logstash.ErrStashClosed):
			return err
		}

		tracing.SetStatus(span, err)
		c.logger.ErrorContext(ctx, "failed to store message, retrying",
			"partition", m.Partition,
			"offset", m.Offset,
			"error", err,
		)
		if !c.sleep(ctx) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) commit(ctx context.Context, m kafkago.Message) error {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Not fatal: the message is redelivered after a restart.
		c.logger.WarnContext(ctx, "failed to commit offset",
			"partition", m.Partition,
			"offset", m.Offset,
			"error", err,
		)
	}
	return nil
}

func (c *Consumer) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordKafkaMessage(result)
	}
}

// sleep waits for the retry delay and reports false if ctx ended first.
func (c *Consumer) sleep(ctx context.Context) bool {
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func headerMap(headers []kafkago.Header) map[string]string {
	carrier := make(map[string]string, len(headers))
	for _, h := range headers {
		carrier[h.Key] = string(h.Value)
	}
	return carrier
}
