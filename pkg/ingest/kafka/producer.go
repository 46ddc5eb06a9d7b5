package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"logpipe-hq/logpipe/pkg/logstash"
	"logpipe-hq/logpipe/pkg/telemetry/tracing"
)

// Writer is the part of *kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer publishes logs to the topic a Consumer reads.
type Producer struct {
	writer Writer
}

// NewWriter creates a synchronous writer for topic.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
}

// NewProducer creates a producer over w.
func NewProducer(w Writer) *Producer {
	return &Producer{writer: w}
}

// Produce publishes logs keyed by logger name, so one logger's records keep
// their order within a partition. The trace context of ctx travels in the
// message headers.
func (p *Producer) Produce(ctx context.Context, logs ...*logstash.Log) error {
	carrier := make(map[string]string)
	tracing.InjectToMap(ctx, carrier)
	headers := make([]kafkago.Header, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}

	msgs := make([]kafkago.Message, len(logs))
	for i, log := range logs {
		value, err := json.Marshal(log)
		if err != nil {
			return fmt.Errorf("encode log %d: %w", i, err)
		}
		msgs[i] = kafkago.Message{
			Key:     []byte(log.Logger),
			Value:   value,
			Headers: headers,
			Time:    time.Now(),
		}
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
