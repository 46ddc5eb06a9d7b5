// Package kafka ingests logs from a Kafka topic.
//
// Each message value is one JSON log in the same shape POST /write accepts.
// The Consumer stores every log under the configured caller key and commits
// offsets one message at a time after the log is stored, so delivery into
// the stash is at least once. The Producer publishes logs in that format and
// is used by `logpipe write --kafka`.
//
//	reader := kafka.NewReader(cfg.Kafka)
//	consumer := kafka.NewConsumer(reader, stash, cfg.Kafka.CallerKey,
//		kafka.WithMetrics(collector),
//		kafka.WithTracer(tracer),
//	)
//	go consumer.Run(ctx)
package kafka
