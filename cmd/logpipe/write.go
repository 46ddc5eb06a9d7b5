package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"logpipe-hq/logpipe/pkg/cli"
	"logpipe-hq/logpipe/pkg/ingest/kafka"
	"logpipe-hq/logpipe/pkg/logstash"
	"logpipe-hq/logpipe/pkg/server"
	"logpipe-hq/logpipe/pkg/telemetry/tracing"
)

const defaultWriteBatch = 500

var writeFlags struct {
	client    clientFlags
	logger    string
	level     string
	tags      []string
	file      string
	batchSize int
	kafka     bool
	compress  string
	timeout   time.Duration
}

var writeCmd = &cobra.Command{
	Use:   "write [message...]",
	Short: "Write logs to a logpipe server or Kafka topic",
	Long: `Write one log built from flags, or a batch read from a file.

A file holds one JSON log or a JSON array of logs, in the format accepted by
POST /write. Use "-" to read standard input. Batches are sent in chunks of
--batch-size logs.

With --kafka the logs are published to the configured Kafka topic instead,
to be stored by a server consuming it.

Examples:
  # Write one log
  logpipe write --logger billing --level WARN --tag payments "card declined"

  # Write logs from a file with a caller key
  logpipe write --key team-a --file logs.json

  # Publish to Kafka
  logpipe write --kafka --logger cron "nightly job done"`,
	RunE: runWrite,
}

func init() {
	rootCmd.AddCommand(writeCmd)

	writeFlags.client.register(writeCmd)
	writeCmd.Flags().StringVar(&writeFlags.logger, "logger", "cli", "logger name")
	writeCmd.Flags().StringVar(&writeFlags.level, "level", "INFO", "log level")
	writeCmd.Flags().StringSliceVarP(&writeFlags.tags, "tag", "t", nil, "tag (repeatable or comma-separated)")
	writeCmd.Flags().StringVar(&writeFlags.file, "file", "", `JSON file of logs ("-" for stdin)`)
	writeCmd.Flags().IntVar(&writeFlags.batchSize, "batch-size", defaultWriteBatch, "logs per request")
	writeCmd.Flags().BoolVar(&writeFlags.kafka, "kafka", false, "publish to the configured Kafka topic")
	writeCmd.Flags().StringVar(&writeFlags.compress, "compress", "", "compress request bodies: gzip or zstd")
	writeCmd.Flags().DurationVar(&writeFlags.timeout, "timeout", 30*time.Second, "timeout per request")
}

func runWrite(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := setupLogging(cfg, os.Stderr); err != nil {
		return err
	}

	switch writeFlags.compress {
	case "", server.EncodingGzip, server.EncodingZstd:
	default:
		return cli.NewConfigError("--compress", fmt.Sprintf("unknown encoding %q (valid: gzip, zstd)", writeFlags.compress))
	}

	logs, err := buildLogs(args, cmd.InOrStdin())
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("write", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		_ = tracer.Shutdown(ctx)
	}()

	ctx, stop := cli.NotifyShutdown(cmd.Context())
	defer stop()
	ctx, span := tracer.Start(ctx, "logpipe.cli.write")
	defer span.End()
	tracing.SetCountAttribute(span, tracing.AttrBatchSize, len(logs))

	var progress cli.ProgressReporter = cli.NopProgress{}
	if len(logs) > writeFlags.batchSize && cli.IsTerminal(os.Stderr) {
		progress = cli.NewProgressReporter(os.Stderr, "logs")
	}

	var send func(context.Context, []*logstash.Log) error
	if writeFlags.kafka {
		if !cfg.Kafka.Enabled() {
			return cli.NewConfigError("kafka.brokers", "no Kafka brokers configured")
		}
		producer := kafka.NewProducer(kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		defer producer.Close()
		send = func(ctx context.Context, batch []*logstash.Log) error {
			return producer.Produce(ctx, batch...)
		}
	} else {
		w := &httpWriter{
			client:   &http.Client{Timeout: writeFlags.timeout},
			baseURL:  writeFlags.client.baseURL(cfg),
			flags:    &writeFlags.client,
			encoding: writeFlags.compress,
		}
		send = w.send
	}

	if err := sendBatches(ctx, logs, writeFlags.batchSize, send, progress); err != nil {
		tracing.SetStatus(span, err)
		return cli.NewCommandError("write", err)
	}

	noun := "log"
	if len(logs) != 1 {
		noun = "logs"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %d %s written\n", len(logs), noun)
	return nil
}

// buildLogs reads --file, or builds one log from the flags and message
// words.
func buildLogs(args []string, stdin io.Reader) ([]*logstash.Log, error) {
	if writeFlags.file != "" {
		if len(args) > 0 {
			return nil, errors.New("a message cannot be combined with --file")
		}
		var (
			data []byte
			err  error
		)
		if writeFlags.file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(writeFlags.file)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read logs: %w", err)
		}
		return logstash.ParseLogs(data)
	}

	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		return nil, errors.New("a message or --file is required")
	}
	log, err := logstash.NewLog(writeFlags.logger, writeFlags.level, message, time.Now(), writeFlags.tags)
	if err != nil {
		return nil, err
	}
	return []*logstash.Log{log}, nil
}

// sendBatches sends logs in order, size at a time, stopping at the first
// failure.
func sendBatches(ctx context.Context, logs []*logstash.Log, size int, send func(context.Context, []*logstash.Log) error, progress cli.ProgressReporter) error {
	if size <= 0 {
		size = defaultWriteBatch
	}
	progress.Start(int64(len(logs)))
	for start := 0; start < len(logs); start += size {
		end := min(start+size, len(logs))
		if err := send(ctx, logs[start:end]); err != nil {
			progress.Error(err)
			return fmt.Errorf("logs %d-%d: %w", start, end-1, err)
		}
		progress.Update(int64(end))
	}
	progress.Finish()
	return nil
}

// httpWriter posts batches to /write.
type httpWriter struct {
	client   *http.Client
	baseURL  string
	flags    *clientFlags
	encoding string
}

func (w *httpWriter) send(ctx context.Context, logs []*logstash.Log) error {
	body, err := json.Marshal(logs)
	if err != nil {
		return err
	}
	if body, err = compress(w.encoding, body); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/write?format=json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.encoding != "" {
		req.Header.Set("Content-Encoding", w.encoding)
	}
	w.flags.setAuth(req.Header)
	tracing.Inject(ctx, req.Header)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return responseError(resp, respBody)
	}
	return nil
}

// compress encodes body for a Content-Encoding accepted by /write.
func compress(encoding string, body []byte) ([]byte, error) {
	switch encoding {
	case "":
		return body, nil
	case server.EncodingZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(body, nil), nil
	case server.EncodingGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}
