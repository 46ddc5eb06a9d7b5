package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"logpipe-hq/logpipe/pkg/cli"
	"logpipe-hq/logpipe/pkg/logstash"
	"logpipe-hq/logpipe/pkg/server"
)

const (
	tailHandshakeTimeout = 10 * time.Second
	tailMaxBackoff       = 30 * time.Second
)

var tailFlags struct {
	client    clientFlags
	filter    filterFlags
	output    string
	reconnect bool
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow logs from a running server",
	Long: `Follow logs from a running server over WebSocket.

Matching history is printed first, oldest first, then new logs as they are
written. With --reconnect a dropped connection is retried with backoff and
resumes after the last log printed.

Examples:
  # Follow everything in the public scope
  logpipe tail

  # Follow warnings and errors tagged payments, as JSON lines
  logpipe tail --filter payments --level WARN --output json

  # Only new logs: skip history by asking for none before now
  logpipe tail --from now`,
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)

	tailFlags.client.register(tailCmd)
	tailFlags.filter.register(tailCmd)
	tailCmd.Flags().StringVarP(&tailFlags.output, "output", "o", "text", "output format (text, json, csv)")
	tailCmd.Flags().BoolVar(&tailFlags.reconnect, "reconnect", true, "reconnect when the connection drops")
}

func runTail(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := setupLogging(cfg, os.Stderr); err != nil {
		return err
	}
	output, err := cli.ParseOutputFormat(tailFlags.output)
	if err != nil {
		return cli.NewConfigError("output", err.Error())
	}
	if tailFlags.filter.from == "now" {
		tailFlags.filter.from = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}

	ctx, stop := cli.NotifyShutdown(cmd.Context())
	defer stop()

	t := &tailer{
		baseURL:   tailFlags.client.baseURL(cfg),
		client:    &tailFlags.client,
		params:    tailFlags.filter.params(),
		out:       cli.NewLogWriter(cmd.OutOrStdout(), output, output == cli.FormatText && cli.UseColor(os.Stdout)),
		errOut:    cmd.ErrOrStderr(),
		reconnect: tailFlags.reconnect,
		dialer:    &websocket.Dialer{HandshakeTimeout: tailHandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger:    slog.Default().With("component", "tail"),
	}
	if err := t.run(ctx); err != nil {
		return cli.NewCommandError("tail", err)
	}
	return nil
}

// errHandshake marks a refused connection; retrying will not help.
var errHandshake = errors.New("stream refused")

// tailer prints a stream, reconnecting after the last id printed.
type tailer struct {
	baseURL   string
	client    *clientFlags
	params    server.Params
	out       *cli.LogWriter
	errOut    io.Writer
	reconnect bool
	dialer    *websocket.Dialer
	logger    *slog.Logger

	lastID int64
}

func (t *tailer) run(ctx context.Context) error {
	backoff := time.Second
	for {
		connected, err := t.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errHandshake) {
			return err
		}
		if !t.reconnect {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if connected {
			backoff = time.Second
		}

		t.logger.Warn("stream disconnected, reconnecting", "error", err, "retry_in", backoff.String(), "after_id", t.lastID)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff = min(2*backoff, tailMaxBackoff)
	}
}

// streamURL builds the WebSocket URL, resuming after the last id printed.
func (t *tailer) streamURL() string {
	params := server.Params{server.ParamFormat: "json"}
	for k, v := range t.params {
		params[k] = v
	}
	if t.lastID > 0 {
		params[server.ParamAfterID] = strconv.FormatInt(t.lastID, 10)
	}

	base := t.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/stream?" + encodeParams(params)
}

// session runs one connection until it ends. connected reports whether
// the handshake succeeded.
func (t *tailer) session(ctx context.Context) (connected bool, err error) {
	header := http.Header{}
	t.client.setAuth(header)

	conn, resp, err := t.dialer.DialContext(ctx, t.streamURL(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			return false, fmt.Errorf("%w: %v", errHandshake, responseError(resp, body))
		}
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		logs, err := logstash.ParseLogs(data)
		if err != nil {
			// Notices and errors are not logs.
			fmt.Fprintln(t.errOut, strings.TrimSpace(string(data)))
			continue
		}
		if err := t.out.Write(logs); err != nil {
			return true, err
		}
		for _, log := range logs {
			t.lastID = max(t.lastID, log.ID)
		}
	}
}
