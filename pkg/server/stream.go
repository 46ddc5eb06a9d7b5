package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"logpipe-hq/logpipe/pkg/format"
	"logpipe-hq/logpipe/pkg/logstash"
	"logpipe-hq/logpipe/pkg/security/auth"
	"logpipe-hq/logpipe/pkg/telemetry/logging"
	"logpipe-hq/logpipe/pkg/telemetry/tracing"
)

const (
	noticeFilterApplied = "Filter applied"

	// maxBatch caps how many already-queued logs share one message.
	maxBatch = 100

	// maxRulesBytes limits a client filter update.
	maxRulesBytes = 64 << 10
)

// handleStream upgrades to a WebSocket that replays matching history and
// then tails new logs. The stream is opened before the upgrade so that
// authorization and filter errors are plain HTTP responses.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	params := ParamsFromQuery(r.URL.Query())
	f := s.formats.Get(params.Format())
	callerKey := auth.CallerKey(r.Context())

	filter, err := params.Filter()
	if err != nil {
		writeError(w, r, s.logger, f, err)
		return
	}

	// Sessions outlive http.Server.Shutdown once hijacked, so they also end
	// with the server's own context.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()

	spanCtx, span := s.tracer.Start(ctx, "logpipe.stream.open")
	tracing.SetScopeAttribute(span, callerKey)
	tracing.SetFilterAttributes(span, filter)

	stream, err := s.stash.GetAsStream(spanCtx, filter, callerKey)
	if err != nil {
		tracing.SetStatus(span, err)
		span.End()
		writeError(w, r, s.logger, f, err)
		return
	}
	span.SetAttributes(attribute.String(tracing.AttrStreamID, stream.ID()))
	span.End()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		stream.Close()
		return
	}

	ctx = logging.WithStreamID(ctx, stream.ID())
	sess := &session{
		server:    s,
		conn:      conn,
		callerKey: callerKey,
		params:    params,
		formatter: f,
		stream:    stream,
		lastID:    filter.AfterID,
		logger:    s.logger,
	}
	s.logger.InfoContext(ctx, "stream opened", "caller_key", auth.RedactKey(callerKey))
	sess.run(ctx)
	s.logger.InfoContext(ctx, "stream closed", "last_id", sess.lastID)
}

// session owns one WebSocket connection. Only run writes to the
// connection; the reader goroutine hands messages over a channel.
type session struct {
	server    *Server
	conn      *websocket.Conn
	callerKey string
	params    Params
	formatter format.Formatter
	stream    *logstash.Stream
	lastID    int64
	logger    *slog.Logger
}

func (ss *session) run(ctx context.Context) {
	defer ss.conn.Close()
	defer func() { ss.stream.Close() }()

	cfg := ss.server.streamConfig
	ss.conn.SetReadLimit(maxRulesBytes)

	var ping <-chan time.Time
	if cfg.PingInterval > 0 {
		pongWait := 2 * cfg.PingInterval
		_ = ss.conn.SetReadDeadline(time.Now().Add(pongWait))
		ss.conn.SetPongHandler(func(string) error {
			return ss.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		ticker := time.NewTicker(cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	messages := make(chan []byte)
	readErrs := make(chan error, 1)
	go ss.readLoop(ctx, messages, readErrs)

	for {
		select {
		case <-ctx.Done():
			ss.close(websocket.CloseGoingAway, "server shutting down")
			return

		case err := <-readErrs:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ss.logger.DebugContext(ctx, "stream read ended", "error", err)
			}
			return

		case msg := <-messages:
			if err := ss.applyRules(ctx, msg); err != nil {
				return
			}

		case log, ok := <-ss.stream.C():
			if !ok {
				reason := "log stash closed"
				if ctx.Err() != nil {
					reason = "server shutting down"
				}
				ss.close(websocket.CloseGoingAway, reason)
				return
			}
			if err := ss.sendLogs(log); err != nil {
				return
			}

		case <-ping:
			if err := ss.conn.WriteControl(websocket.PingMessage, nil, ss.deadline()); err != nil {
				return
			}
		}
	}
}

func (ss *session) readLoop(ctx context.Context, messages chan<- []byte, errs chan<- error) {
	for {
		_, data, err := ss.conn.ReadMessage()
		if err != nil {
			errs <- err
			return
		}
		select {
		case messages <- data:
		case <-ctx.Done():
			return
		}
	}
}

// sendLogs writes first together with whatever else is already queued.
func (ss *session) sendLogs(first *logstash.Log) error {
	batch := []*logstash.Log{first}
	ch := ss.stream.C()
drain:
	for len(batch) < maxBatch {
		select {
		case log, ok := <-ch:
			if !ok {
				break drain
			}
			batch = append(batch, log)
		default:
			break drain
		}
	}

	if err := ss.write(ss.formatter.Logs(batch)); err != nil {
		return err
	}
	for _, log := range batch {
		ss.lastID = max(ss.lastID, log.ID)
	}
	return nil
}

// applyRules merges a client filter update and swaps in a stream opened
// after the last log sent. Invalid updates are reported and the current
// stream continues.
func (ss *session) applyRules(ctx context.Context, msg []byte) error {
	update, err := ParseRules(msg)
	if err != nil {
		parseErr := logstash.NewFilterParseError("rules", string(msg), err)
		return ss.write(ss.formatter.Error(parseErr, http.StatusBadRequest))
	}
	// The caller key is fixed for the life of the connection.
	delete(update, ParamAuthKey)

	params := ss.params.Merge(update)
	formatter := ss.server.formats.Get(params.Format())

	filter, err := params.Filter()
	if err != nil {
		return ss.write(formatter.Error(err, StatusFor(err)))
	}
	if _, ok := update[ParamAfterID]; !ok {
		filter.AfterID = max(filter.AfterID, ss.lastID)
	}

	next, err := ss.server.stash.GetAsStream(ctx, filter, ss.callerKey)
	if err != nil {
		return ss.write(formatter.Error(err, StatusFor(err)))
	}
	previous := ss.stream
	ss.stream = next
	previous.Close()

	ss.params = params
	ss.formatter = formatter
	ss.logger.DebugContext(ctx, "stream filter updated",
		"tags", filter.Tags,
		"level", filter.Level,
		"after_id", filter.AfterID,
	)
	return ss.write(formatter.Notice(format.NewNotice(noticeFilterApplied)))
}

func (ss *session) write(out format.Output) error {
	_ = ss.conn.SetWriteDeadline(ss.deadline())
	if err := ss.conn.WriteMessage(websocket.TextMessage, out.Body); err != nil {
		if !errors.Is(err, websocket.ErrCloseSent) {
			ss.logger.Debug("stream write failed", "error", err)
		}
		return err
	}
	return nil
}

func (ss *session) close(code int, text string) {
	_ = ss.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), ss.deadline())
}

// deadline returns the write deadline, or the zero time when writes are
// unbounded.
func (ss *session) deadline() time.Time {
	if d := ss.server.streamConfig.WriteTimeout; d > 0 {
		return time.Now().Add(d)
	}
	return time.Time{}
}
