package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"logpipe-hq/logpipe/pkg/config"
	"logpipe-hq/logpipe/pkg/logstash"
)

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream?" + query
}

func addLog(t *testing.T, stash *logstash.Stash, message, callerKey string, tags ...string) *logstash.Log {
	t.Helper()
	log, err := logstash.NewLog("svc", "INFO", message, time.Now(), tags)
	if err != nil {
		t.Fatalf("NewLog() failed: %v", err)
	}
	stored, err := stash.AddLog(context.Background(), log, callerKey)
	if err != nil {
		t.Fatalf("AddLog() failed: %v", err)
	}
	return stored
}

// readLogs reads one message and decodes it as a log batch.
func readLogs(t *testing.T, conn *websocket.Conn) []*logstash.Log {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	logs, err := logstash.ParseLogs(data)
	if err != nil {
		t.Fatalf("ParseLogs(%s) failed: %v", data, err)
	}
	return logs
}

// readUntil collects logs until n have arrived.
func readUntil(t *testing.T, conn *websocket.Conn, n int) []*logstash.Log {
	t.Helper()
	var logs []*logstash.Log
	for len(logs) < n {
		logs = append(logs, readLogs(t, conn)...)
	}
	return logs
}

func readNotice(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	return decodeMessage(t, data)
}

func TestStream_ReplayThenTail(t *testing.T) {
	srv, stash := newTestServer(t, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	addLog(t, stash, "history-1", "")
	addLog(t, stash, "history-2", "")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "format=json"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	history := readUntil(t, conn, 2)
	if history[0].Message != "history-1" || history[1].Message != "history-2" {
		t.Errorf("Expected history oldest first, got %q and %q", history[0].Message, history[1].Message)
	}

	addLog(t, stash, "live", "")
	live := readUntil(t, conn, 1)
	if live[0].Message != "live" {
		t.Errorf("Expected live, got %q", live[0].Message)
	}
}

func TestStream_ScopeIsolation(t *testing.T) {
	srv, stash := newTestServer(t, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "format=json&authKey=team-a"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	addLog(t, stash, "public", "")
	addLog(t, stash, "team-b", "team-b")
	addLog(t, stash, "team-a", "team-a")

	logs := readLogs(t, conn)
	if len(logs) != 1 || logs[0].Message != "team-a" {
		t.Errorf("Expected only the team-a log, got %+v", logs)
	}
}

func TestStream_FilterUpdate(t *testing.T) {
	srv, stash := newTestServer(t, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "format=json"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	first := addLog(t, stash, "before update", "", "web")
	if logs := readLogs(t, conn); logs[0].ID != first.ID {
		t.Fatalf("Expected log %d, got %d", first.ID, logs[0].ID)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("filter=db")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if msg := readNotice(t, conn); msg != noticeFilterApplied {
		t.Fatalf("Expected %q, got %q", noticeFilterApplied, msg)
	}

	addLog(t, stash, "web request", "", "web")
	addLog(t, stash, "db query", "", "db")

	logs := readLogs(t, conn)
	if len(logs) != 1 || logs[0].Message != "db query" {
		t.Errorf("Expected only the db log, got %+v", logs)
	}
}

func TestStream_FilterUpdateReplaysMissed(t *testing.T) {
	srv, stash := newTestServer(t, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "format=json&filter=web"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	seen := addLog(t, stash, "web", "", "web")
	if logs := readLogs(t, conn); logs[0].ID != seen.ID {
		t.Fatalf("Expected log %d, got %d", seen.ID, logs[0].ID)
	}
	addLog(t, stash, "db while filtered out", "", "db")

	// Widening the filter picks up matching logs after the last one sent.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"filter":"*"}`)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if msg := readNotice(t, conn); msg != noticeFilterApplied {
		t.Fatalf("Expected %q, got %q", noticeFilterApplied, msg)
	}

	logs := readLogs(t, conn)
	if len(logs) != 1 || logs[0].Message != "db while filtered out" {
		t.Errorf("Expected the missed db log, got %+v", logs)
	}
}

func TestStream_InvalidRulesKeepStream(t *testing.T) {
	srv, stash := newTestServer(t, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "format=json"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("level")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if !strings.Contains(string(data), `"error":"Bad Request"`) {
		t.Errorf("Expected a bad request error, got %s", data)
	}

	addLog(t, stash, "still streaming", "")
	if logs := readLogs(t, conn); logs[0].Message != "still streaming" {
		t.Errorf("Expected stream to continue, got %q", logs[0].Message)
	}
}

func TestStream_RejectedBeforeUpgrade(t *testing.T) {
	srv, _ := newTestServer(t, []string{"secret"}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	tests := []struct {
		name           string
		query          string
		expectedStatus int
	}{
		{"unknown key", "authKey=guess", http.StatusUnauthorized},
		{"bad filter", "authKey=secret&limit=many", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, tt.query), nil)
			if !errors.Is(err, websocket.ErrBadHandshake) {
				t.Fatalf("Expected bad handshake, got %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.expectedStatus {
				t.Errorf("Expected %d, got %d", tt.expectedStatus, resp.StatusCode)
			}
		})
	}
}

func TestStream_StashCloseEndsSession(t *testing.T) {
	srv, stash := newTestServer(t, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "format=json"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	stash.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("Expected going-away close, got %v", err)
	}
}

func TestStream_ShutdownEndsSession(t *testing.T) {
	srv, _ := newTestServer(t, nil, func(c *config.Config) {
		c.Server.ShutdownTimeout = time.Second
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "format=json"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	// Shutdown is a no-op until Start; cancel the session context directly.
	srv.cancelBase()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("Expected going-away close, got %v", err)
	}
}
