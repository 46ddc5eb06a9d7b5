package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"logpipe-hq/logpipe/pkg/cli"
	"logpipe-hq/logpipe/pkg/config"
	"logpipe-hq/logpipe/pkg/server"
)

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestTailer(baseURL, key string, params server.Params, out, errOut *syncBuffer) *tailer {
	return &tailer{
		baseURL: baseURL,
		client:  &clientFlags{key: key},
		params:  params,
		out:     cli.NewLogWriter(out, cli.FormatJSON, false),
		errOut:  errOut,
		dialer:  &websocket.Dialer{HandshakeTimeout: time.Second},
		logger:  slog.Default(),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTailer_ReplayThenFollow(t *testing.T) {
	a := newTestApp(t, nil)
	ts := httptest.NewServer(a.server.Handler())
	defer ts.Close()

	addTestLog(t, a.stash, "old web", "", "web")
	addTestLog(t, a.stash, "old db", "", "db")

	out, errOut := &syncBuffer{}, &syncBuffer{}
	tl := newTestTailer(ts.URL, "", server.Params{server.ParamFilter: "web"}, out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tl.run(ctx) }()

	waitFor(t, func() bool { return strings.Contains(out.String(), "old web") })
	addTestLog(t, a.stash, "new web", "", "web")
	waitFor(t, func() bool { return strings.Contains(out.String(), "new web") })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tail did not stop after cancel")
	}

	if strings.Contains(out.String(), "old db") {
		t.Errorf("Expected filtered output, got %s", out.String())
	}
}

func TestTailer_RefusedIsFinal(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) {
		c.Auth.Whitelist = []string{"team-a"}
	})
	ts := httptest.NewServer(a.server.Handler())
	defer ts.Close()

	tl := newTestTailer(ts.URL, "stranger", server.Params{}, &syncBuffer{}, &syncBuffer{})
	tl.reconnect = true

	err := tl.run(context.Background())
	if !errors.Is(err, errHandshake) {
		t.Fatalf("Expected a refused stream, got %v", err)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("Expected status in error, got %v", err)
	}
}

func TestTailer_ResumesAfterLastID(t *testing.T) {
	a := newTestApp(t, nil)
	ts := httptest.NewServer(a.server.Handler())
	defer ts.Close()

	first := addTestLog(t, a.stash, "first", "")

	out, errOut := &syncBuffer{}, &syncBuffer{}
	tl := newTestTailer(ts.URL, "", server.Params{}, out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tl.run(ctx) }()

	waitFor(t, func() bool { return strings.Contains(out.String(), "first") })

	// Going away ends the session cleanly when reconnect is off.
	a.stash.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tail did not stop after disconnect")
	}

	if tl.lastID != first.ID {
		t.Errorf("Expected last id %d, got %d", first.ID, tl.lastID)
	}
	if u := tl.streamURL(); !strings.Contains(u, "afterId=") || !strings.HasPrefix(u, "ws://") {
		t.Errorf("Expected a ws URL resuming after the last id, got %s", u)
	}
}

func TestTailer_StreamURL(t *testing.T) {
	tl := &tailer{
		baseURL: "https://logs.example",
		params:  server.Params{server.ParamLevel: "WARN"},
	}
	u := tl.streamURL()
	if !strings.HasPrefix(u, "wss://logs.example/stream?") {
		t.Errorf("Expected wss stream URL, got %s", u)
	}
	if !strings.Contains(u, "format=json") || !strings.Contains(u, "level=WARN") {
		t.Errorf("Expected format and level params, got %s", u)
	}
	if strings.Contains(u, "afterId") {
		t.Errorf("Expected no afterId before any log, got %s", u)
	}
}
