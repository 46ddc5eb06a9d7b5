package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"logpipe-hq/logpipe/pkg/cli"
	"logpipe-hq/logpipe/pkg/config"
	"logpipe-hq/logpipe/pkg/logstash"
)

// withWriteFlags sets writeFlags for one test.
func withWriteFlags(t *testing.T, set func()) {
	t.Helper()
	saved := writeFlags
	t.Cleanup(func() { writeFlags = saved })
	set()
}

func TestBuildLogs_FromFlags(t *testing.T) {
	withWriteFlags(t, func() {
		writeFlags.logger = "billing"
		writeFlags.level = "WARN"
		writeFlags.tags = []string{"payments"}
		writeFlags.file = ""
	})

	logs, err := buildLogs([]string{"card", "declined"}, nil)
	if err != nil {
		t.Fatalf("buildLogs() failed: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("Expected 1 log, got %d", len(logs))
	}
	log := logs[0]
	if log.Logger != "billing" || log.Level != "WARN" || log.Message != "card declined" {
		t.Errorf("Unexpected log %+v", log)
	}
	if len(log.Tags) != 1 || log.Tags[0] != "payments" {
		t.Errorf("Expected tags [payments], got %v", log.Tags)
	}
}

func TestBuildLogs_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.json")
	data := `[
		{"logger":"a","level":"INFO","message":"one","createdAt":1700000000000,"tags":[]},
		{"logger":"b","level":"ERROR","message":"two","createdAt":"2024-01-02T03:04:05Z","tags":["x"]}
	]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	withWriteFlags(t, func() { writeFlags.file = path })
	logs, err := buildLogs(nil, nil)
	if err != nil {
		t.Fatalf("buildLogs() failed: %v", err)
	}
	if len(logs) != 2 || logs[1].Message != "two" {
		t.Errorf("Unexpected logs %+v", logs)
	}
}

func TestBuildLogs_FromStdin(t *testing.T) {
	withWriteFlags(t, func() { writeFlags.file = "-" })
	stdin := strings.NewReader(`{"logger":"a","level":"INFO","message":"piped","createdAt":1700000000}`)

	logs, err := buildLogs(nil, stdin)
	if err != nil {
		t.Fatalf("buildLogs() failed: %v", err)
	}
	if len(logs) != 1 || logs[0].Message != "piped" {
		t.Errorf("Unexpected logs %+v", logs)
	}
}

func TestBuildLogs_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		args []string
	}{
		{"no message", "", nil},
		{"blank message", "", []string{"  "}},
		{"message with file", "logs.json", []string{"hello"}},
		{"missing file", filepath.Join(t.TempDir(), "missing.json"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withWriteFlags(t, func() {
				writeFlags.file = tt.file
				writeFlags.logger = "cli"
				writeFlags.level = "INFO"
			})
			if _, err := buildLogs(tt.args, nil); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func makeLogs(t *testing.T, n int) []*logstash.Log {
	t.Helper()
	logs := make([]*logstash.Log, n)
	for i := range logs {
		log, err := logstash.NewLog("svc", "INFO", "message", time.Now(), nil)
		if err != nil {
			t.Fatalf("NewLog() failed: %v", err)
		}
		logs[i] = log
	}
	return logs
}

func TestSendBatches(t *testing.T) {
	var sizes []int
	send := func(_ context.Context, batch []*logstash.Log) error {
		sizes = append(sizes, len(batch))
		return nil
	}

	if err := sendBatches(context.Background(), makeLogs(t, 7), 3, send, cli.NopProgress{}); err != nil {
		t.Fatalf("sendBatches() failed: %v", err)
	}
	if len(sizes) != 3 || sizes[0] != 3 || sizes[1] != 3 || sizes[2] != 1 {
		t.Errorf("Expected batches [3 3 1], got %v", sizes)
	}
}

func TestSendBatches_StopsOnError(t *testing.T) {
	calls := 0
	send := func(context.Context, []*logstash.Log) error {
		calls++
		if calls == 2 {
			return errors.New("server unavailable")
		}
		return nil
	}

	err := sendBatches(context.Background(), makeLogs(t, 5), 2, send, cli.NopProgress{})
	if err == nil || !strings.Contains(err.Error(), "logs 2-3") {
		t.Errorf("Expected failing range in error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected to stop after the failed batch, got %d calls", calls)
	}
}

func TestHTTPWriter(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) {
		c.Auth.Whitelist = []string{"team-a"}
	})
	ts := httptest.NewServer(a.server.Handler())
	defer ts.Close()

	t.Run("stores under caller key", func(t *testing.T) {
		w := &httpWriter{client: ts.Client(), baseURL: ts.URL, flags: &clientFlags{key: "team-a"}}
		if err := w.send(context.Background(), makeLogs(t, 2)); err != nil {
			t.Fatalf("send() failed: %v", err)
		}

		logs, err := a.stash.Get(context.Background(), logstash.Filter{}, "team-a")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if len(logs) != 2 {
			t.Errorf("Expected 2 logs, got %d", len(logs))
		}
	})

	t.Run("reports rejection", func(t *testing.T) {
		w := &httpWriter{client: ts.Client(), baseURL: ts.URL, flags: &clientFlags{key: "stranger"}}
		err := w.send(context.Background(), makeLogs(t, 1))
		if err == nil || !strings.Contains(err.Error(), "401") {
			t.Errorf("Expected a 401 error, got %v", err)
		}
	})
}

func TestHTTPWriter_Compressed(t *testing.T) {
	a := newTestApp(t, nil)
	ts := httptest.NewServer(a.server.Handler())
	defer ts.Close()

	for _, encoding := range []string{"gzip", "zstd"} {
		t.Run(encoding, func(t *testing.T) {
			w := &httpWriter{client: ts.Client(), baseURL: ts.URL, flags: &clientFlags{key: encoding}, encoding: encoding}
			if err := w.send(context.Background(), makeLogs(t, 3)); err != nil {
				t.Fatalf("send() failed: %v", err)
			}

			logs, err := a.stash.Get(context.Background(), logstash.Filter{}, encoding)
			if err != nil {
				t.Fatalf("Get() failed: %v", err)
			}
			if len(logs) != 3 {
				t.Errorf("Expected 3 logs, got %d", len(logs))
			}
		})
	}
}

func TestCompress_UnknownEncoding(t *testing.T) {
	if _, err := compress("br", []byte("{}")); err == nil {
		t.Error("Expected an error for an unknown encoding")
	}
}

func TestHTTPWriter_ServerDown(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	w := &httpWriter{client: &http.Client{Timeout: time.Second}, baseURL: ts.URL, flags: &clientFlags{}}
	if err := w.send(context.Background(), makeLogs(t, 1)); err == nil {
		t.Error("Expected an error from a closed server")
	}
}
