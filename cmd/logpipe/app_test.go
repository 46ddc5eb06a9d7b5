package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"logpipe-hq/logpipe/pkg/config"
	"logpipe-hq/logpipe/pkg/logstash"
	"logpipe-hq/logpipe/pkg/telemetry/health"
)

// newTestApp wires an app over in-memory storage.
func newTestApp(t *testing.T, modify func(*config.Config)) *app {
	t.Helper()

	cfg := config.Defaults()
	cfg.Storage.URL = "memory://"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = time.Second
	if modify != nil {
		modify(cfg)
	}

	a, err := newApp(cfg, "", slog.Default())
	if err != nil {
		t.Fatalf("newApp() failed: %v", err)
	}
	t.Cleanup(func() { a.close() })
	return a
}

func addTestLog(t *testing.T, stash *logstash.Stash, message, callerKey string, tags ...string) *logstash.Log {
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

func TestApp_Wiring(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) {
		c.Auth.Whitelist = []string{"team-a"}
		c.Format.Default = "json"
	})
	ts := httptest.NewServer(a.server.Handler())
	defer ts.Close()

	addTestLog(t, a.stash, "hello", "team-a")

	tests := []struct {
		name           string
		path           string
		expectedStatus int
		expectedBody   string
	}{
		{"read with key", "/read?authKey=team-a", http.StatusOK, `"message":"hello"`},
		{"read without key", "/read", http.StatusUnauthorized, ""},
		{"ready", "/ready", http.StatusOK, `"stash"`},
		{"version", "/version", http.StatusOK, `"version":"` + Version + `"`},
		{"metrics", "/metrics", http.StatusOK, "logpipe_logs_added_total"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s failed: %v", tt.path, err)
			}
			defer resp.Body.Close()
			body := readBody(t, resp)

			if resp.StatusCode != tt.expectedStatus {
				t.Errorf("Expected %d, got %d: %s", tt.expectedStatus, resp.StatusCode, body)
			}
			if tt.expectedBody != "" && !strings.Contains(body, tt.expectedBody) {
				t.Errorf("Expected body to contain %s, got %s", tt.expectedBody, body)
			}
		})
	}
}

func TestApp_Reload(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) {
		c.Auth.Whitelist = []string{"old"}
	})

	next := config.Defaults()
	next.Auth.Whitelist = []string{"new"}
	next.Storage.MaxLogs = 5
	next.Format.Default = "json"
	a.reload(next)

	if err := a.whitelist.Authorize("new"); err != nil {
		t.Errorf("Expected new key admitted, got %v", err)
	}
	if err := a.whitelist.Authorize("old"); err == nil {
		t.Error("Expected old key rejected after reload")
	}
	if a.stash.MaxLogs() != 5 {
		t.Errorf("Expected max logs 5, got %d", a.stash.MaxLogs())
	}
	if a.formats.Default() != "json" {
		t.Errorf("Expected default format json, got %q", a.formats.Default())
	}
}

func TestApp_ReloadResolvesSecrets(t *testing.T) {
	t.Setenv("LOGPIPE_SECRET_TEAM_KEY", "rotated")
	a := newTestApp(t, func(c *config.Config) {
		c.Auth.Whitelist = []string{"old"}
	})

	next := config.Defaults()
	next.Auth.Whitelist = []string{"${secret:team-key}"}
	a.reload(next)
	if err := a.whitelist.Authorize("rotated"); err != nil {
		t.Errorf("Expected resolved key admitted, got %v", err)
	}

	// An unresolvable reference leaves the running whitelist alone.
	broken := config.Defaults()
	broken.Auth.Whitelist = []string{"${secret:absent}"}
	a.reload(broken)
	if err := a.whitelist.Authorize("rotated"); err != nil {
		t.Errorf("Expected previous whitelist kept, got %v", err)
	}
}

func TestApp_RetentionPruner(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) {
		c.Retention.MaxAge = time.Hour
	})
	if a.pruner == nil {
		t.Fatal("Expected a pruner when max age is set")
	}
}

func TestApp_KafkaHealthCheck(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) {
		c.Kafka.Brokers = []string{"127.0.0.1:1"}
	})
	if a.consumer == nil {
		t.Fatal("Expected a consumer when brokers are set")
	}

	status := a.checker.CheckReadiness(context.Background())
	if _, ok := status.Checks["kafka"]; !ok {
		t.Errorf("Expected a kafka readiness check, got %v", status.Checks)
	}
	if status.Status == health.StatusReady {
		t.Error("Expected not ready while the consumer is stopped")
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	a := newTestApp(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
