package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"logpipe-hq/logpipe/pkg/config"
	"logpipe-hq/logpipe/pkg/format"
	"logpipe-hq/logpipe/pkg/logstash"
	"logpipe-hq/logpipe/pkg/logstash/storage"
	"logpipe-hq/logpipe/pkg/security/auth"
	"logpipe-hq/logpipe/pkg/telemetry/health"
	"logpipe-hq/logpipe/pkg/telemetry/metrics"
)

// newTestServer creates a server over an in-memory stash. A non-empty
// whitelist restricts callers to those keys.
func newTestServer(t *testing.T, whitelist []string, modify func(*config.Config), opts ...Option) (*Server, *logstash.Stash) {
	t.Helper()

	cfg := config.Defaults()
	if modify != nil {
		modify(cfg)
	}

	var stashOpts []logstash.Option
	if len(whitelist) > 0 {
		stashOpts = append(stashOpts, logstash.WithAuthorizer(auth.NewWhitelist(whitelist)))
	}
	stash := logstash.New(storage.NewMemoryStorage(), stashOpts...)
	t.Cleanup(func() { stash.Close() })

	opts = append([]Option{WithStreamConfig(config.StreamConfig{WriteTimeout: time.Second})}, opts...)
	return NewServer(&cfg.Server, stash, opts...), stash
}

func logBody(message string, createdAt time.Time, tags ...string) string {
	tagJSON, _ := json.Marshal(tags)
	return fmt.Sprintf(`{"logger":"svc","level":"INFO","message":%q,"createdAt":%d,"tags":%s}`,
		message, createdAt.UnixMilli(), tagJSON)
}

func serve(handler http.Handler, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeMessage(t *testing.T, body []byte) string {
	t.Helper()
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("Failed to decode %s: %v", body, err)
	}
	return payload.Message
}

func TestWriteThenRead(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	handler := srv.Handler()
	now := time.Now()

	rec := serve(handler, http.MethodPost, "/write", logBody("started", now, "boot"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := decodeMessage(t, rec.Body.Bytes()); msg != noticeLogSaved {
		t.Errorf("Expected %q, got %q", noticeLogSaved, msg)
	}

	rec = serve(handler, http.MethodGet, "/read?format=json", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}
	logs, err := logstash.ParseLogs(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("ParseLogs() failed: %v", err)
	}
	if len(logs) != 1 || logs[0].Message != "started" || logs[0].ID == 0 {
		t.Errorf("Unexpected logs: %+v", logs)
	}

	rec = serve(handler, http.MethodGet, "/read?format=json&level=ERROR", "", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("Expected empty array, got %s", rec.Body.String())
	}

	rec = serve(handler, http.MethodGet, fmt.Sprintf("/read?format=json&afterId=%d", logs[0].ID), "", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("Expected empty array after last id, got %s", rec.Body.String())
	}
}

func TestWrite_Batch(t *testing.T) {
	srv, stash := newTestServer(t, nil, nil)
	now := time.Now()
	body := "[" + logBody("a", now) + "," + logBody("b", now) + "]"

	rec := serve(srv.Handler(), http.MethodPost, "/write", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := decodeMessage(t, rec.Body.Bytes()); msg != noticeLogsSaved {
		t.Errorf("Expected %q, got %q", noticeLogsSaved, msg)
	}

	logs, err := stash.Get(context.Background(), logstash.Filter{}, "")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("Expected 2 logs, got %d", len(logs))
	}
}

func TestWrite_Errors(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"invalid json", `{"logger":`, http.StatusBadRequest},
		{"missing message", `{"logger":"svc","level":"INFO","createdAt":1}`, http.StatusBadRequest},
		{"too old", logBody("late", now.Add(-2*time.Hour)), http.StatusBadRequest},
		{"empty batch", `[]`, http.StatusBadRequest},
		{"body too large", logBody(strings.Repeat("x", 2048), now), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, stash := newTestServer(t, nil, func(c *config.Config) {
				c.Server.MaxBodyBytes = 1024
			})

			rec := serve(srv.Handler(), http.MethodPost, "/write?format=console", tt.body, nil)
			if rec.Code != tt.expectedStatus {
				t.Errorf("Expected %d, got %d: %s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected JSON error regardless of format, got %q", ct)
			}

			logs, _ := stash.Get(context.Background(), logstash.Filter{}, "")
			if len(logs) != 0 {
				t.Errorf("Expected nothing stored, got %d logs", len(logs))
			}
		})
	}
}

// brokenStorage stores a number of logs and then fails every insert.
type brokenStorage struct {
	*storage.MemoryStorage
	remaining int
}

func (s *brokenStorage) InsertWithEviction(ctx context.Context, log *logstash.Log, max int, callerKey string) (int64, error) {
	if s.remaining <= 0 {
		return 0, logstash.NewStorageError("broken", "insert", errors.New("disk full"))
	}
	s.remaining--
	return s.MemoryStorage.InsertWithEviction(ctx, log, max, callerKey)
}

func TestWrite_PartialBatchReportsStoredCount(t *testing.T) {
	stash := logstash.New(&brokenStorage{MemoryStorage: storage.NewMemoryStorage(), remaining: 1})
	t.Cleanup(func() { stash.Close() })
	srv := NewServer(&config.Defaults().Server, stash)

	now := time.Now()
	body := "[" + logBody("a", now) + "," + logBody("b", now) + "]"
	rec := serve(srv.Handler(), http.MethodPost, "/write", body, nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := decodeMessage(t, rec.Body.Bytes()); !strings.Contains(msg, "stored 1 of 2 logs") {
		t.Errorf("Expected the stored count in %q", msg)
	}
}

func TestWrite_TooOldRejectsWholeBatch(t *testing.T) {
	srv, stash := newTestServer(t, nil, nil)
	now := time.Now()
	body := "[" + logBody("fresh", now) + "," + logBody("stale", now.Add(-2*time.Hour)) + "]"

	rec := serve(srv.Handler(), http.MethodPost, "/write", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if msg := decodeMessage(t, rec.Body.Bytes()); msg != errLogTooOld.Error() {
		t.Errorf("Expected %q, got %q", errLogTooOld.Error(), msg)
	}

	logs, _ := stash.Get(context.Background(), logstash.Filter{}, "")
	if len(logs) != 0 {
		t.Errorf("Expected no logs stored, got %d", len(logs))
	}
}

func TestCallerKeyScopes(t *testing.T) {
	srv, _ := newTestServer(t, []string{"team-a", "team-b"}, nil)
	handler := srv.Handler()
	now := time.Now()

	tests := []struct {
		name           string
		method         string
		target         string
		header         http.Header
		expectedStatus int
	}{
		{"write with query key", http.MethodPost, "/write?authKey=team-a", nil, http.StatusOK},
		{"write with header key", http.MethodPost, "/write", http.Header{"X-Auth-Key": {"team-b"}}, http.StatusOK},
		{"write with bearer", http.MethodPost, "/write", http.Header{"Authorization": {"Bearer team-a"}}, http.StatusOK},
		{"write with unknown key", http.MethodPost, "/write?authKey=intruder", nil, http.StatusUnauthorized},
		{"write without key", http.MethodPost, "/write", nil, http.StatusUnauthorized},
		{"read with unknown key", http.MethodGet, "/read?authKey=intruder", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(handler, tt.method, tt.target, logBody("m", now), tt.header)
			if rec.Code != tt.expectedStatus {
				t.Errorf("Expected %d, got %d: %s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
		})
	}

	// Each key reads only its own scope.
	rec := serve(handler, http.MethodGet, "/read?format=json&authKey=team-a", "", nil)
	logs, err := logstash.ParseLogs(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("ParseLogs() failed: %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("Expected 2 logs for team-a, got %d", len(logs))
	}

	rec = serve(handler, http.MethodGet, "/read?format=json", "", http.Header{"X-Auth-Key": {"team-b"}})
	logs, _ = logstash.ParseLogs(rec.Body.Bytes())
	if len(logs) != 1 {
		t.Errorf("Expected 1 log for team-b, got %d", len(logs))
	}
}

func TestRead_Errors(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec := serve(srv.Handler(), http.MethodGet, "/read?format=json&limit=ten", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}

	rec = serve(srv.Handler(), http.MethodGet, "/read?format=console&from=someday", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Expected console error, got %q", ct)
	}
}

func TestRead_StashClosed(t *testing.T) {
	srv, stash := newTestServer(t, nil, nil)
	stash.Close()

	rec := serve(srv.Handler(), http.MethodGet, "/read?format=json", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec := serve(srv.Handler(), http.MethodGet, "/nope?format=json", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
	if msg := decodeMessage(t, rec.Body.Bytes()); msg != errNotFound.Error() {
		t.Errorf("Expected %q, got %q", errNotFound.Error(), msg)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec := serve(srv.Handler(), http.MethodGet, "/read", "", http.Header{"X-Request-Id": {"req-123"}})
	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("Expected req-123, got %q", got)
	}
}

func TestRateLimitedWrites(t *testing.T) {
	srv, _ := newTestServer(t, nil, func(c *config.Config) {
		c.Server.RateLimit.Enabled = true
		c.Server.RateLimit.RequestsPerSecond = 0.001
		c.Server.RateLimit.Burst = 1
	})
	handler := srv.Handler()
	now := time.Now()

	if rec := serve(handler, http.MethodPost, "/write?authKey=k", logBody("a", now), nil); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec := serve(handler, http.MethodPost, "/write?authKey=k", logBody("b", now), nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rec.Code)
	}
	// Reads are not limited.
	if rec := serve(handler, http.MethodGet, "/read?authKey=k", "", nil); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for read, got %d", rec.Code)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	checker := health.New(time.Second)
	collector := metrics.NewCollector(&config.Defaults().Telemetry.Metrics, nil)

	srv, stash := newTestServer(t, nil, nil,
		WithHealth(checker),
		WithMetrics(collector, "/metrics"),
		WithVersion(health.VersionInfo{Version: "1.2.3"}),
	)
	checker.RegisterCheck("stash", health.StashCheck(stash))
	handler := srv.Handler()

	if rec := serve(handler, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from /health, got %d", rec.Code)
	}
	if rec := serve(handler, http.MethodGet, "/ready", "", nil); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from /ready, got %d: %s", rec.Code, rec.Body.String())
	}

	rec := serve(handler, http.MethodGet, "/version", "", nil)
	var info health.VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil || info.Version != "1.2.3" {
		t.Errorf("Unexpected version response: %s", rec.Body.String())
	}

	rec = serve(handler, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `logpipe_http_requests_total{code="200",method="GET",route="version"} 1`) {
		t.Errorf("Expected version request to be counted, got:\n%s", rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", logstash.NewValidationError("logger", "required"), http.StatusBadRequest},
		{"filter parse", logstash.NewFilterParseError("limit", "x", errors.New("bad")), http.StatusBadRequest},
		{"too old", errLogTooOld, http.StatusBadRequest},
		{"unauthorized", logstash.NewUnauthorizedError("get", auth.ErrKeyNotWhitelisted), http.StatusUnauthorized},
		{"not found", errNotFound, http.StatusNotFound},
		{"body too large", &http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{"storage", logstash.NewStorageError("sqlite", "insert", errors.New("disk full")), http.StatusServiceUnavailable},
		{"not ready", fmt.Errorf("add: %w", logstash.ErrNotReady), http.StatusServiceUnavailable},
		{"closed", logstash.ErrStashClosed, http.StatusServiceUnavailable},
		{"other", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestStartAndShutdown(t *testing.T) {
	srv, _ := newTestServer(t, nil, func(c *config.Config) {
		c.Server.Host = "127.0.0.1"
		c.Server.Port = 0
		c.Server.ShutdownTimeout = time.Second
	})

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected Shutdown before Start to be a no-op, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !srv.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !srv.IsRunning() {
		t.Fatal("Expected server to be running")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
	if srv.IsRunning() {
		t.Error("Expected server stopped")
	}
}

func TestWithFormats(t *testing.T) {
	registry := format.NewRegistry()
	if err := registry.SetDefault(format.Console); err != nil {
		t.Fatalf("SetDefault() failed: %v", err)
	}
	srv, _ := newTestServer(t, nil, nil, WithFormats(registry))

	rec := serve(srv.Handler(), http.MethodGet, "/read", "", nil)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Expected console default format, got %q", ct)
	}

	rec = serve(srv.Handler(), http.MethodGet, "/read?format=json", "", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("Expected explicit json format, got %q", rec.Body.String())
	}
}
