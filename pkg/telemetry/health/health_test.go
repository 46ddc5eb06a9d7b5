package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"logpipe-hq/logpipe/pkg/logstash"
	"logpipe-hq/logpipe/pkg/logstash/storage"
)

func TestCheckReadiness(t *testing.T) {
	tests := []struct {
		name           string
		checks         map[string]CheckFunc
		expectedStatus string
	}{
		{
			name:           "no checks",
			checks:         nil,
			expectedStatus: StatusReady,
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"a": func(context.Context) error { return nil },
				"b": func(context.Context) error { return nil },
			},
			expectedStatus: StatusReady,
		},
		{
			name: "one unhealthy",
			checks: map[string]CheckFunc{
				"a": func(context.Context) error { return nil },
				"b": func(context.Context) error { return errors.New("down") },
			},
			expectedStatus: StatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(time.Second)
			for name, check := range tt.checks {
				checker.RegisterCheck(name, check)
			}

			status := checker.CheckReadiness(context.Background())
			if status.Status != tt.expectedStatus {
				t.Errorf("Expected %s, got %s", tt.expectedStatus, status.Status)
			}
			if len(status.Checks) != len(tt.checks) {
				t.Errorf("Expected %d results, got %d", len(tt.checks), len(status.Checks))
			}
		})
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	checker := New(20 * time.Millisecond)
	checker.RegisterCheck("slow", func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	status := checker.CheckReadiness(context.Background())
	result := status.Checks["slow"]
	if result.Status != StatusUnhealthy || result.Message != ErrCheckTimeout.Error() {
		t.Errorf("Expected timeout result, got %+v", result)
	}
}

func TestRegisterAndUnregister(t *testing.T) {
	checker := New(0)
	checker.RegisterCheck("b", func(context.Context) error { return nil })
	checker.RegisterCheck("a", func(context.Context) error { return nil })

	if got := strings.Join(checker.ListChecks(), ","); got != "a,b" {
		t.Errorf("Expected a,b, got %s", got)
	}

	checker.UnregisterCheck("a")
	if got := strings.Join(checker.ListChecks(), ","); got != "b" {
		t.Errorf("Expected b, got %s", got)
	}
}

// fakeStash fails initialization a fixed number of times.
type fakeStash struct {
	ready    atomic.Bool
	failures atomic.Int32
	attempts atomic.Int32
}

func (f *fakeStash) Ready() bool { return f.ready.Load() }

func (f *fakeStash) Init(ctx context.Context) error {
	f.attempts.Add(1)
	if f.failures.Add(-1) >= 0 {
		return errors.New("database unavailable")
	}
	f.ready.Store(true)
	return nil
}

func TestStashCheck_RetriesInitialization(t *testing.T) {
	stash := &fakeStash{}
	stash.failures.Store(1)
	check := StashCheck(stash)

	if err := check(context.Background()); err == nil {
		t.Fatal("Expected first probe to fail")
	}
	if err := check(context.Background()); err != nil {
		t.Fatalf("Expected second probe to initialize, got %v", err)
	}
	if err := check(context.Background()); err != nil {
		t.Fatalf("Expected ready stash to pass, got %v", err)
	}
	if stash.attempts.Load() != 2 {
		t.Errorf("Expected 2 init attempts, got %d", stash.attempts.Load())
	}
}

func TestStashCheck_RealStash(t *testing.T) {
	stash := logstash.New(storage.NewMemoryStorage())
	defer stash.Close()

	if stash.Ready() {
		t.Fatal("Expected stash to start uninitialized")
	}
	if err := StashCheck(stash)(context.Background()); err != nil {
		t.Fatalf("StashCheck() failed: %v", err)
	}
	if !stash.Ready() {
		t.Error("Expected readiness probe to initialize the stash")
	}
}

func TestStorageCheck(t *testing.T) {
	store := storage.NewMemoryStorage()
	check := StorageCheck(store)

	if err := check(context.Background()); err != nil {
		t.Errorf("Expected open storage to pass, got %v", err)
	}

	store.Close()
	if err := check(context.Background()); err == nil {
		t.Error("Expected closed storage to fail")
	}
}

func TestRunningCheck(t *testing.T) {
	var running atomic.Bool
	check := RunningCheck(running.Load)

	if !errors.Is(check(context.Background()), ErrNotRunning) {
		t.Error("Expected ErrNotRunning")
	}
	running.Store(true)
	if err := check(context.Background()); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}

func TestReadinessHandler(t *testing.T) {
	checker := New(time.Second)
	var healthy atomic.Bool
	checker.RegisterCheck("storage", func(context.Context) error {
		if !healthy.Load() {
			return errors.New("down")
		}
		return nil
	})
	handler := checker.ReadinessHandler()

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}

	var body HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body.Checks["storage"].Message != "down" {
		t.Errorf("Expected failure message, got %+v", body.Checks["storage"])
	}

	healthy.Store(true)
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	handler := New(0).LivenessHandler()

	tests := []struct {
		method       string
		expectedCode int
		expectBody   bool
	}{
		{http.MethodGet, http.StatusOK, true},
		{http.MethodHead, http.StatusOK, false},
		{http.MethodPost, http.StatusMethodNotAllowed, true},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(tt.method, "/health", nil))

			if rec.Code != tt.expectedCode {
				t.Errorf("Expected %d, got %d", tt.expectedCode, rec.Code)
			}
			if (rec.Body.Len() > 0) != tt.expectBody {
				t.Errorf("Unexpected body presence: %q", rec.Body.String())
			}
		})
	}
}

func TestVersionHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler("1.2.3", "abc", "today")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var info VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if info.Version != "1.2.3" || info.Commit != "abc" || info.GoVersion == "" {
		t.Errorf("Unexpected version info: %+v", info)
	}
}

func TestRateLimitedHandler(t *testing.T) {
	handler := RateLimitedHandler(New(0).LivenessHandler(), 2)

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("Expected burst to pass, got %v", codes)
	}
	if codes[3] != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after burst, got %v", codes)
	}
}
