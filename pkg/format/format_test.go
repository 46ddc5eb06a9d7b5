package format

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"logpipe-hq/logpipe/pkg/logstash"
)

func testLogs(t *testing.T) []*logstash.Log {
	t.Helper()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a, err := logstash.NewLog("svc", "warn", "disk almost full", at, []string{"disk", "ops"})
	if err != nil {
		t.Fatalf("NewLog() failed: %v", err)
	}
	b, err := logstash.NewLog("api", "INFO", "started", at.Add(time.Second), nil)
	if err != nil {
		t.Fatalf("NewLog() failed: %v", err)
	}
	return []*logstash.Log{a.WithID(1), b.WithID(2)}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if r.Default() != JSON {
		t.Errorf("Expected default %q, got %q", JSON, r.Default())
	}
	if got := strings.Join(r.Names(), ","); got != "cconsole,console,json" {
		t.Errorf("Unexpected names: %s", got)
	}

	if _, ok := r.Get("nope").(*JSONFormatter); !ok {
		t.Error("Expected unknown format to fall back to json")
	}
	if _, ok := r.Get("").(*JSONFormatter); !ok {
		t.Error("Expected empty format to fall back to json")
	}

	if err := r.SetDefault(Console); err != nil {
		t.Fatalf("SetDefault() failed: %v", err)
	}
	if _, ok := r.Get("nope").(*ConsoleFormatter); !ok {
		t.Error("Expected fallback to follow the new default")
	}
	if err := r.SetDefault("xml"); err == nil {
		t.Error("Expected error for unknown default")
	}
	if !r.Has(ColorConsole) || r.Has("xml") {
		t.Error("Unexpected Has() result")
	}
}

func TestJSONFormatter_Logs(t *testing.T) {
	out := NewJSONFormatter().Logs(testLogs(t))

	if out.MIMEType != "application/json" {
		t.Errorf("Expected application/json, got %s", out.MIMEType)
	}
	if out.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", out.StatusCode)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(out.Body, &decoded); err != nil {
		t.Fatalf("Invalid JSON %s: %v", out.Body, err)
	}
	if len(decoded) != 2 {
		t.Fatalf("Expected 2 logs, got %d", len(decoded))
	}
	if decoded[0]["createdAt"] != "2024-03-01T12:00:00.000Z" {
		t.Errorf("Unexpected createdAt: %v", decoded[0]["createdAt"])
	}
	if decoded[1]["id"] != float64(2) {
		t.Errorf("Expected id 2, got %v", decoded[1]["id"])
	}

	if empty := NewJSONFormatter().Logs(nil); string(empty.Body) != "[]" {
		t.Errorf("Expected [], got %s", empty.Body)
	}
}

func TestJSONFormatter_NoticeAndError(t *testing.T) {
	f := NewJSONFormatter()

	if got := string(f.Notice(NewNotice("Log saved successfully")).Body); got != `{"message":"Log saved successfully"}` {
		t.Errorf("Unexpected notice: %s", got)
	}

	out := f.Error(errors.New("boom"), http.StatusBadRequest)
	if out.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", out.StatusCode)
	}
	if got := string(out.Body); got != `{"error":"Bad Request","message":"boom"}` {
		t.Errorf("Unexpected error body: %s", got)
	}

	if out := f.Error(errors.New("boom"), 0); out.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected 500 fallback, got %d", out.StatusCode)
	}
}

func TestConsoleFormatter_Logs(t *testing.T) {
	logs := testLogs(t)
	out := NewConsoleFormatter(false).Logs(logs)

	if out.MIMEType != "text/plain; charset=utf-8" {
		t.Errorf("Unexpected MIME type %s", out.MIMEType)
	}

	lines := strings.Split(string(out.Body), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), out.Body)
	}

	stamp := logs[0].CreatedAt.Local().Format("2006-01-02 15:04:05")
	expected := "[" + stamp + "] [svc] [WARN] disk almost full disk,ops"
	if lines[0] != expected {
		t.Errorf("Expected %q, got %q", expected, lines[0])
	}
	if !strings.HasSuffix(lines[1], "[api] [INFO] started") {
		t.Errorf("Unexpected second line %q", lines[1])
	}
	if strings.Contains(string(out.Body), "\x1b[") {
		t.Error("Expected no ANSI codes without colours")
	}
}

func TestConsoleFormatter_Colors(t *testing.T) {
	f := NewConsoleFormatter(true)
	body := string(f.Logs(testLogs(t)[:1]).Body)

	if !strings.Contains(body, ansiYellow+ansiBold+"[WARN] "+ansiReset) {
		t.Errorf("Expected bold yellow level, got %q", body)
	}
	// No tag has a colour of its own, so the message takes the level colour.
	if !strings.Contains(body, ansiYellow+"disk almost full"+ansiReset) {
		t.Errorf("Expected yellow message, got %q", body)
	}

	tagged, _ := logstash.NewLog("svc", "INFO", "failed", time.Now(), []string{"error"})
	if body := string(f.Logs([]*logstash.Log{tagged}).Body); !strings.Contains(body, ansiRed+"failed"+ansiReset) {
		t.Errorf("Expected tag colour to win over level, got %q", body)
	}

	custom, _ := logstash.NewLog("svc", "AUDIT", "custom", time.Now(), nil)
	if body := string(f.Logs([]*logstash.Log{custom}).Body); !strings.Contains(body, ansiWhite+"custom"+ansiReset) {
		t.Errorf("Expected default colour for unknown level, got %q", body)
	}
}

func TestConsoleFormatter_NoticeAndError(t *testing.T) {
	plain := NewConsoleFormatter(false)
	if got := string(plain.Notice(NewNotice("Filter applied")).Body); got != "Filter applied" {
		t.Errorf("Unexpected notice %q", got)
	}

	out := plain.Error(errors.New("denied"), http.StatusUnauthorized)
	if string(out.Body) != "Error: denied" || out.StatusCode != http.StatusUnauthorized {
		t.Errorf("Unexpected error output %q (%d)", out.Body, out.StatusCode)
	}

	colored := NewConsoleFormatter(true)
	if got := string(colored.Notice(NewNotice("ok")).Body); got != ansiGreen+ansiDim+"ok"+ansiReset {
		t.Errorf("Unexpected coloured notice %q", got)
	}
}
