package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := writeConfig(t, "storage:\n  max_logs: 10\n")

	w, err := NewWatcher(path, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Stop()

	reloaded := make(chan *Config, 4)
	go w.Watch(context.Background(), func(cfg *Config) {
		reloaded <- cfg
	})

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("storage:\n  max_logs: 20\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Storage.MaxLogs != 20 {
			t.Errorf("expected max logs 20, got %d", cfg.Storage.MaxLogs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_InvalidFileKeepsPrevious(t *testing.T) {
	path := writeConfig(t, "storage:\n  max_logs: 10\n")

	w, err := NewWatcher(path, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Stop()

	var calls atomic.Int32
	go w.Watch(context.Background(), func(*Config) { calls.Add(1) })
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("storage:\n  max_logs: -5\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if calls.Load() != 0 {
		t.Errorf("expected invalid config to be skipped, got %d reloads", calls.Load())
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	path := writeConfig(t, "storage:\n  max_logs: 10\n")

	w, err := NewWatcher(path, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	defer w.Stop()

	var calls atomic.Int32
	go w.Watch(context.Background(), func(*Config) { calls.Add(1) })
	time.Sleep(50 * time.Millisecond)

	other := filepath.Join(filepath.Dir(path), "other.yaml")
	if err := os.WriteFile(other, []byte("x: 1\n"), 0644); err != nil {
		t.Fatalf("failed to write other file: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if calls.Load() != 0 {
		t.Errorf("expected unrelated file to be ignored, got %d reloads", calls.Load())
	}
}

func TestWatcher_StopsWithContext(t *testing.T) {
	path := writeConfig(t, "")

	w, err := NewWatcher(path, 0)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx, func(*Config) {}) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop() failed: %v", err)
	}
}

func TestDebouncer_RunsLatestOnce(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var calls, last atomic.Int32
	for i := int32(1); i <= 5; i++ {
		n := i
		d.Trigger(func() {
			calls.Add(1)
			last.Store(n)
		})
	}

	time.Sleep(150 * time.Millisecond)
	if calls.Load() != 1 || last.Load() != 5 {
		t.Errorf("expected one call with the latest callback, got calls=%d last=%d", calls.Load(), last.Load())
	}

	d.Stop()
	d.Trigger(func() { calls.Add(1) })
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 1 {
		t.Error("expected triggers after Stop to be ignored")
	}
}
