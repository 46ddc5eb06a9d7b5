package auth

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestWhitelist_Authorize(t *testing.T) {
	tests := []struct {
		name        string
		keys        []string
		key         string
		expectedErr error
	}{
		{"match all admits empty key", nil, "", nil},
		{"match all admits any key", nil, "anything", nil},
		{"wildcard admits any key", []string{"*"}, "anything", nil},
		{"wildcard with keys admits any key", []string{"A", "*"}, "B", nil},
		{"listed key", []string{"A"}, "A", nil},
		{"unlisted key", []string{"A"}, "B", ErrKeyNotWhitelisted},
		{"empty key rejected", []string{"A"}, "", ErrMissingKey},
		{"empty entries ignored", []string{"", ""}, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWhitelist(tt.keys)
			err := w.Authorize(tt.key)
			if !errors.Is(err, tt.expectedErr) {
				t.Errorf("Expected error %v, got %v", tt.expectedErr, err)
			}
		})
	}
}

func TestWhitelist_Replace(t *testing.T) {
	w := NewWhitelist([]string{"A"})

	if err := w.Authorize("B"); err == nil {
		t.Fatal("Expected B to be rejected before replace")
	}

	w.Replace([]string{"B"})
	if err := w.Authorize("B"); err != nil {
		t.Errorf("Expected B admitted after replace, got %v", err)
	}
	if err := w.Authorize("A"); err == nil {
		t.Error("Expected A rejected after replace")
	}

	w.Replace(nil)
	if !w.IsMatchAll() {
		t.Error("Expected match-all after replacing with no keys")
	}
}

func TestWhitelist_AddRemoveKeys(t *testing.T) {
	w := MatchAll()
	w.Add("b")
	w.Add("a")

	if w.IsMatchAll() {
		t.Error("Expected Add to restrict a match-all whitelist")
	}
	if got := fmt.Sprint(w.Keys()); got != "[a b]" {
		t.Errorf("Expected [a b], got %s", got)
	}

	w.Remove("a")
	if err := w.Authorize("a"); !errors.Is(err, ErrKeyNotWhitelisted) {
		t.Errorf("Expected removed key rejected, got %v", err)
	}
}

func TestWhitelist_ConcurrentAccess(t *testing.T) {
	w := NewWhitelist([]string{"k0"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			w.Replace([]string{"k0", fmt.Sprintf("k%d", i)})
		}(i)
		go func() {
			defer wg.Done()
			if err := w.Authorize("k0"); err != nil {
				t.Errorf("Expected k0 admitted, got %v", err)
			}
		}()
	}
	wg.Wait()
}
