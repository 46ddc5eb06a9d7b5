package auth

import (
	"errors"
	"slices"
	"sync"
)

// Wildcard in a key list admits every caller.
const Wildcard = "*"

var (
	// ErrMissingKey is returned when a restricted whitelist sees no caller key.
	ErrMissingKey = errors.New("caller key required")

	// ErrKeyNotWhitelisted is returned for keys outside the whitelist.
	ErrKeyNotWhitelisted = errors.New("caller key not whitelisted")
)

// Whitelist admits caller keys from a configured set. A whitelist built
// from no keys, or from a list containing "*", admits every caller,
// including callers without a key. It is safe for concurrent use and can be
// replaced at runtime.
type Whitelist struct {
	mu       sync.RWMutex
	keys     map[string]struct{}
	matchAll bool
}

// NewWhitelist creates a whitelist from keys. Empty entries are ignored.
func NewWhitelist(keys []string) *Whitelist {
	w := &Whitelist{}
	w.Replace(keys)
	return w
}

// MatchAll returns a whitelist that admits every caller.
func MatchAll() *Whitelist {
	return NewWhitelist(nil)
}

// Authorize returns nil when key is admitted.
func (w *Whitelist) Authorize(key string) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.matchAll {
		return nil
	}
	if key == "" {
		return ErrMissingKey
	}
	if _, ok := w.keys[key]; !ok {
		return ErrKeyNotWhitelisted
	}
	return nil
}

// IsMatchAll reports whether every caller is admitted.
func (w *Whitelist) IsMatchAll() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.matchAll
}

// Replace swaps the whole key set, as done on configuration reload.
func (w *Whitelist) Replace(keys []string) {
	keyMap := make(map[string]struct{}, len(keys))
	matchAll := false
	for _, key := range keys {
		switch key {
		case "":
			continue
		case Wildcard:
			matchAll = true
		default:
			keyMap[key] = struct{}{}
		}
	}
	if len(keyMap) == 0 {
		matchAll = true
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys = keyMap
	w.matchAll = matchAll
}

// Add admits one more key. Adding to a match-all whitelist restricts it to
// the added key.
func (w *Whitelist) Add(key string) {
	if key == "" || key == Wildcard {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys[key] = struct{}{}
	w.matchAll = false
}

// Remove revokes a key. Removing the last key does not make the whitelist
// match-all; callers must Replace with an empty list for that.
func (w *Whitelist) Remove(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.keys, key)
}

// Keys returns the admitted keys in sorted order.
func (w *Whitelist) Keys() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	keys := make([]string, 0, len(w.keys))
	for key := range w.keys {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
