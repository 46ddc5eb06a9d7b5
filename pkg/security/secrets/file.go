package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileProvider reads secrets from one file per secret in a directory, the
// layout Kubernetes uses for mounted secrets. Files must not be accessible
// to group or others. Values are trimmed and cached until Refresh.
type FileProvider struct {
	dir string

	mu     sync.RWMutex
	values map[string]string
}

// NewFileProvider creates a provider over dir, which must exist.
func NewFileProvider(dir string) (*FileProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets path is not a directory: %s", dir)
	}
	return &FileProvider{
		dir:    dir,
		values: make(map[string]string),
	}, nil
}

// GetSecret reads <dir>/<name>.
func (p *FileProvider) GetSecret(_ context.Context, name string) (string, error) {
	p.mu.RLock()
	value, ok := p.values[name]
	p.mu.RUnlock()
	if ok {
		return value, nil
	}

	path, err := p.path(name)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: no file %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret %s is not a regular file", name)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return "", fmt.Errorf("insecure permissions on secret %s: %o (expected 0600 or 0400)", name, perm)
	}

	// #nosec G304 - path is confined to dir above
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	value = strings.TrimSpace(string(data))

	p.mu.Lock()
	p.values[name] = value
	p.mu.Unlock()
	return value, nil
}

// path maps name into dir, rejecting names that escape it.
func (p *FileProvider) path(name string) (string, error) {
	if name == "" || !filepath.IsLocal(name) {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	return filepath.Join(p.dir, name), nil
}

// Name returns "file".
func (p *FileProvider) Name() string {
	return "file"
}

// Refresh drops cached values so rotated files are read again.
func (p *FileProvider) Refresh() {
	p.mu.Lock()
	p.values = make(map[string]string)
	p.mu.Unlock()
}
