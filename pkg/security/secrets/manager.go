package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"logpipe-hq/logpipe/pkg/config"
)

// refPattern matches ${secret:name}.
var refPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager resolves secrets through providers in order, caching results.
type Manager struct {
	providers []Provider
	cache     *Cache
	logger    *slog.Logger
}

// NewManager creates a manager over providers. ttl <= 0 disables caching.
func NewManager(ttl time.Duration, providers ...Provider) *Manager {
	return &Manager{
		providers: providers,
		cache:     NewCache(ttl, DefaultCacheSize),
		logger:    slog.Default().With("component", "secrets"),
	}
}

// FromConfig creates the environment provider and, when cfg.Dir is set,
// the file provider behind it.
func FromConfig(cfg config.SecretsConfig) (*Manager, error) {
	providers := []Provider{NewEnvProvider(cfg.EnvPrefix)}
	if cfg.Dir != "" {
		fp, err := NewFileProvider(cfg.Dir)
		if err != nil {
			return nil, err
		}
		providers = append(providers, fp)
	}
	return NewManager(cfg.CacheTTL, providers...), nil
}

// GetSecret returns the first value any provider has for name. Providers
// that do not have it are skipped; any other failure stops the lookup.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	if value, ok := m.cache.Get(name); ok {
		return value, nil
	}

	for _, p := range m.providers {
		value, err := p.GetSecret(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%s provider: %w", p.Name(), err)
		}
		m.cache.Set(name, value)
		m.logger.Debug("secret resolved", "name", redactName(name), "provider", p.Name())
		return value, nil
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Resolve replaces every ${secret:name} in s. All failing references are
// reported together.
func (m *Manager) Resolve(ctx context.Context, s string) (string, error) {
	var errs []error
	out := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := refPattern.FindStringSubmatch(ref)[1]
		value, err := m.GetSecret(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return ref
		}
		return value
	})
	return out, errors.Join(errs...)
}

// ResolveConfig resolves references in the values that may carry
// credentials: storage.url, auth.whitelist and kafka.caller_key. The result
// is validated again, since storage.url is only checked once resolved.
func (m *Manager) ResolveConfig(ctx context.Context, cfg *config.Config) error {
	var errs []error
	resolve := func(field string, v *string) {
		if !config.HasSecretRef(*v) {
			return
		}
		out, err := m.Resolve(ctx, *v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*v = out
	}

	resolve("storage.url", &cfg.Storage.URL)
	for i := range cfg.Auth.Whitelist {
		resolve(fmt.Sprintf("auth.whitelist[%d]", i), &cfg.Auth.Whitelist[i])
	}
	resolve("kafka.caller_key", &cfg.Kafka.CallerKey)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return config.Validate(cfg)
}

// Refresh drops cached values in the manager and its providers.
func (m *Manager) Refresh() {
	m.cache.Clear()
	for _, p := range m.providers {
		if r, ok := p.(Refresher); ok {
			r.Refresh()
		}
	}
}

// redactName keeps enough of a secret name to debug with.
func redactName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
