package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables. A secret name is
// upper-cased, hyphens and dots become underscores, and the prefix is
// prepended: with prefix "LOGPIPE_SECRET_", "db-password" is read from
// LOGPIPE_SECRET_DB_PASSWORD.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

// GetSecret reads the variable for name. An empty variable counts as unset.
func (p *EnvProvider) GetSecret(_ context.Context, name string) (string, error) {
	key := p.envName(name)
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%w: %s not set", ErrNotFound, key)
	}
	return value, nil
}

// Name returns "env".
func (p *EnvProvider) Name() string {
	return "env"
}

func (p *EnvProvider) envName(name string) string {
	key := strings.ToUpper(name)
	key = strings.NewReplacer("-", "_", ".", "_").Replace(key)
	return p.prefix + key
}
