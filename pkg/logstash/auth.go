package logstash

// PublicScope is the scope of logs written without a caller key.
const PublicScope = "public"

// ScopeOf maps a caller key to the scope its logs are stored under.
func ScopeOf(callerKey string) string {
	if callerKey == "" {
		return PublicScope
	}
	return callerKey
}

// Authorizer decides whether a caller key may use the stash.
// pkg/security/auth.Whitelist is the standard implementation.
type Authorizer interface {
	Authorize(callerKey string) error
}

type allowAll struct{}

func (allowAll) Authorize(string) error { return nil }
