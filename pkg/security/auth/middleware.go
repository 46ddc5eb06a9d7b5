package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// KeySource defines where to extract caller keys from
type KeySource struct {
	Type   string // header, query
	Name   string // Header name or query param
	Scheme string // "Bearer", etc. (optional)
}

// DefaultKeySources are tried in order: the authKey query parameter, the
// X-Auth-Key header, then an Authorization bearer token.
var DefaultKeySources = []KeySource{
	{Type: "query", Name: "authKey"},
	{Type: "header", Name: "X-Auth-Key"},
	{Type: "header", Name: "Authorization", Scheme: "Bearer"},
}

// CallerKeyMiddleware extracts the caller key and stores it in the request
// context. It does not reject requests; the stash authorizes each operation.
type CallerKeyMiddleware struct {
	sources []KeySource
}

// NewCallerKeyMiddleware creates the middleware. Nil sources means
// DefaultKeySources.
func NewCallerKeyMiddleware(sources []KeySource) *CallerKeyMiddleware {
	if len(sources) == 0 {
		sources = DefaultKeySources
	}
	return &CallerKeyMiddleware{
		sources: sources,
	}
}

// Handle wraps an HTTP handler with caller key extraction
func (m *CallerKeyMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ExtractKey(r, m.sources)
		if key != "" {
			slog.Debug("caller key extracted",
				"key", RedactKey(key),
				"path", r.URL.Path,
			)
		}

		ctx := context.WithValue(r.Context(), callerKeyKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractKey returns the first caller key found in sources, or "".
func ExtractKey(r *http.Request, sources []KeySource) string {
	for _, source := range sources {
		switch source.Type {
		case "header":
			value := r.Header.Get(source.Name)
			if value == "" {
				continue
			}
			// Remove scheme prefix if present
			if source.Scheme != "" {
				prefix := source.Scheme + " "
				if strings.HasPrefix(value, prefix) {
					return strings.TrimSpace(strings.TrimPrefix(value, prefix))
				}
				continue
			}
			return value

		case "query":
			if value := r.URL.Query().Get(source.Name); value != "" {
				return value
			}
		}
	}
	return ""
}

// RedactKey keeps only a short prefix of key for logging.
func RedactKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}

// Context key for the caller key
type contextKey string

// #nosec G101 - This is a context key constant, not a credential
const callerKeyKey contextKey = "caller_key"

// CallerKey retrieves the caller key from request context. Requests that
// did not pass through the middleware, or carried no key, yield "".
func CallerKey(ctx context.Context) string {
	key, _ := ctx.Value(callerKeyKey).(string)
	return key
}

// WithCallerKey returns a context carrying key.
func WithCallerKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, callerKeyKey, key)
}
