package middleware

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"logpipe-hq/logpipe/pkg/format"
	"logpipe-hq/logpipe/pkg/security/auth"

	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an unused per-caller bucket is kept.
const limiterIdleTTL = 10 * time.Minute

var errRateLimited = errors.New("rate limit exceeded")

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller. Keyed callers are limited
// by key; public callers by remote IP.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

// NewRateLimiter creates a limiter allowing rps sustained requests per
// caller with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		entries: make(map[string]*limiterEntry),
	}
}

// Allow reports whether the caller identified by id may proceed.
func (l *RateLimiter) Allow(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for k, e := range l.entries {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(l.entries, k)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.entries[id]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.entries[id] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Len returns the number of tracked callers.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Middleware rejects callers over their rate with 429. It must run after
// the caller key middleware. A nil limiter returns next unchanged.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := callerID(r)
		if !l.Allow(id) {
			slog.WarnContext(r.Context(), "rate limit exceeded",
				"path", r.URL.Path,
				"caller", auth.RedactKey(auth.CallerKey(r.Context())),
			)
			out := format.NewJSONFormatter().Error(errRateLimited, http.StatusTooManyRequests)
			w.Header().Set("Content-Type", out.MIMEType)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(l.rps)))
			w.WriteHeader(out.StatusCode)
			_, _ = w.Write(out.Body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerID identifies the caller for limiting purposes.
func callerID(r *http.Request) string {
	if key := auth.CallerKey(r.Context()); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func retryAfterSeconds(rps rate.Limit) int {
	if rps <= 0 || rps >= 1 {
		return 1
	}
	return int(1/float64(rps)) + 1
}
