package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"logpipe-hq/logpipe/pkg/config"
	"logpipe-hq/logpipe/pkg/format"
	"logpipe-hq/logpipe/pkg/logstash"
	"logpipe-hq/logpipe/pkg/security/auth"
	sectls "logpipe-hq/logpipe/pkg/security/tls"
	"logpipe-hq/logpipe/pkg/server/middleware"
	"logpipe-hq/logpipe/pkg/telemetry/health"
	"logpipe-hq/logpipe/pkg/telemetry/metrics"
	"logpipe-hq/logpipe/pkg/telemetry/tracing"
)

// Route names used for metrics labels.
const (
	routeWrite    = "write"
	routeRead     = "read"
	routeStream   = "stream"
	routeHealth   = "health"
	routeReady    = "ready"
	routeVersion  = "version"
	routeMetrics  = "metrics"
	routeNotFound = "not_found"
)

// versionRequestsPerSecond limits /version, which needs no authorization.
const versionRequestsPerSecond = 10

// Server is the HTTP and WebSocket front end of a log stash.
type Server struct {
	config       *config.ServerConfig
	streamConfig config.StreamConfig
	stash        *logstash.Stash
	formats      *format.Registry
	metrics      *metrics.Collector
	metricsPath  string
	health       *health.Checker
	tracer       *tracing.Tracer
	version      health.VersionInfo
	limiter      *middleware.RateLimiter
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	now          func() time.Time

	// baseCtx ends WebSocket sessions on shutdown.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics and serves the registry at path.
func WithMetrics(c *metrics.Collector, path string) Option {
	return func(s *Server) {
		s.metrics = c
		s.metricsPath = path
	}
}

// WithHealth serves /health and /ready from checker.
func WithHealth(checker *health.Checker) Option {
	return func(s *Server) {
		s.health = checker
	}
}

// WithTracer traces requests with t.
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Server) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithFormats replaces the default format registry.
func WithFormats(r *format.Registry) Option {
	return func(s *Server) {
		if r != nil {
			s.formats = r
		}
	}
}

// WithVersion sets the build information served at /version.
func WithVersion(v health.VersionInfo) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithStreamConfig sets WebSocket keep-alive and write deadlines.
func WithStreamConfig(cfg config.StreamConfig) Option {
	return func(s *Server) {
		s.streamConfig = cfg
	}
}

// NewServer creates a server in front of stash.
func NewServer(cfg *config.ServerConfig, stash *logstash.Stash, opts ...Option) *Server {
	baseCtx, cancel := context.WithCancel(context.Background())
	noop, _ := tracing.New(&config.TracingConfig{}, "")

	s := &Server{
		config:  cfg,
		stash:   stash,
		formats: format.NewRegistry(),
		tracer:  noop,
		streamConfig: config.StreamConfig{
			PingInterval: config.DefaultStreamPingInterval,
			WriteTimeout: config.DefaultStreamWriteTimeout,
		},
		logger:     slog.Default().With("component", "server"),
		now:        time.Now,
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.RateLimit.Enabled {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// Start serves until ctx is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.Addr(),
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	tlsConfig, reloader, err := sectls.NewServerConfig(s.config.TLS)
	if err != nil {
		s.setRunning(false)
		return fmt.Errorf("failed to configure TLS: %w", err)
	}
	if reloader != nil {
		if err := reloader.Start(ctx); err != nil {
			s.setRunning(false)
			return fmt.Errorf("failed to start certificate reloader: %w", err)
		}
		s.httpServer.TLSConfig = tlsConfig
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"address", s.httpServer.Addr,
			"tls_enabled", tlsConfig != nil,
		)

		var err error
		if tlsConfig != nil {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.setRunning(false)
		return err
	}
}

// Shutdown stops accepting connections, ends open streams and waits for
// in-flight requests up to the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.IsRunning() {
		return nil
	}

	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())
		s.cancelBase()

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.setRunning(false)
		s.logger.Info("server stopped")
	})

	return shutdownErr
}

// IsRunning returns true while the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Server) setRunning(running bool) {
	s.mu.Lock()
	s.isRunning = running
	s.mu.Unlock()
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "POST /write", routeWrite, s.limiter.Middleware(http.HandlerFunc(s.handleWrite)))
	s.route(mux, "GET /read", routeRead, http.HandlerFunc(s.handleRead))
	s.route(mux, "GET /stream", routeStream, http.HandlerFunc(s.handleStream))
	s.route(mux, "GET /version", routeVersion, health.RateLimitedHandler(
		health.VersionHandler(s.version.Version, s.version.Commit, s.version.BuildTime),
		versionRequestsPerSecond,
	))

	if s.health != nil {
		s.route(mux, "GET /health", routeHealth, s.health.LivenessHandler())
		s.route(mux, "GET /ready", routeReady, s.health.ReadinessHandler())
	}
	if s.metrics != nil && s.metricsPath != "" {
		s.route(mux, "GET "+s.metricsPath, routeMetrics, s.metrics.Handler())
	}
	s.route(mux, "/", routeNotFound, http.HandlerFunc(s.handleNotFound))

	var handler http.Handler = mux
	handler = auth.NewCallerKeyMiddleware(nil).Handle(handler)
	handler = s.tracer.HTTPMiddleware(handler)
	handler = middleware.CORSMiddleware(s.config.CORS)(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)
	return handler
}

func (s *Server) route(mux *http.ServeMux, pattern, name string, h http.Handler) {
	var recorder middleware.HTTPRecorder
	if s.metrics != nil {
		recorder = s.metrics
	}
	mux.Handle(pattern, middleware.MetricsMiddleware(recorder, name)(h))
}

// checkOrigin applies the CORS origin list to WebSocket upgrades.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || !s.config.CORS.Enabled {
		return true
	}
	for _, allowed := range s.config.CORS.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
