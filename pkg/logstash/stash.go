package logstash

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInitTimeout bounds a single storage initialization attempt.
const DefaultInitTimeout = 30 * time.Second

// Listener is called synchronously for every log added to the stash, with
// the scope it was stored under. A panicking listener is recovered and
// logged; it does not affect the write or other listeners.
type Listener func(log *Log, scope string)

// Option configures a Stash.
type Option func(*Stash)

// WithAuthorizer sets the caller-key authorizer. The default admits every key.
func WithAuthorizer(a Authorizer) Option {
	return func(s *Stash) {
		if a != nil {
			s.auth = a
		}
	}
}

// WithMaxLogs sets the per logger and scope retention bound.
func WithMaxLogs(n int) Option {
	return func(s *Stash) {
		s.SetMaxLogs(n)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stash) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the measurement recorder.
func WithMetrics(r Recorder) Option {
	return func(s *Stash) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithStreamQueueLimit caps the number of undelivered live logs a stream
// buffers. When exceeded the oldest buffered log is dropped. Zero means
// unlimited.
func WithStreamQueueLimit(n int) Option {
	return func(s *Stash) {
		if n >= 0 {
			s.streamQueueLimit = n
		}
	}
}

// WithInitTimeout bounds each storage initialization attempt.
func WithInitTimeout(d time.Duration) Option {
	return func(s *Stash) {
		if d > 0 {
			s.initTimeout = d
		}
	}
}

// initAttempt is a single in-flight storage initialization shared by every
// caller that arrives while it runs.
type initAttempt struct {
	done chan struct{}
	err  error
}

// Stash stores logs through a Storage backend and fans new logs out to live
// streams. It is safe for concurrent use.
type Stash struct {
	storage          Storage
	auth             Authorizer
	logger           *slog.Logger
	metrics          Recorder
	maxLogs          atomic.Int64
	streamQueueLimit int
	initTimeout      time.Duration

	initMu  sync.Mutex
	attempt *initAttempt
	ready   atomic.Bool

	mu           sync.RWMutex
	listeners    map[uint64]Listener
	nextListener uint64
	streams      map[*Stream]struct{}
	closed       bool
}

// New creates a stash over storage. Storage is initialized lazily by the
// first operation that needs it.
func New(storage Storage, opts ...Option) *Stash {
	s := &Stash{
		storage:     storage,
		auth:        allowAll{},
		logger:      slog.Default().With("component", "logstash"),
		metrics:     nopRecorder{},
		initTimeout: DefaultInitTimeout,
		listeners:   make(map[uint64]Listener),
		streams:     make(map[*Stream]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetMaxLogs sets how many logs are kept per logger and scope. n <= 0 means
// unlimited.
func (s *Stash) SetMaxLogs(n int) {
	if n < 0 {
		n = 0
	}
	s.maxLogs.Store(int64(n))
}

// MaxLogs returns the current retention bound, 0 when unlimited.
func (s *Stash) MaxLogs() int {
	return int(s.maxLogs.Load())
}

// Ready reports whether storage has been initialized successfully.
func (s *Stash) Ready() bool {
	return s.ready.Load()
}

// Storage returns the backend the stash writes to.
func (s *Stash) Storage() Storage {
	return s.storage
}

// Init initializes storage without performing any other operation.
func (s *Stash) Init(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.ensureInitialized(ctx)
}

// AddLog persists log under the scope of callerKey and notifies every
// listener. The returned log carries the id assigned by storage.
func (s *Stash) AddLog(ctx context.Context, log *Log, callerKey string) (*Log, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := log.Validate(); err != nil {
		return nil, err
	}
	if err := s.authorize("add", callerKey); err != nil {
		return nil, err
	}
	if err := s.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	// Backends keep createdAt at the millisecond precision of the wire format.
	entry := log.WithID(0)
	entry.CreatedAt = entry.CreatedAt.Truncate(time.Millisecond)

	scope := ScopeOf(callerKey)
	start := time.Now()
	id, err := s.storage.InsertWithEviction(ctx, entry, s.MaxLogs(), callerKey)
	s.metrics.RecordAdd(scopeKind(callerKey), time.Since(start), err)
	if err != nil {
		s.logger.Error("failed to store log", "logger", log.Logger, "error", err)
		return nil, err
	}

	saved := entry.WithID(id)
	s.notify(saved, scope)
	return saved, nil
}

// AddLogs stores a batch. Every log is validated and the caller authorized
// before any is stored, so those failures leave storage untouched. A storage
// failure part way through returns the logs saved so far with an error that
// reports the count and wraps the cause.
func (s *Stash) AddLogs(ctx context.Context, logs []*Log, callerKey string) ([]*Log, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	for i, log := range logs {
		if err := log.Validate(); err != nil {
			return nil, fmt.Errorf("log %d: %w", i, err)
		}
	}
	if err := s.authorize("add", callerKey); err != nil {
		return nil, err
	}

	saved := make([]*Log, 0, len(logs))
	for _, log := range logs {
		out, err := s.AddLog(ctx, log, callerKey)
		if err != nil {
			if len(saved) == 0 {
				return nil, err
			}
			return saved, fmt.Errorf("stored %d of %d logs: %w", len(saved), len(logs), err)
		}
		saved = append(saved, out)
	}
	return saved, nil
}

// Get returns logs of the caller's scope matching filter, oldest first.
func (s *Stash) Get(ctx context.Context, filter Filter, callerKey string) ([]*Log, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := s.authorize("get", callerKey); err != nil {
		return nil, err
	}
	if err := s.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	return s.query(ctx, filter, callerKey)
}

// GetAsStream replays the logs matching filter, oldest first, and then
// follows every new matching log of the caller's scope. The stream ends when
// it is closed, when ctx ends, or when the stash is closed.
//
// The listener is registered before history is read, so no log is missed;
// a log written during setup may be delivered twice.
func (s *Stash) GetAsStream(ctx context.Context, filter Filter, callerKey string) (*Stream, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := s.authorize("stream", callerKey); err != nil {
		return nil, err
	}
	if err := s.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	st := newStream(s, filter, ScopeOf(callerKey))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStashClosed
	}
	st.unsubscribe = s.addListenerLocked(st.deliver)
	s.streams[st] = struct{}{}
	s.mu.Unlock()

	history, err := s.query(ctx, filter, callerKey)
	if err != nil {
		st.Close()
		return nil, err
	}
	st.setHistory(history)
	st.bind(ctx)

	s.metrics.StreamOpened()
	s.logger.Debug("stream opened", "stream_id", st.ID(), "history", len(history))
	return st, nil
}

// Subscribe registers fn for every future log. The returned function
// removes the subscription.
func (s *Stash) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addListenerLocked(fn)
}

// Close ends every open stream and closes storage.
func (s *Stash) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	streams := make([]*Stream, 0, len(s.streams))
	for st := range s.streams {
		streams = append(streams, st)
	}
	s.mu.Unlock()

	for _, st := range streams {
		st.Close()
	}

	s.ready.Store(false)
	if err := s.storage.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	s.logger.Info("log stash closed")
	return nil
}

func (s *Stash) query(ctx context.Context, filter Filter, callerKey string) ([]*Log, error) {
	start := time.Now()
	logs, err := s.storage.Query(ctx, filter, callerKey)
	s.metrics.RecordGet(scopeKind(callerKey), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	slices.Reverse(logs)
	return logs, nil
}

func (s *Stash) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStashClosed
	}
	return nil
}

func (s *Stash) authorize(operation, callerKey string) error {
	err := s.auth.Authorize(callerKey)
	if err == nil {
		return nil
	}
	s.logger.Debug("caller rejected", "operation", operation, "scope_kind", scopeKind(callerKey))

	var unauthorized *UnauthorizedError
	if errors.As(err, &unauthorized) {
		return err
	}
	return NewUnauthorizedError(operation, err)
}

// ensureInitialized starts or joins the current initialization attempt and
// waits for it. A failed attempt is discarded so the next call retries.
func (s *Stash) ensureInitialized(ctx context.Context) error {
	if s.ready.Load() {
		return nil
	}

	s.initMu.Lock()
	if s.ready.Load() {
		s.initMu.Unlock()
		return nil
	}
	attempt := s.attempt
	if attempt == nil {
		attempt = &initAttempt{done: make(chan struct{})}
		s.attempt = attempt
		go s.runInit(attempt)
	}
	s.initMu.Unlock()

	select {
	case <-attempt.done:
		if attempt.err != nil {
			return fmt.Errorf("%w: %w", ErrNotReady, attempt.err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stash) runInit(attempt *initAttempt) {
	ctx, cancel := context.WithTimeout(context.Background(), s.initTimeout)
	defer cancel()

	err := s.storage.Initialize(ctx)

	s.initMu.Lock()
	if err != nil {
		attempt.err = err
		s.attempt = nil
	} else {
		s.ready.Store(true)
	}
	s.initMu.Unlock()
	close(attempt.done)

	if err != nil {
		s.metrics.RecordInitFailure()
		s.logger.Error("storage initialization failed, will retry on next operation", "error", err)
		return
	}
	s.logger.Info("storage initialized")
}

func (s *Stash) addListenerLocked(fn Listener) func() {
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Stash) removeStream(st *Stream) {
	s.mu.Lock()
	delete(s.streams, st)
	s.mu.Unlock()
}

func (s *Stash) notify(log *Log, scope string) {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		s.callListener(fn, log, scope)
	}
}

func (s *Stash) callListener(fn Listener, log *Log, scope string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("log listener panicked", "panic", r, "log_id", log.ID)
		}
	}()
	fn(log, scope)
}

// scopeKind collapses caller keys into a low-cardinality label.
func scopeKind(callerKey string) string {
	if callerKey == "" {
		return PublicScope
	}
	return "keyed"
}
