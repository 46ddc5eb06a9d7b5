package logstash

import (
	"context"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Stream is a live subscription created by Stash.GetAsStream. It first yields
// the matching history oldest-first and then every new matching log in
// arrival order.
//
// Next, C and All all consume from the same sequence; use one of them per
// stream.
type Stream struct {
	id         string
	stash      *Stash
	filter     Filter
	scope      string
	queueLimit int

	mu      sync.Mutex
	history []*Log
	queue   []*Log

	wake     chan struct{}
	lifetime context.Context
	cancel   context.CancelFunc

	unsubscribe func()
	stopBind    func() bool
	opened      atomic.Bool
	closeOnce   sync.Once
	afterID     atomic.Int64

	nextMu sync.Mutex

	chOnce sync.Once
	ch     chan *Log
}

func newStream(s *Stash, filter Filter, scope string) *Stream {
	lifetime, cancel := context.WithCancel(context.Background())
	st := &Stream{
		id:         uuid.New().String(),
		stash:      s,
		filter:     filter,
		scope:      scope,
		queueLimit: s.streamQueueLimit,
		wake:       make(chan struct{}, 1),
		lifetime:   lifetime,
		cancel:     cancel,
	}
	st.afterID.Store(filter.AfterID)
	return st
}

// ID returns the subscription identifier.
func (st *Stream) ID() string {
	return st.id
}

// Filter returns the filter the stream was opened with.
func (st *Stream) Filter() Filter {
	return st.filter
}

// AfterID returns the highest id yielded so far, or the filter's AfterID if
// nothing has been yielded. Polling clients can resume from it.
func (st *Stream) AfterID() int64 {
	return st.afterID.Load()
}

// Done is closed when the stream ends.
func (st *Stream) Done() <-chan struct{} {
	return st.lifetime.Done()
}

// Next blocks until the next log is available. It returns io.EOF once the
// stream is closed and ctx.Err() if ctx ends first.
func (st *Stream) Next(ctx context.Context) (*Log, error) {
	st.nextMu.Lock()
	defer st.nextMu.Unlock()

	for {
		if st.lifetime.Err() != nil {
			return nil, io.EOF
		}
		if log, ok := st.pop(); ok {
			st.advance(log)
			return log, nil
		}

		select {
		case <-st.wake:
		case <-st.lifetime.Done():
			return nil, io.EOF
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// C returns a channel delivering the stream's logs. The channel is closed
// when the stream ends.
func (st *Stream) C() <-chan *Log {
	st.chOnce.Do(func() {
		st.ch = make(chan *Log)
		go func() {
			defer close(st.ch)
			for {
				log, err := st.Next(st.lifetime)
				if err != nil {
					return
				}
				select {
				case st.ch <- log:
				case <-st.lifetime.Done():
					return
				}
			}
		}()
	})
	return st.ch
}

// All returns the stream as a range-over-func sequence. Iteration stops when
// the stream closes or ctx ends; breaking out of the loop does not close the
// stream.
func (st *Stream) All(ctx context.Context) iter.Seq[*Log] {
	return func(yield func(*Log) bool) {
		for {
			log, err := st.Next(ctx)
			if err != nil {
				return
			}
			if !yield(log) {
				return
			}
		}
	}
}

// Close ends the stream and unregisters it from the stash. It is safe to
// call more than once and from any goroutine.
func (st *Stream) Close() error {
	st.closeOnce.Do(func() {
		st.cancel()
		if st.stopBind != nil {
			st.stopBind()
		}
		if st.unsubscribe != nil {
			st.unsubscribe()
		}
		st.stash.removeStream(st)

		st.mu.Lock()
		st.history = nil
		st.queue = nil
		st.mu.Unlock()

		if st.opened.Load() {
			st.stash.metrics.StreamClosed()
			st.stash.logger.Debug("stream closed", "stream_id", st.id)
		}
	})
	return nil
}

// bind ties the stream's lifetime to ctx.
func (st *Stream) bind(ctx context.Context) {
	st.opened.Store(true)
	st.stopBind = context.AfterFunc(ctx, func() {
		st.Close()
	})
}

func (st *Stream) setHistory(history []*Log) {
	st.mu.Lock()
	st.history = history
	st.mu.Unlock()
}

// deliver is the stash listener. It runs on the writer's goroutine and
// never blocks. Scope and filter are fixed for the stream's lifetime, so
// matching before queueing yields the same sequence as matching on dequeue,
// and non-matching logs never count against the queue limit.
func (st *Stream) deliver(log *Log, scope string) {
	if scope != st.scope || !Matches(log, st.filter) {
		return
	}

	st.mu.Lock()
	if st.lifetime.Err() != nil {
		st.mu.Unlock()
		return
	}
	st.queue = append(st.queue, log)
	dropped := false
	if st.queueLimit > 0 && len(st.queue) > st.queueLimit {
		st.queue[0] = nil
		st.queue = st.queue[1:]
		dropped = true
	}
	st.mu.Unlock()

	if dropped {
		st.stash.metrics.StreamDropped("queue_full")
	}

	select {
	case st.wake <- struct{}{}:
	default:
	}
}

func (st *Stream) pop() (*Log, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.history) > 0 {
		log := st.history[0]
		st.history[0] = nil
		st.history = st.history[1:]
		return log, true
	}
	if len(st.queue) > 0 {
		log := st.queue[0]
		st.queue[0] = nil
		st.queue = st.queue[1:]
		return log, true
	}
	return nil, false
}

func (st *Stream) advance(log *Log) {
	for {
		current := st.afterID.Load()
		if log.ID <= current || st.afterID.CompareAndSwap(current, log.ID) {
			return
		}
	}
}
