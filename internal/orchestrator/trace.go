package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/logging"
)

// TraceEmitter is the observability collector receiving state transitions.
// Emission is fire-and-forget: errors are logged and never fail a session.
type TraceEmitter interface {
	EmitTransition(ctx context.Context, t Transition) error
}

const (
	dispatchQueueSize = 256
	dispatchTimeout   = 5 * time.Second
)

// dispatcher delivers events to external sinks on a background goroutine so
// a slow or unavailable sink never blocks the workflow. Events are dropped
// when the queue is full.
type dispatcher struct {
	queue   chan func(context.Context) error
	logger  *logging.Logger
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func newDispatcher(logger *logging.Logger) *dispatcher {
	d := &dispatcher{
		queue:  make(chan func(context.Context) error, dispatchQueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)
	for fn := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		if err := d.safeCall(ctx, fn); err != nil {
			d.logger.Warn(ctx, "event sink failed", zap.Error(err))
		}
		cancel()
	}
}

func (d *dispatcher) safeCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(ctx, "event sink panicked", zap.Any("panic", r))
		}
	}()
	return fn(ctx)
}

func (d *dispatcher) submit(fn func(context.Context) error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}
	select {
	case d.queue <- fn:
	default:
		d.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (d *dispatcher) Dropped() int64 { return d.dropped.Load() }

// close stops accepting events and waits for queued ones up to ctx.
func (d *dispatcher) close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
