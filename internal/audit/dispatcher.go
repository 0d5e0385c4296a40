package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls how a [Dispatcher] buffers events.
type Config struct {
	Enabled bool
	// BufferSize is the queue capacity. Values below 1 are raised to 1.
	BufferSize int
	// DropIfFull drops events when the queue is full instead of blocking
	// the request that produced them.
	DropIfFull bool
}

// queued pairs an event with the context of the request that produced it.
// The context keeps its values (request id, trace span) but not its
// cancellation, so a finished request does not cancel its own audit record.
type queued struct {
	ctx   context.Context
	event Event
}

// Dispatcher delivers audit events to a [Sink] from a single background
// goroutine. A nil *Dispatcher discards everything.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	queue      chan queued
	stop       chan struct{}
	wg         sync.WaitGroup
	dropped    atomic.Uint64
	closed     atomic.Bool
	closeOnce  sync.Once
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan queued, cfg.BufferSize),
		stop:       make(chan struct{}),
	}

	d.wg.Add(1)
	go d.deliver()

	return d
}

func (d *Dispatcher) deliver() {
	defer d.wg.Done()

	for {
		select {
		case q := <-d.queue:
			d.sink.Emit(q.ctx, q.event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case q := <-d.queue:
			d.sink.Emit(q.ctx, q.event)
		default:
			return
		}
	}
}

// Emit queues event for delivery with the values of ctx. In blocking mode
// it waits for queue space until ctx is done or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	q := queued{ctx: context.WithoutCancel(ctx), event: event}

	if d.dropIfFull {
		select {
		case d.queue <- q:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- q:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops accepting events, delivers what is queued and waits for the
// sink to finish. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
