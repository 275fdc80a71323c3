package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Dispatcher lifecycle errors.
var (
	ErrAlreadyStarted = errors.New("audit: dispatcher already started")
	ErrNotStarted     = errors.New("audit: dispatcher not started")
)

// Defaults for DispatcherConfig.
const (
	DefaultQueueSize      = 256
	DefaultDeliverTimeout = 5 * time.Second
)

// DispatcherConfig holds settings for the async dispatcher.
type DispatcherConfig struct {
	// QueueSize bounds the number of pending events. Publish drops
	// when the queue is full.
	QueueSize int

	// DeliverTimeout bounds each sink call so a stuck sink cannot
	// stall the queue.
	DeliverTimeout time.Duration

	// Logger receives delivery failures. Defaults to a no-op logger.
	Logger *slog.Logger
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.DeliverTimeout <= 0 {
		c.DeliverTimeout = DefaultDeliverTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(nopHandler{})
	}
	return c
}

// Dispatcher fans events out to sinks from a single worker goroutine.
// Publish never blocks message handling: when the queue is full the
// event is dropped and counted.
type Dispatcher struct {
	cfg   DispatcherConfig
	sinks []Sink
	now   func() time.Time

	mu      sync.Mutex
	running bool
	queue   chan Event
	cancel  context.CancelFunc
	done    chan struct{}

	dropped atomic.Int64
}

// NewDispatcher creates a dispatcher delivering to the given sinks.
func NewDispatcher(cfg DispatcherConfig, sinks ...Sink) (*Dispatcher, error) {
	if len(sinks) == 0 {
		return nil, errors.New("audit: at least one sink is required")
	}
	return &Dispatcher{
		cfg:   cfg.withDefaults(),
		sinks: sinks,
		now:   time.Now,
	}, nil
}

// Start launches the delivery worker.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.queue = make(chan Event, d.cfg.QueueSize)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.running = true

	go d.run(runCtx, d.queue, d.done)
	return nil
}

// Stop closes the queue, waits for pending events to drain, and
// releases the worker. Events published after Stop are dropped.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrNotStarted
	}
	d.running = false
	close(d.queue)
	done := d.done
	cancel := d.cancel
	d.mu.Unlock()

	<-done
	cancel()
	return nil
}

// Publish enqueues an event for delivery. It returns false when the
// event was dropped, either because the queue is full or the
// dispatcher is not running. Safe to call on a nil dispatcher.
func (d *Dispatcher) Publish(ev Event) bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		d.dropped.Add(1)
		return false
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.now()
	}
	select {
	case d.queue <- ev:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Dropped reports how many events were discarded since creation.
func (d *Dispatcher) Dropped() int64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) run(ctx context.Context, queue <-chan Event, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-queue:
			if !ok {
				return
			}
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	for _, sink := range d.sinks {
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliverTimeout)
		err := sink.Record(callCtx, ev)
		cancel()
		if err != nil {
			d.cfg.Logger.Warn("audit delivery failed",
				"sink", fmt.Sprintf("%T", sink),
				"type", ev.Type,
				"error", err)
		}
	}
}

// nopHandler is a slog.Handler that discards all records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
