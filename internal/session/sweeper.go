package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Sentinel errors for sweeper lifecycle operations.
var (
	ErrAlreadyStarted = errors.New("session: sweeper already started")
	ErrNotStarted     = errors.New("session: sweeper not started")
)

// SweeperConfig holds sweep tuning.
type SweeperConfig struct {
	// Interval between sweep passes. Default 5m.
	Interval time.Duration `yaml:"interval"`

	Logger *slog.Logger `yaml:"-"`
}

func (c SweeperConfig) withDefaults() SweeperConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Sweeper runs a dedicated goroutine that periodically evicts expired
// sessions and cleans up their lanes. It is advisory: GetOrCreate remains
// the authoritative expiry check, so a stalled sweeper only costs memory,
// never correctness.
type Sweeper struct {
	cfg   SweeperConfig
	store *Store
	lanes *LaneLock

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSweeper creates a Sweeper for the given store. lanes may be nil when
// no per-key serialization is in use.
func NewSweeper(cfg SweeperConfig, store *Store, lanes *LaneLock) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("session: nil store")
	}
	return &Sweeper{
		cfg:   cfg.withDefaults(),
		store: store,
		lanes: lanes,
	}, nil
}

// Start begins the sweep loop. Returns ErrAlreadyStarted if called twice.
func (w *Sweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, w.cancel = context.WithCancel(ctx)
	go w.run(ctx)
	return nil
}

// Stop gracefully stops the sweep loop. Returns ErrNotStarted if not
// running.
func (w *Sweeper) Stop(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return ErrNotStarted
	}

	w.cancel()
	w.cancel = nil
	return nil
}

func (w *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep performs one eviction pass and returns the number of sessions
// removed. Keys whose lane is currently held are skipped rather than
// raced; an in-flight request refreshes its session anyway, and a truly
// abandoned key is caught on a later pass.
func (w *Sweeper) Sweep() int {
	evicted := 0
	for _, key := range w.store.ExpiredKeys() {
		if w.lanes == nil {
			if w.store.EvictIfExpired(key) {
				evicted++
			}
			continue
		}
		if !w.lanes.TryAcquire(key) {
			continue
		}
		if w.store.EvictIfExpired(key) {
			evicted++
		}
		w.lanes.Release(key)
	}

	if w.lanes != nil {
		w.lanes.Cleanup(w.store.ActiveKeys())
	}

	if evicted > 0 {
		w.cfg.Logger.Debug("session sweep evicted sessions", "count", evicted)
	}
	return evicted
}
