package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memorySink collects events for assertions.
type memorySink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *memorySink) Record(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *memorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// blockingSink stalls deliveries until released so tests can fill the
// queue deterministically.
type blockingSink struct {
	memorySink
	started     chan struct{}
	release     chan struct{}
	startedOnce sync.Once
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *blockingSink) Record(ctx context.Context, ev Event) error {
	s.startedOnce.Do(func() { close(s.started) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.memorySink.Record(ctx, ev)
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	t.Parallel()

	sink := &memorySink{}
	d, err := NewDispatcher(DispatcherConfig{}, sink)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	users := []string{"u1", "u2", "u3"}
	for _, u := range users {
		if !d.Publish(Event{Type: EventMessageHandled, UserID: u}) {
			t.Fatalf("Publish(%s) was dropped", u)
		}
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	got := sink.Events()
	if len(got) != len(users) {
		t.Fatalf("delivered %d events, want %d", len(got), len(users))
	}
	for i, u := range users {
		if got[i].UserID != u {
			t.Errorf("event %d UserID = %q, want %q", i, got[i].UserID, u)
		}
	}
	if n := d.Dropped(); n != 0 {
		t.Errorf("Dropped() = %d, want 0", n)
	}
}

func TestDispatcher_FanOutContinuesPastFailingSink(t *testing.T) {
	t.Parallel()

	bad := &memorySink{err: errors.New("sink down")}
	good := &memorySink{}
	d, err := NewDispatcher(DispatcherConfig{}, bad, good)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	d.Publish(Event{Type: EventBillingSettled, UserID: "u1"})
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := good.Events(); len(got) != 1 || got[0].UserID != "u1" {
		t.Errorf("second sink events = %+v, want the published event", got)
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	t.Parallel()

	sink := newBlockingSink()
	d, err := NewDispatcher(DispatcherConfig{QueueSize: 1}, sink)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !d.Publish(Event{Type: EventMessageHandled, UserID: "a"}) {
		t.Fatal("first publish was dropped")
	}
	<-sink.started // worker is mid-delivery, queue is empty again

	if !d.Publish(Event{Type: EventMessageHandled, UserID: "b"}) {
		t.Fatal("second publish was dropped")
	}
	if d.Publish(Event{Type: EventMessageHandled, UserID: "c"}) {
		t.Fatal("third publish was accepted with a full queue")
	}
	if n := d.Dropped(); n != 1 {
		t.Errorf("Dropped() = %d, want 1", n)
	}

	close(sink.release)
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	got := sink.Events()
	if len(got) != 2 || got[0].UserID != "a" || got[1].UserID != "b" {
		t.Errorf("delivered = %+v, want a then b", got)
	}
}

func TestDispatcher_DropsWhenStopped(t *testing.T) {
	t.Parallel()

	sink := &memorySink{}
	d, err := NewDispatcher(DispatcherConfig{}, sink)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	if d.Publish(Event{Type: EventMessageHandled}) {
		t.Error("Publish before Start was accepted")
	}
	if n := d.Dropped(); n != 1 {
		t.Errorf("Dropped() = %d, want 1", n)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if d.Publish(Event{Type: EventMessageHandled}) {
		t.Error("Publish after Stop was accepted")
	}
}

func TestDispatcher_StartStop(t *testing.T) {
	t.Parallel()

	d, err := NewDispatcher(DispatcherConfig{}, &memorySink{})
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	if err := d.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop() before Start error = %v, want ErrNotStarted", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := d.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// A stopped dispatcher can be started again.
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() after restart error = %v", err)
	}
}

func TestDispatcher_NilSafe(t *testing.T) {
	t.Parallel()

	var d *Dispatcher
	if d.Publish(Event{Type: EventMessageHandled}) {
		t.Error("nil dispatcher accepted an event")
	}
	if n := d.Dropped(); n != 0 {
		t.Errorf("nil Dropped() = %d, want 0", n)
	}
}

func TestDispatcher_TimestampBackfill(t *testing.T) {
	t.Parallel()

	sink := &memorySink{}
	d, err := NewDispatcher(DispatcherConfig{}, sink)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	d.Publish(Event{Type: EventMessageHandled})
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	got := sink.Events()
	if len(got) != 1 {
		t.Fatalf("delivered %d events, want 1", len(got))
	}
	if !got[0].Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", got[0].Timestamp, fixed)
	}
}

func TestNewDispatcher_RequiresSink(t *testing.T) {
	t.Parallel()

	if _, err := NewDispatcher(DispatcherConfig{}); err == nil {
		t.Fatal("NewDispatcher() without sinks did not return an error")
	}
}
