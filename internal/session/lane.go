package session

import "sync"

// LaneLock provides per-key serialization. Two concurrent requests from
// the same user in the same channel are processed one at a time, so turn
// ordering and compaction stay linearizable per key, while requests for
// different keys proceed in parallel.
//
// A global mutex protects the lane map and is held only briefly; each
// lane carries its own mutex for the actual serialization.
type LaneLock struct {
	mu    sync.Mutex
	lanes map[Key]*lane
}

// lane stores per-key synchronization metadata. refs counts goroutines
// that acquired (or are waiting on) the lane; stale marks lanes eligible
// for cleanup once refs drops to zero.
type lane struct {
	mu    sync.Mutex
	refs  int
	stale bool
}

// NewLaneLock creates a ready-to-use LaneLock.
func NewLaneLock() *LaneLock {
	return &LaneLock{
		lanes: make(map[Key]*lane),
	}
}

// Acquire gets or creates the per-key mutex and locks it, blocking until
// the lane is free. The caller must call Release with the same key.
func (l *LaneLock) Acquire(key Key) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{}
		l.lanes[key] = ln
	}
	ln.refs++
	ln.stale = false
	l.mu.Unlock()

	// Lock outside the global mutex so other keys are not blocked.
	ln.mu.Lock()
}

// TryAcquire locks the per-key mutex only if it is immediately free.
// Returns false without blocking when the lane is held. The sweeper uses
// this to skip keys with a request in flight.
func (l *LaneLock) TryAcquire(key Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{}
		l.lanes[key] = ln
	}
	if !ln.mu.TryLock() {
		return false
	}
	ln.refs++
	ln.stale = false
	return true
}

// Release unlocks the per-key mutex. The caller must have previously
// acquired the same key.
func (l *LaneLock) Release(key Key) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		l.mu.Unlock()
		return
	}
	ln.refs--
	if ln.refs == 0 && ln.stale {
		delete(l.lanes, key)
	}
	l.mu.Unlock()

	ln.mu.Unlock()
}

// Cleanup removes lane entries whose keys are no longer live, preventing
// unbounded growth of the lane map. activeKeys should hold the keys of
// currently stored sessions.
func (l *LaneLock) Cleanup(activeKeys map[Key]struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, ln := range l.lanes {
		if _, active := activeKeys[key]; !active {
			ln.stale = true
			if ln.refs == 0 {
				delete(l.lanes, key)
			}
			continue
		}
		ln.stale = false
	}
}
