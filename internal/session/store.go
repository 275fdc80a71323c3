package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/internal/backend"
)

// Config holds the session lifecycle knobs.
type Config struct {
	// Timeout is the idle duration after which a session is considered
	// expired. Default 30m.
	Timeout time.Duration `yaml:"timeout"`

	// MaxTurns is the turn count that triggers compaction. Default 40.
	MaxTurns int `yaml:"max_turns"`

	// TrailingWindow is the number of recent turns kept by compaction.
	// Must be smaller than MaxTurns. Default 10.
	TrailingWindow int `yaml:"trailing_window"`
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Minute
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = 40
	}
	if c.TrailingWindow <= 0 {
		c.TrailingWindow = 10
	}
	if c.TrailingWindow >= c.MaxTurns {
		c.TrailingWindow = c.MaxTurns - 1
		if c.TrailingWindow < 1 {
			c.TrailingWindow = 1
		}
	}
	return c
}

// Store is a concurrency-safe, in-memory session store. Expiry is checked
// at access time in GetOrCreate; the background sweep is advisory cleanup
// only and nothing depends on it having run. The `now` function is
// injectable for deterministic testing.
type Store struct {
	mu       sync.RWMutex
	sessions map[Key]*Session

	cfg Config
	now func() time.Time
}

// NewStore creates a ready-to-use session store.
func NewStore(cfg Config) *Store {
	return &Store{
		sessions: make(map[Key]*Session),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// Config returns the effective configuration after defaults.
func (s *Store) Config() Config {
	return s.cfg
}

// GetOrCreate returns the live session for the key, creating one when none
// exists. A session whose idle time exceeds the timeout is never returned:
// it is replaced with a fresh empty session under the same key. The bool
// return is true when the returned session is new.
func (s *Store) GetOrCreate(key Key) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sess, ok := s.sessions[key]; ok {
		if now.Sub(sess.LastActiveAt) <= s.cfg.Timeout {
			return sess, false
		}
		// Expired: fall through and replace.
	}

	sess := &Session{
		ID:           uuid.NewString(),
		Key:          key,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	s.sessions[key] = sess
	return sess, true
}

// Get returns the session for the given key, or nil if none exists. No
// expiry check is applied; use GetOrCreate on request paths.
func (s *Store) Get(key Key) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[key]
}

// History returns a copy of the session's turns, oldest first. Returns nil
// if the session does not exist.
func (s *Store) History(key Key) []backend.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok || len(sess.Turns) == 0 {
		return nil
	}
	out := make([]backend.Message, len(sess.Turns))
	copy(out, sess.Turns)
	return out
}

// Append adds turns to the session and refreshes its activity timestamp.
// When the turn count reaches MaxTurns the list is compacted to the last
// TrailingWindow turns, bounding memory and token cost per session without
// ending the durable conversation. Returns the turn count after the
// append, or 0 if the session does not exist.
func (s *Store) Append(key Key, msgs ...backend.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return 0
	}

	sess.Turns = append(sess.Turns, msgs...)
	sess.LastActiveAt = s.now()

	if len(sess.Turns) >= s.cfg.MaxTurns {
		kept := make([]backend.Message, s.cfg.TrailingWindow)
		copy(kept, sess.Turns[len(sess.Turns)-s.cfg.TrailingWindow:])
		sess.Turns = kept
	}
	return len(sess.Turns)
}

// Touch updates the session's activity timestamp. No-op if the session
// does not exist.
func (s *Store) Touch(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		sess.LastActiveAt = s.now()
	}
}

// TTL returns the time remaining before the session expires, or zero if
// the session does not exist or has already expired.
func (s *Store) TTL(key Key) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return 0
	}
	remaining := s.cfg.Timeout - s.now().Sub(sess.LastActiveAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Delete removes the session for the given key.
func (s *Store) Delete(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

// ExpiredKeys returns a snapshot of keys whose idle time exceeds the
// timeout.
func (s *Store) ExpiredKeys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var keys []Key
	for key, sess := range s.sessions {
		if now.Sub(sess.LastActiveAt) > s.cfg.Timeout {
			keys = append(keys, key)
		}
	}
	return keys
}

// EvictIfExpired removes the session only if it is still expired at the
// time of the call, so a concurrent GetOrCreate that just refreshed the
// key is never clobbered. Returns true when a session was removed.
func (s *Store) EvictIfExpired(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return false
	}
	if s.now().Sub(sess.LastActiveAt) <= s.cfg.Timeout {
		return false
	}
	delete(s.sessions, key)
	return true
}

// EvictExpired removes all expired sessions and returns the number
// removed. The sweeper prefers the per-key path so it can skip keys with
// requests in flight; this bulk form is for direct callers.
func (s *Store) EvictExpired() int {
	evicted := 0
	for _, key := range s.ExpiredKeys() {
		if s.EvictIfExpired(key) {
			evicted++
		}
	}
	return evicted
}

// Len returns the number of stored sessions, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Range calls fn for each session. Iteration stops when fn returns false.
// The lock is held for the entire iteration, keep fn fast.
func (s *Store) Range(fn func(Key, *Session) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, sess := range s.sessions {
		if !fn(key, sess) {
			return
		}
	}
}

// ActiveKeys returns a snapshot of currently stored session keys.
func (s *Store) ActiveKeys() map[Key]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[Key]struct{}, len(s.sessions))
	for key := range s.sessions {
		keys[key] = struct{}{}
	}
	return keys
}
