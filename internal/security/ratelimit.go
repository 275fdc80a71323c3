package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig holds configurable rate limits.
type RateLimitConfig struct {
	// PerUserPerMin caps how many messages a single user may send per
	// minute. Zero or negative selects the default.
	PerUserPerMin int `yaml:"per_user_per_min"`

	// GlobalPerMin caps messages across all users per minute.
	// Zero means unlimited.
	GlobalPerMin int `yaml:"global_per_min"`
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.PerUserPerMin <= 0 {
		c.PerUserPerMin = 20
	}
	return c
}

// RateLimiter implements per-user sliding window rate limiting.
// Each window tracks timestamps of recent events; a request is allowed
// only when both the user's window and the global window have room.
type RateLimiter struct {
	mu     sync.Mutex
	users  map[string]*window
	global *window
	config RateLimitConfig
	now    func() time.Time
}

type window struct {
	span   time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
// Zero-value fields in cfg are replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg = cfg.withDefaults()
	rl := &RateLimiter{
		users:  make(map[string]*window),
		config: cfg,
		now:    time.Now,
	}
	if cfg.GlobalPerMin > 0 {
		rl.global = &window{span: time.Minute, limit: cfg.GlobalPerMin}
	}
	return rl
}

// Allow records one message for userID if both the user and global
// windows have room. Returns nil if allowed, ErrRateLimited otherwise.
// A rejected request is not recorded against either window.
func (rl *RateLimiter) Allow(userID string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if rl.global != nil {
		rl.global.evict(now)
		if len(rl.global.events) >= rl.global.limit {
			return ErrRateLimited
		}
	}

	w, ok := rl.users[userID]
	if !ok {
		w = &window{span: time.Minute, limit: rl.config.PerUserPerMin}
		rl.users[userID] = w
	}
	w.evict(now)
	if len(w.events) >= w.limit {
		return ErrRateLimited
	}

	w.events = append(w.events, now)
	if rl.global != nil {
		rl.global.events = append(rl.global.events, now)
	}
	return nil
}

// RetryAfter reports how long userID must wait before the next message
// is admitted. Zero means a message would be admitted now.
func (rl *RateLimiter) RetryAfter(userID string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.users[userID]
	if !ok {
		return 0
	}
	w.evict(now)
	if len(w.events) < w.limit {
		return 0
	}
	return w.events[0].Add(w.span).Sub(now)
}

// Cleanup drops user windows with no events inside their span and
// returns how many were removed. Intended for a periodic sweep.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for id, w := range rl.users {
		w.evict(now)
		if len(w.events) == 0 {
			delete(rl.users, id)
			removed++
		}
	}
	return removed
}

// TrackedUsers returns the number of users with a live window.
func (rl *RateLimiter) TrackedUsers() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.users)
}

// evict removes events outside the sliding window.
func (w *window) evict(now time.Time) {
	cutoff := now.Add(-w.span)
	// Events are chronologically ordered; find the first one still inside.
	i := 0
	for i < len(w.events) && w.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.events = w.events[i:]
	}
}
