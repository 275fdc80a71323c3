// Package session provides the in-memory working set for active
// conversations: a concurrency-safe store of recent turns keyed by
// (user, channel), per-key lane locks for request serialization, and a
// background sweeper that evicts abandoned sessions.
//
// Sessions are ephemeral. The durable conversation log lives in the
// repository; losing a session only loses prompt context, never data.
package session

import (
	"time"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/pkg/chat"
)

// Key is the composite key for O(1) session lookups. One session exists
// per (user, channel) pair.
type Key struct {
	UserID    string
	ChannelID string
}

// KeyFromRequest derives a Key from an inbound chat request.
func KeyFromRequest(req *chat.Request) Key {
	return Key{
		UserID:    req.UserID,
		ChannelID: req.ChannelID,
	}
}

// Session is the ephemeral working set for one (user, channel) pair: the
// recent role-tagged turns plus activity timestamps. Owned exclusively by
// the Store; callers must not retain Turns across store operations.
type Session struct {
	ID           string
	Key          Key
	CreatedAt    time.Time
	LastActiveAt time.Time
	Turns        []backend.Message
}

// TurnCount returns the number of turns currently held.
func (s *Session) TurnCount() int {
	if s == nil {
		return 0
	}
	return len(s.Turns)
}
