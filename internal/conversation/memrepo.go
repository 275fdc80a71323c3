package conversation

import (
	"context"
	"sync"
	"time"
)

type prefsKey struct {
	userID  string
	guildID string
}

// MemoryRepository is a concurrency-safe in-memory Repository for
// standalone deployments and tests.
type MemoryRepository struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]*Message
	preferences   map[prefsKey]*Preferences
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		preferences:   make(map[prefsKey]*Preferences),
	}
}

// Compile-time interface check.
var _ Repository = (*MemoryRepository)(nil)

// ActiveConversation returns the non-archived conversation for a
// (user, channel) pair, or nil when none exists.
func (r *MemoryRepository) ActiveConversation(_ context.Context, userID, channelID string) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conv := range r.conversations {
		if conv.UserID == userID && conv.ChannelID == channelID && conv.Active() {
			copied := *conv
			return &copied, nil
		}
	}
	return nil, nil
}

// UpsertConversation stores a copy of the record.
func (r *MemoryRepository) UpsertConversation(_ context.Context, conv *Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *conv
	r.conversations[conv.ID] = &copied
	return nil
}

// Conversation returns a conversation by ID.
func (r *MemoryRepository) Conversation(_ context.Context, id string) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *conv
	return &copied, nil
}

// SaveMessage appends a message to its conversation's log.
func (r *MemoryRepository) SaveMessage(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *msg
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], &copied)
	return nil
}

// RecentMessages returns up to limit messages, oldest first.
func (r *MemoryRepository) RecentMessages(_ context.Context, conversationID string, limit int) ([]*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msgs := r.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		copied := *m
		out[i] = &copied
	}
	return out, nil
}

// GetOrCreatePreferences returns stored preferences, creating defaults on
// first use.
func (r *MemoryRepository) GetOrCreatePreferences(_ context.Context, userID, guildID string) (*Preferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := prefsKey{userID, guildID}
	if prefs, ok := r.preferences[key]; ok {
		copied := *prefs
		return &copied, nil
	}

	prefs := DefaultPreferences(userID, guildID)
	prefs.UpdatedAt = time.Now()
	r.preferences[key] = prefs

	copied := *prefs
	return &copied, nil
}

// SavePreferences stores a copy of the preferences.
func (r *MemoryRepository) SavePreferences(_ context.Context, prefs *Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *prefs
	copied.UpdatedAt = time.Now()
	r.preferences[prefsKey{prefs.UserID, prefs.GuildID}] = &copied
	return nil
}
