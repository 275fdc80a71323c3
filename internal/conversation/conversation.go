// Package conversation defines the durable conversation model: the
// Conversation record with its lifecycle counters and backend-mode state,
// the append-only Message log, per-user Preferences, and the Repository
// contract the persistence modules implement.
package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/compliance"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("conversation: not found")

// Conversation is the durable record of one ongoing exchange scope. It is
// created lazily on first message, mutated on every turn, and archived
// (soft-ended) rather than deleted.
type Conversation struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`

	// Category names the profile this conversation runs under. AgeGated
	// is derived from it at creation; restricted categories always gate.
	Category string `json:"category"`
	AgeGated bool   `json:"age_gated"`

	// Mode and ThreadID persist the backend selector's state machine.
	// Once Mode records chat after a thread failure, it never reverts.
	Mode     backend.Mode `json:"mode"`
	ThreadID string       `json:"thread_id,omitempty"`

	MessageCount int   `json:"message_count"`
	TokenTotal   int   `json:"token_total"`
	CostTotal    int64 `json:"cost_total"`

	StartedAt      time.Time  `json:"started_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// Active reports whether the conversation has not been archived.
func (c *Conversation) Active() bool {
	return c.EndedAt == nil
}

// ModeState extracts the backend selector state.
func (c *Conversation) ModeState() backend.ModeState {
	return backend.ModeState{Mode: c.Mode, ThreadID: c.ThreadID}
}

// SetModeState writes the backend selector state back onto the record.
func (c *Conversation) SetModeState(st backend.ModeState) {
	c.Mode = st.Mode
	c.ThreadID = st.ThreadID
}

// Message is one durable turn. Created once, immutable thereafter.
type Message struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversation_id"`
	Role           backend.MessageRole `json:"role"`
	Content        string              `json:"content"`

	// Restricted records the inbound classification verdict; Filtered and
	// FilterIssues record the outbound filtering outcome.
	Restricted   bool     `json:"restricted,omitempty"`
	Filtered     bool     `json:"filtered,omitempty"`
	FilterIssues []string `json:"filter_issues,omitempty"`

	TokenCount int    `json:"token_count,omitempty"`
	Backend    string `json:"backend,omitempty"`
	Model      string `json:"model,omitempty"`
	Cost       int64  `json:"cost,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Preferences are per (user, guild) settings. Created on first use with
// defaults, mutated only by explicit user action, reset rather than
// deleted.
type Preferences struct {
	UserID  string `json:"user_id"`
	GuildID string `json:"guild_id"`

	// RestrictedOptIn enables assistance in restricted categories (the
	// age-gate still applies on top).
	RestrictedOptIn bool `json:"restricted_opt_in"`

	// ResponseStyle hints the persona; MaxResponseTokens bounds reply
	// length.
	ResponseStyle     string `json:"response_style"`
	MaxResponseTokens int    `json:"max_response_tokens"`

	// Strictness selects how soft compliance findings are handled.
	Strictness compliance.Strictness `json:"strictness"`

	// HistoryOptIn controls durable message logging. When false, turns
	// stay in the in-memory session only.
	HistoryOptIn bool `json:"history_opt_in"`

	// APIKey is the bring-your-own-key credential; non-empty selects
	// self-pay billing. VIP marks sponsored users.
	APIKey string `json:"api_key,omitempty"`
	VIP    bool   `json:"vip,omitempty"`

	// AgeVerified is set by the out-of-band verification flow.
	AgeVerified bool `json:"age_verified"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultPreferences returns the settings a user starts with.
func DefaultPreferences(userID, guildID string) *Preferences {
	return &Preferences{
		UserID:            userID,
		GuildID:           guildID,
		ResponseStyle:     "balanced",
		MaxResponseTokens: 1024,
		Strictness:        compliance.StrictnessStandard,
		HistoryOptIn:      true,
	}
}

// Repository is the persistence contract. Implementations provide their
// own atomicity; the orchestrator treats writes as best-effort and never
// blocks a generated response on them.
type Repository interface {
	// ActiveConversation returns the non-archived conversation for a
	// (user, channel) pair, or (nil, nil) when none exists.
	ActiveConversation(ctx context.Context, userID, channelID string) (*Conversation, error)

	// UpsertConversation inserts or updates a conversation record.
	UpsertConversation(ctx context.Context, conv *Conversation) error

	// SaveMessage appends one immutable message record.
	SaveMessage(ctx context.Context, msg *Message) error

	// RecentMessages returns up to limit messages for a conversation,
	// oldest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	// GetOrCreatePreferences returns the preferences for a (user, guild)
	// pair, creating defaults on first use.
	GetOrCreatePreferences(ctx context.Context, userID, guildID string) (*Preferences, error)

	// SavePreferences persists an explicit preference change.
	SavePreferences(ctx context.Context, prefs *Preferences) error
}
