package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/category"
)

// ManagerConfig holds conversation lifecycle knobs.
type ManagerConfig struct {
	// IdleTimeout archives a conversation whose last activity is older
	// than this; the next message starts a fresh one. Default 6h.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// MaxMessages and MaxTokens are the hard caps that rotate a
	// conversation. Defaults 500 and 200000.
	MaxMessages int `yaml:"max_messages"`
	MaxTokens   int `yaml:"max_tokens"`
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 6 * time.Hour
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = 500
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 200000
	}
	return c
}

// Manager owns conversation lifecycle: lazy creation, rotation on idle
// timeout, hard caps or category change, counter updates, and archival.
// The `now` function is injectable for deterministic testing.
type Manager struct {
	repo Repository
	cfg  ManagerConfig
	now  func() time.Time
}

// NewManager creates a Manager over the given repository.
func NewManager(repo Repository, cfg ManagerConfig) (*Manager, error) {
	if repo == nil {
		return nil, fmt.Errorf("conversation: nil repository")
	}
	return &Manager{
		repo: repo,
		cfg:  cfg.withDefaults(),
		now:  time.Now,
	}, nil
}

// GetOrCreate returns the active conversation for a (user, channel) pair,
// archiving and replacing it when it has idled out, hit a hard cap, or the
// requested category changed. The bool return is true when a new
// conversation was created.
func (m *Manager) GetOrCreate(ctx context.Context, userID, guildID, channelID string, profile category.Profile) (*Conversation, bool, error) {
	conv, err := m.repo.ActiveConversation(ctx, userID, channelID)
	if err != nil {
		return nil, false, fmt.Errorf("conversation: load active: %w", err)
	}

	if conv != nil && m.shouldRotate(conv, profile) {
		if err := m.End(ctx, conv); err != nil {
			return nil, false, err
		}
		conv = nil
	}
	if conv != nil {
		return conv, false, nil
	}

	now := m.now()
	conv = &Conversation{
		ID:             uuid.NewString(),
		UserID:         userID,
		GuildID:        guildID,
		ChannelID:      channelID,
		Category:       profile.Name,
		AgeGated:       profile.AgeGated,
		StartedAt:      now,
		LastActivityAt: now,
	}
	if err := m.repo.UpsertConversation(ctx, conv); err != nil {
		return nil, false, fmt.Errorf("conversation: create: %w", err)
	}
	return conv, true, nil
}

// shouldRotate decides whether an active conversation must be archived
// before serving the next message.
func (m *Manager) shouldRotate(conv *Conversation, profile category.Profile) bool {
	if m.now().Sub(conv.LastActivityAt) > m.cfg.IdleTimeout {
		return true
	}
	if conv.MessageCount >= m.cfg.MaxMessages || conv.TokenTotal >= m.cfg.MaxTokens {
		return true
	}
	// A category switch is a new exchange scope with its own gate.
	return conv.Category != profile.Name
}

// RecordExchange updates counters, activity, and backend-mode state after
// a completed exchange and persists the record.
func (m *Manager) RecordExchange(ctx context.Context, conv *Conversation, tokens int, cost int64, st backend.ModeState) error {
	conv.MessageCount += 2
	conv.TokenTotal += tokens
	conv.CostTotal += cost
	conv.LastActivityAt = m.now()
	conv.SetModeState(st)

	if err := m.repo.UpsertConversation(ctx, conv); err != nil {
		return fmt.Errorf("conversation: record exchange: %w", err)
	}
	return nil
}

// SaveMode persists a backend-mode transition on its own. The selector's
// downgrade must survive even when the exchange itself failed, so the
// next message skips thread mode.
func (m *Manager) SaveMode(ctx context.Context, conv *Conversation, st backend.ModeState) error {
	if conv.ModeState() == st {
		return nil
	}
	conv.SetModeState(st)
	if err := m.repo.UpsertConversation(ctx, conv); err != nil {
		return fmt.Errorf("conversation: save mode: %w", err)
	}
	return nil
}

// End archives a conversation (soft end). Already-ended conversations are
// left untouched.
func (m *Manager) End(ctx context.Context, conv *Conversation) error {
	if !conv.Active() {
		return nil
	}
	now := m.now()
	conv.EndedAt = &now
	if err := m.repo.UpsertConversation(ctx, conv); err != nil {
		return fmt.Errorf("conversation: end: %w", err)
	}
	return nil
}

// EndActive archives the active conversation for a (user, channel) pair,
// if any. Returns the archived conversation or nil.
func (m *Manager) EndActive(ctx context.Context, userID, channelID string) (*Conversation, error) {
	conv, err := m.repo.ActiveConversation(ctx, userID, channelID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load active: %w", err)
	}
	if conv == nil {
		return nil, nil
	}
	if err := m.End(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}
