package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parleyhq/parley/internal/backend"
	"github.com/parleyhq/parley/internal/compliance"
	"github.com/parleyhq/parley/internal/conversation"
)

// ActiveConversation implements conversation.Repository. Returns
// (nil, nil) when no active conversation exists.
func (m *Module) ActiveConversation(ctx context.Context, userID, channelID string) (*conversation.Conversation, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, guild_id, channel_id, category, age_gated,
		       mode, thread_id, message_count, token_total, cost_total,
		       started_at, last_activity_at, ended_at
		FROM conversations
		WHERE user_id = ? AND channel_id = ? AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1`,
		userID, channelID,
	)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: active conversation: %w", err)
	}
	return conv, nil
}

// UpsertConversation implements conversation.Repository.
func (m *Module) UpsertConversation(ctx context.Context, conv *conversation.Conversation) error {
	var endedAt any
	if conv.EndedAt != nil {
		endedAt = fmtTime(*conv.EndedAt)
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO conversations
			(id, user_id, guild_id, channel_id, category, age_gated,
			 mode, thread_id, message_count, token_total, cost_total,
			 started_at, last_activity_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.GuildID, conv.ChannelID,
		conv.Category, conv.AgeGated,
		string(conv.Mode), conv.ThreadID,
		conv.MessageCount, conv.TokenTotal, conv.CostTotal,
		fmtTime(conv.StartedAt), fmtTime(conv.LastActivityAt), endedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert conversation: %w", err)
	}
	return nil
}

// SaveMessage implements conversation.Repository.
func (m *Module) SaveMessage(ctx context.Context, msg *conversation.Message) error {
	issuesJSON, err := json.Marshal(msg.FilterIssues)
	if err != nil {
		return fmt.Errorf("sqlite: marshal filter issues: %w", err)
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO messages
			(id, conversation_id, role, content, restricted, filtered,
			 filter_issues, token_count, backend, model, cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content,
		msg.Restricted, msg.Filtered, string(issuesJSON),
		msg.TokenCount, msg.Backend, msg.Model, msg.Cost,
		fmtTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save message: %w", err)
	}
	return nil
}

// RecentMessages implements conversation.Repository. Messages come back
// oldest first.
func (m *Module) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*conversation.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, restricted, filtered,
		       filter_issues, token_count, backend, model, cost, created_at
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, id ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []*conversation.Message
	for rows.Next() {
		var (
			msg        conversation.Message
			role       string
			issuesJSON string
			createdAt  string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content,
			&msg.Restricted, &msg.Filtered, &issuesJSON,
			&msg.TokenCount, &msg.Backend, &msg.Model, &msg.Cost, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		msg.Role = backend.MessageRole(role)
		if issuesJSON != "" && issuesJSON != "[]" && issuesJSON != "null" {
			if err := json.Unmarshal([]byte(issuesJSON), &msg.FilterIssues); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal filter issues: %w", err)
			}
		}
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan message rows: %w", err)
	}
	return msgs, nil
}

// GetOrCreatePreferences implements conversation.Repository.
func (m *Module) GetOrCreatePreferences(ctx context.Context, userID, guildID string) (*conversation.Preferences, error) {
	prefs, err := m.getPreferences(ctx, userID, guildID)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: get preferences: %w", err)
	}

	prefs = conversation.DefaultPreferences(userID, guildID)
	prefs.UpdatedAt = time.Now().UTC()
	if err := m.SavePreferences(ctx, prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// SavePreferences implements conversation.Repository.
func (m *Module) SavePreferences(ctx context.Context, prefs *conversation.Preferences) error {
	updatedAt := prefs.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO preferences
			(user_id, guild_id, restricted_opt_in, response_style,
			 max_response_tokens, strictness, history_opt_in, api_key,
			 vip, age_verified, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		prefs.UserID, prefs.GuildID, prefs.RestrictedOptIn, prefs.ResponseStyle,
		prefs.MaxResponseTokens, string(prefs.Strictness), prefs.HistoryOptIn,
		prefs.APIKey, prefs.VIP, prefs.AgeVerified, fmtTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save preferences: %w", err)
	}
	return nil
}

// Verified implements verify.VerificationStore from the preferences
// record. A missing record means not verified.
func (m *Module) Verified(ctx context.Context, userID, guildID string) (bool, error) {
	var verified bool
	err := m.db.QueryRowContext(ctx,
		"SELECT age_verified FROM preferences WHERE user_id = ? AND guild_id = ?",
		userID, guildID,
	).Scan(&verified)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: verified lookup: %w", err)
	}
	return verified, nil
}

func (m *Module) getPreferences(ctx context.Context, userID, guildID string) (*conversation.Preferences, error) {
	var (
		prefs      conversation.Preferences
		strictness string
		updatedAt  string
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT user_id, guild_id, restricted_opt_in, response_style,
		       max_response_tokens, strictness, history_opt_in, api_key,
		       vip, age_verified, updated_at
		FROM preferences
		WHERE user_id = ? AND guild_id = ?`,
		userID, guildID,
	).Scan(&prefs.UserID, &prefs.GuildID, &prefs.RestrictedOptIn, &prefs.ResponseStyle,
		&prefs.MaxResponseTokens, &strictness, &prefs.HistoryOptIn, &prefs.APIKey,
		&prefs.VIP, &prefs.AgeVerified, &updatedAt)
	if err != nil {
		return nil, err
	}
	prefs.Strictness = compliance.Strictness(strictness)
	if prefs.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &prefs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*conversation.Conversation, error) {
	var (
		conv           conversation.Conversation
		mode           string
		startedAt      string
		lastActivityAt string
		endedAt        sql.NullString
	)
	err := row.Scan(&conv.ID, &conv.UserID, &conv.GuildID, &conv.ChannelID,
		&conv.Category, &conv.AgeGated, &mode, &conv.ThreadID,
		&conv.MessageCount, &conv.TokenTotal, &conv.CostTotal,
		&startedAt, &lastActivityAt, &endedAt)
	if err != nil {
		return nil, err
	}

	conv.Mode = backend.Mode(mode)
	if conv.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if conv.LastActivityAt, err = parseTime(lastActivityAt); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t, err := parseTime(endedAt.String)
		if err != nil {
			return nil, err
		}
		conv.EndedAt = &t
	}
	return &conv, nil
}
