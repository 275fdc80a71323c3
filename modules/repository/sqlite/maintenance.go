package sqlite

import (
	"context"
	"fmt"
	"time"
)

// ArchiveIdle soft-ends every active conversation whose last activity is
// older than before, and returns how many were archived. Used by the
// scheduled archive job.
func (m *Module) ArchiveIdle(ctx context.Context, before time.Time) (int, error) {
	res, err := m.db.ExecContext(ctx,
		"UPDATE conversations SET ended_at = ? WHERE ended_at IS NULL AND last_activity_at < ?",
		fmtTime(time.Now()), fmtTime(before),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: archive idle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: archive idle rows: %w", err)
	}
	return int(n), nil
}

// RollupUsage aggregates per-user message counts, tokens, and cost for
// one UTC day into usage_rollups, and returns how many rollup rows were
// written. Re-running a day replaces its rows, so the job is idempotent.
func (m *Module) RollupUsage(ctx context.Context, day time.Time) (int, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)
	dayKey := start.Format("2006-01-02")

	res, err := m.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO usage_rollups (day, user_id, guild_id, messages, tokens, cost)
		SELECT ?, c.user_id, c.guild_id,
		       COUNT(*), COALESCE(SUM(m.token_count), 0), COALESCE(SUM(m.cost), 0)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.created_at >= ? AND m.created_at < ?
		GROUP BY c.user_id, c.guild_id`,
		dayKey, fmtTime(start), fmtTime(end),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: rollup usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rollup rows: %w", err)
	}
	return int(n), nil
}

// UsageForDay reads one day's rollup for a (user, guild) pair. Used by
// reporting surfaces and tests.
func (m *Module) UsageForDay(ctx context.Context, day time.Time, userID, guildID string) (messages, tokens int, cost int64, err error) {
	dayKey := day.UTC().Truncate(24 * time.Hour).Format("2006-01-02")
	err = m.db.QueryRowContext(ctx, `
		SELECT messages, tokens, cost FROM usage_rollups
		WHERE day = ? AND user_id = ? AND guild_id = ?`,
		dayKey, userID, guildID,
	).Scan(&messages, &tokens, &cost)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("sqlite: usage for day: %w", err)
	}
	return messages, tokens, cost, nil
}
