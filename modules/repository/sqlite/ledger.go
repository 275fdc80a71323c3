package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Balance implements billing.Ledger. A missing row reads as zero.
func (m *Module) Balance(ctx context.Context, userID, guildID string) (int64, error) {
	var balance int64
	err := m.db.QueryRowContext(ctx,
		"SELECT balance FROM ledger WHERE user_id = ? AND guild_id = ?",
		userID, guildID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: balance: %w", err)
	}
	return balance, nil
}

// Deduct implements billing.Ledger: atomic decrement-with-floor inside
// one transaction. Returns the amount actually removed.
func (m *Module) Deduct(ctx context.Context, userID, guildID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin deduct: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	err = tx.QueryRowContext(ctx,
		"SELECT balance FROM ledger WHERE user_id = ? AND guild_id = ?",
		userID, guildID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		balance = 0
	} else if err != nil {
		return 0, fmt.Errorf("sqlite: deduct read: %w", err)
	}

	deducted := amount
	if deducted > balance {
		deducted = balance
	}
	if deducted > 0 {
		if _, err := tx.ExecContext(ctx,
			"UPDATE ledger SET balance = balance - ? WHERE user_id = ? AND guild_id = ?",
			deducted, userID, guildID,
		); err != nil {
			return 0, fmt.Errorf("sqlite: deduct write: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: deduct commit: %w", err)
	}
	return deducted, nil
}

// Credit implements billing.Ledger. Negative amounts are ignored.
func (m *Module) Credit(ctx context.Context, userID, guildID string, amount int64) (int64, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin credit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if amount > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger (user_id, guild_id, balance) VALUES (?, ?, ?)
			ON CONFLICT(user_id, guild_id) DO UPDATE SET balance = balance + excluded.balance`,
			userID, guildID, amount,
		); err != nil {
			return 0, fmt.Errorf("sqlite: credit write: %w", err)
		}
	}

	var balance int64
	err = tx.QueryRowContext(ctx,
		"SELECT balance FROM ledger WHERE user_id = ? AND guild_id = ?",
		userID, guildID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		balance = 0
	} else if err != nil {
		return 0, fmt.Errorf("sqlite: credit read: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: credit commit: %w", err)
	}
	return balance, nil
}
