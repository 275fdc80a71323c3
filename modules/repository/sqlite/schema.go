package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id               TEXT PRIMARY KEY,
		user_id          TEXT    NOT NULL,
		guild_id         TEXT    NOT NULL DEFAULT '',
		channel_id       TEXT    NOT NULL,
		category         TEXT    NOT NULL DEFAULT '',
		age_gated        INTEGER NOT NULL DEFAULT 0,
		mode             TEXT    NOT NULL DEFAULT '',
		thread_id        TEXT    NOT NULL DEFAULT '',
		message_count    INTEGER NOT NULL DEFAULT 0,
		token_total      INTEGER NOT NULL DEFAULT 0,
		cost_total       INTEGER NOT NULL DEFAULT 0,
		started_at       TEXT    NOT NULL,
		last_activity_at TEXT    NOT NULL,
		ended_at         TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_conversations_active
		ON conversations(user_id, channel_id) WHERE ended_at IS NULL`,

	`CREATE INDEX IF NOT EXISTS idx_conversations_idle
		ON conversations(last_activity_at) WHERE ended_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT    NOT NULL,
		role            TEXT    NOT NULL,
		content         TEXT    NOT NULL DEFAULT '',
		restricted      INTEGER NOT NULL DEFAULT 0,
		filtered        INTEGER NOT NULL DEFAULT 0,
		filter_issues   TEXT    NOT NULL DEFAULT '[]',
		token_count     INTEGER NOT NULL DEFAULT 0,
		backend         TEXT    NOT NULL DEFAULT '',
		model           TEXT    NOT NULL DEFAULT '',
		cost            INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT    NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages(conversation_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS preferences (
		user_id             TEXT    NOT NULL,
		guild_id            TEXT    NOT NULL DEFAULT '',
		restricted_opt_in   INTEGER NOT NULL DEFAULT 0,
		response_style      TEXT    NOT NULL DEFAULT 'balanced',
		max_response_tokens INTEGER NOT NULL DEFAULT 1024,
		strictness          TEXT    NOT NULL DEFAULT 'standard',
		history_opt_in      INTEGER NOT NULL DEFAULT 1,
		api_key             TEXT    NOT NULL DEFAULT '',
		vip                 INTEGER NOT NULL DEFAULT 0,
		age_verified        INTEGER NOT NULL DEFAULT 0,
		updated_at          TEXT    NOT NULL,
		PRIMARY KEY (user_id, guild_id)
	)`,

	`CREATE TABLE IF NOT EXISTS ledger (
		user_id  TEXT    NOT NULL,
		guild_id TEXT    NOT NULL DEFAULT '',
		balance  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, guild_id)
	)`,

	`CREATE TABLE IF NOT EXISTS usage_rollups (
		day      TEXT    NOT NULL,
		user_id  TEXT    NOT NULL,
		guild_id TEXT    NOT NULL DEFAULT '',
		messages INTEGER NOT NULL DEFAULT 0,
		tokens   INTEGER NOT NULL DEFAULT 0,
		cost     INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (day, user_id, guild_id)
	)`,

	`CREATE TABLE IF NOT EXISTS snippets (
		id         TEXT PRIMARY KEY,
		category   TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS snippets_fts USING fts5(
		content,
		content=snippets,
		content_rowid=rowid
	)`,

	`CREATE TRIGGER IF NOT EXISTS snippets_ai AFTER INSERT ON snippets BEGIN
		INSERT INTO snippets_fts(rowid, content) VALUES (new.rowid, new.content);
	END`,

	`CREATE TRIGGER IF NOT EXISTS snippets_ad AFTER DELETE ON snippets BEGIN
		INSERT INTO snippets_fts(snippets_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
	END`,

	`CREATE TRIGGER IF NOT EXISTS snippets_au AFTER UPDATE ON snippets BEGIN
		INSERT INTO snippets_fts(snippets_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
		INSERT INTO snippets_fts(rowid, content) VALUES (new.rowid, new.content);
	END`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	ctx := context.TODO()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}
