package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// EnsureSchema creates the content, profile and index tables if they do not exist.
// Production Postgres deployments normally run migrations; this keeps
// local dev and tests self-contained.
func EnsureSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	ts := "TIMESTAMP"
	if d == DialectPostgres {
		ts = "TIMESTAMPTZ"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
            id TEXT PRIMARY KEY,
            display_name TEXT NOT NULL,
            auto_respond BOOLEAN NOT NULL DEFAULT FALSE
        )`,
		`CREATE TABLE IF NOT EXISTS channel_messages (
            id TEXT PRIMARY KEY,
            channel_id TEXT NOT NULL,
            author_id TEXT NOT NULL,
            content TEXT NOT NULL DEFAULT '',
            created_at {{TS}} NOT NULL,
            indexed BOOLEAN NOT NULL DEFAULT FALSE
        )`,
		`CREATE INDEX IF NOT EXISTS channel_messages_container_idx ON channel_messages (channel_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS direct_messages (
            id TEXT PRIMARY KEY,
            conversation_id TEXT NOT NULL,
            author_id TEXT NOT NULL,
            content TEXT NOT NULL DEFAULT '',
            created_at {{TS}} NOT NULL,
            indexed BOOLEAN NOT NULL DEFAULT FALSE
        )`,
		`CREATE INDEX IF NOT EXISTS direct_messages_container_idx ON direct_messages (conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS thread_replies (
            id TEXT PRIMARY KEY,
            parent_message_id TEXT NOT NULL,
            author_id TEXT NOT NULL,
            content TEXT NOT NULL DEFAULT '',
            created_at {{TS}} NOT NULL,
            indexed BOOLEAN NOT NULL DEFAULT FALSE
        )`,
		`CREATE INDEX IF NOT EXISTS thread_replies_container_idx ON thread_replies (parent_message_id, created_at)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, strings.ReplaceAll(s, "{{TS}}", ts)); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
