package store

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS processed_files (
        file_id    TEXT PRIMARY KEY,
        status     TEXT NOT NULL,
        attempts   INTEGER NOT NULL DEFAULT 0,
        reason     TEXT,
        draft_id   TEXT,
        stage      TEXT,
        claimed_at TEXT,
        updated_at TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS post_receipts (
        draft_id   TEXT PRIMARY KEY,
        state      TEXT NOT NULL,
        channel    TEXT,
        message_id TEXT,
        error      TEXT,
        updated_at TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS drafts (
        id         TEXT PRIMARY KEY,
        file_id    TEXT NOT NULL,
        title      TEXT,
        content    TEXT NOT NULL,
        approved   INTEGER NOT NULL DEFAULT 0,
        superseded INTEGER NOT NULL DEFAULT 0,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS tasks (
        draft_id    TEXT NOT NULL,
        task_index  INTEGER NOT NULL,
        description TEXT NOT NULL,
        assignee    TEXT,
        due_raw     TEXT,
        due_at      TEXT,
        completed   INTEGER NOT NULL DEFAULT 0,
        created_at  TEXT NOT NULL,
        updated_at  TEXT NOT NULL,
        PRIMARY KEY (draft_id, task_index)
    )`,
	`CREATE TABLE IF NOT EXISTS reminder_events (
        id           INTEGER PRIMARY KEY AUTOINCREMENT,
        draft_id     TEXT NOT NULL,
        task_index   INTEGER NOT NULL,
        slot         TEXT NOT NULL,
        scheduled_at TEXT NOT NULL,
        status       TEXT NOT NULL,
        updated_at   TEXT NOT NULL,
        UNIQUE (draft_id, task_index, slot)
    )`,
	`CREATE INDEX IF NOT EXISTS idx_reminder_events_due
        ON reminder_events (status, scheduled_at)`,
	`CREATE INDEX IF NOT EXISTS idx_processed_files_status
        ON processed_files (status)`,
}

func (s *Store) applyMigrations(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}
	}
	return nil
}
