package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"minuteman/internal/services"
)

// ReplaceTasks swaps the task list for a draft in one transaction. Tasks
// are keyed by (draft_id, index); edits before approval rewrite the whole
// list so indexes stay dense. Reminder events still in scheduled are
// dropped with the old list, otherwise they would keep pointing at the
// pre-edit tasks and instants; sent and skipped events stay as history.
func (s *Store) ReplaceTasks(ctx context.Context, draftID string, tasks []TaskRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace tasks %s: begin: %w", draftID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE draft_id = ?`, draftID); err != nil {
		return fmt.Errorf("replace tasks %s: clear: %w", draftID, err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM reminder_events WHERE draft_id = ? AND status = ?`,
		draftID, ReminderScheduled,
	); err != nil {
		return fmt.Errorf("replace tasks %s: clear reminders: %w", draftID, err)
	}
	now := timestampNow()
	for i, task := range tasks {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO tasks (draft_id, task_index, description, assignee, due_raw, due_at, completed, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			draftID, i, task.Description, nullableString(task.Assignee),
			nullableString(task.DueRaw), nullableTime(task.DueAt), now, now,
		); err != nil {
			return fmt.Errorf("replace tasks %s: insert %d: %w", draftID, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace tasks %s: commit: %w", draftID, err)
	}
	return nil
}

// CompleteTask marks a task done. Completing an already-completed task is
// a no-op that still reports success; the returned flag tells the caller
// whether this call was the one that flipped it.
func (s *Store) CompleteTask(ctx context.Context, draftID string, index int) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks SET completed = 1, updated_at = ?
         WHERE draft_id = ? AND task_index = ? AND completed = 0`,
		timestampNow(), draftID, index,
	)
	if err != nil {
		return false, fmt.Errorf("complete task %s/%d: %w", draftID, index, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete task %s/%d: rows affected: %w", draftID, index, err)
	}
	return affected == 1, nil
}

// Task fetches one task by draft and index.
func (s *Store) Task(ctx context.Context, draftID string, index int) (*TaskRow, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT draft_id, task_index, description, assignee, due_raw, due_at, completed, created_at, updated_at
         FROM tasks WHERE draft_id = ? AND task_index = ?`,
		draftID, index,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "task",
			fmt.Sprintf("no task %s/%d", draftID, index), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s/%d: %w", draftID, index, err)
	}
	return task, nil
}

// TasksByDraft returns the task list for a draft in index order.
func (s *Store) TasksByDraft(ctx context.Context, draftID string) ([]*TaskRow, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT draft_id, task_index, description, assignee, due_raw, due_at, completed, created_at, updated_at
         FROM tasks WHERE draft_id = ? ORDER BY task_index`,
		draftID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks for %s: %w", draftID, err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// OpenTasks returns all incomplete tasks across approved drafts, soonest
// due first. Tasks without a parsed due date sort last.
func (s *Store) OpenTasks(ctx context.Context) ([]*TaskRow, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT t.draft_id, t.task_index, t.description, t.assignee, t.due_raw, t.due_at, t.completed, t.created_at, t.updated_at
         FROM tasks t
         JOIN drafts d ON d.id = t.draft_id
         WHERE t.completed = 0 AND d.approved = 1 AND d.superseded = 0
         ORDER BY t.due_at IS NULL, t.due_at, t.draft_id, t.task_index`,
	)
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]*TaskRow, error) {
	var tasks []*TaskRow
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(scanner rowScanner) (*TaskRow, error) {
	var (
		task      TaskRow
		assignee  sql.NullString
		dueRaw    sql.NullString
		dueAt     sql.NullString
		completed int
		createdAt string
		updatedAt string
	)
	if err := scanner.Scan(
		&task.DraftID, &task.Index, &task.Description, &assignee,
		&dueRaw, &dueAt, &completed, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	task.Assignee = assignee.String
	task.DueRaw = dueRaw.String
	if dueAt.Valid {
		parsed := parseTimestamp(dueAt.String)
		if !parsed.IsZero() {
			task.DueAt = &parsed
		}
	}
	task.Completed = completed != 0
	task.CreatedAt = parseTimestamp(createdAt)
	task.UpdatedAt = parseTimestamp(updatedAt)
	return &task, nil
}
