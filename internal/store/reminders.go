package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"minuteman/internal/services"
)

// ScheduleReminder inserts one (task, slot) reminder event. The unique
// index makes scheduling idempotent: re-running the scheduler over the
// same task produces no second row, and the insert reports whether this
// call created the event.
func (s *Store) ScheduleReminder(ctx context.Context, draftID string, taskIndex int, slot string, at time.Time) (bool, error) {
	if draftID == "" || slot == "" {
		return false, services.Wrap(services.ErrValidation, "store", "schedule_reminder", "draft id and slot are required", nil)
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO reminder_events (draft_id, task_index, slot, scheduled_at, status, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(draft_id, task_index, slot) DO NOTHING`,
		draftID, taskIndex, slot, formatTimestamp(at), ReminderScheduled, timestampNow(),
	)
	if err != nil {
		return false, fmt.Errorf("schedule reminder %s/%d/%s: %w", draftID, taskIndex, slot, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("schedule reminder %s/%d/%s: rows affected: %w", draftID, taskIndex, slot, err)
	}
	return affected == 1, nil
}

// DueReminders returns scheduled events whose time has arrived, oldest
// first, capped for one scan pass.
func (s *Store) DueReminders(ctx context.Context, now time.Time, limit int) ([]*ReminderRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, draft_id, task_index, slot, scheduled_at, status, updated_at
         FROM reminder_events
         WHERE status = ? AND scheduled_at <= ?
         ORDER BY scheduled_at
         LIMIT ?`,
		ReminderScheduled, formatTimestamp(now), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*ReminderRow
	for rows.Next() {
		reminder, scanErr := scanReminder(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan reminder: %w", scanErr)
		}
		reminders = append(reminders, reminder)
	}
	return reminders, rows.Err()
}

// ClaimReminderDispatch atomically moves one event from scheduled to
// sending. Exactly one concurrent scanner wins; losers treat false as
// "someone else has it" and move on.
func (s *Store) ClaimReminderDispatch(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE reminder_events SET status = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		ReminderSending, timestampNow(), id, ReminderScheduled,
	)
	if err != nil {
		return false, fmt.Errorf("claim reminder %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim reminder %d: rows affected: %w", id, err)
	}
	return affected == 1, nil
}

// MarkReminderSent finalizes a dispatched event.
func (s *Store) MarkReminderSent(ctx context.Context, id int64) error {
	return s.finishReminder(ctx, id, ReminderSent, "mark_reminder_sent")
}

// MarkReminderSkipped finalizes an event that no longer needs sending.
// Skipping is allowed from either scheduled or sending.
func (s *Store) MarkReminderSkipped(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE reminder_events SET status = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		ReminderSkipped, timestampNow(), id, ReminderScheduled, ReminderSending,
	)
	if err != nil {
		return fmt.Errorf("skip reminder %d: %w", id, err)
	}
	return requireOwnership(res, "store", "mark_reminder_skipped", fmt.Sprintf("%d", id))
}

// ReleaseReminder reverts a sending event to scheduled after a transient
// send failure so a later scan retries it.
func (s *Store) ReleaseReminder(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE reminder_events SET status = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		ReminderScheduled, timestampNow(), id, ReminderSending,
	)
	if err != nil {
		return fmt.Errorf("release reminder %d: %w", id, err)
	}
	return requireOwnership(res, "store", "release_reminder", fmt.Sprintf("%d", id))
}

// SkipRemainingForTask retires every still-scheduled event for a task,
// typically after the task is completed.
func (s *Store) SkipRemainingForTask(ctx context.Context, draftID string, taskIndex int) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE reminder_events SET status = ?, updated_at = ?
         WHERE draft_id = ? AND task_index = ? AND status = ?`,
		ReminderSkipped, timestampNow(), draftID, taskIndex, ReminderScheduled,
	)
	if err != nil {
		return 0, fmt.Errorf("skip reminders %s/%d: %w", draftID, taskIndex, err)
	}
	return res.RowsAffected()
}

// Reminder fetches one event by id.
func (s *Store) Reminder(ctx context.Context, id int64) (*ReminderRow, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, draft_id, task_index, slot, scheduled_at, status, updated_at
         FROM reminder_events WHERE id = ?`,
		id,
	)
	reminder, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "reminder",
			fmt.Sprintf("no reminder %d", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load reminder %d: %w", id, err)
	}
	return reminder, nil
}

// RemindersByTask returns every event for a task in schedule order.
func (s *Store) RemindersByTask(ctx context.Context, draftID string, taskIndex int) ([]*ReminderRow, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, draft_id, task_index, slot, scheduled_at, status, updated_at
         FROM reminder_events WHERE draft_id = ? AND task_index = ?
         ORDER BY scheduled_at`,
		draftID, taskIndex,
	)
	if err != nil {
		return nil, fmt.Errorf("list reminders %s/%d: %w", draftID, taskIndex, err)
	}
	defer rows.Close()

	var reminders []*ReminderRow
	for rows.Next() {
		reminder, scanErr := scanReminder(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan reminder: %w", scanErr)
		}
		reminders = append(reminders, reminder)
	}
	return reminders, rows.Err()
}

// ResetStuckSending reverts sending events older than the cutoff back to
// scheduled. A worker that crashed mid-dispatch leaves its event in
// sending; the next daemon start sweeps them so they are not lost.
func (s *Store) ResetStuckSending(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE reminder_events SET status = ?, updated_at = ?
         WHERE status = ? AND updated_at < ?`,
		ReminderScheduled, timestampNow(), ReminderSending,
		formatTimestamp(olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck reminders: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) finishReminder(ctx context.Context, id int64, status ReminderStatus, operation string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE reminder_events SET status = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		status, timestampNow(), id, ReminderSending,
	)
	if err != nil {
		return fmt.Errorf("%s %d: %w", operation, id, err)
	}
	return requireOwnership(res, "store", operation, fmt.Sprintf("%d", id))
}

func scanReminder(scanner rowScanner) (*ReminderRow, error) {
	var (
		reminder    ReminderRow
		scheduledAt string
		status      string
		updatedAt   string
	)
	if err := scanner.Scan(
		&reminder.ID, &reminder.DraftID, &reminder.TaskIndex,
		&reminder.Slot, &scheduledAt, &status, &updatedAt,
	); err != nil {
		return nil, err
	}
	reminder.ScheduledAt = parseTimestamp(scheduledAt)
	reminder.Status = ReminderStatus(status)
	reminder.UpdatedAt = parseTimestamp(updatedAt)
	return &reminder, nil
}
