package store

import (
	"context"
	"fmt"
	"time"
)

// Health aggregates record counts across every table for diagnostics.
func (s *Store) Health(ctx context.Context) (*HealthSummary, error) {
	summary := &HealthSummary{
		Files:     make(map[FileStatus]int),
		Receipts:  make(map[ReceiptState]int),
		Reminders: make(map[ReminderStatus]int),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM processed_files GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count files: %w", err)
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan file count: %w", err)
		}
		summary.Files[FileStatus(status)] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM post_receipts GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("count receipts: %w", err)
	}
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan receipt count: %w", err)
		}
		summary.Receipts[ReceiptState(state)] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM reminder_events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count reminders: %w", err)
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan reminder count: %w", err)
		}
		summary.Reminders[ReminderStatus(status)] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(completed = 0), 0) FROM tasks`)
	if err := row.Scan(&summary.TotalTasks, &summary.OpenTasks); err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	return summary, nil
}

// Maintain runs the housekeeping pass: compact old done records and sweep
// everything a crashed worker can leave mid-claim, which is reminder
// events stuck in sending, receipts stuck in posting, and file records
// stuck in processing. The caller holds the single-instance lock, so a
// swept row cannot belong to a live worker.
func (s *Store) Maintain(ctx context.Context, compactAfter time.Duration, stuckAfter time.Duration) error {
	now := time.Now()
	if compactAfter > 0 {
		if _, err := s.CompactDone(ctx, now.Add(-compactAfter)); err != nil {
			return err
		}
	}
	if stuckAfter > 0 {
		cutoff := now.Add(-stuckAfter)
		if _, err := s.ResetStuckSending(ctx, cutoff); err != nil {
			return err
		}
		if _, err := s.ResetStuckPosting(ctx, cutoff); err != nil {
			return err
		}
		if _, err := s.ResetStuckProcessing(ctx, cutoff); err != nil {
			return err
		}
	}
	return nil
}
