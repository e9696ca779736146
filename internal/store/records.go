package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"minuteman/internal/services"
)

// TryClaim atomically takes ownership of a file identity. It returns true
// when the caller won the claim: either no record existed, or the previous
// attempt ended in failed. A record in processing or done loses the claim.
// The decision is made by the database in a single conditional statement,
// never by a read followed by a write.
func (s *Store) TryClaim(ctx context.Context, fileID string) (bool, error) {
	if fileID == "" {
		return false, services.Wrap(services.ErrValidation, "store", "try_claim", "file id is required", nil)
	}
	now := timestampNow()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO processed_files (file_id, status, attempts, claimed_at, updated_at)
         VALUES (?, ?, 1, ?, ?)
         ON CONFLICT(file_id) DO UPDATE SET
            status = excluded.status,
            attempts = processed_files.attempts + 1,
            reason = NULL,
            claimed_at = excluded.claimed_at,
            updated_at = excluded.updated_at
         WHERE processed_files.status = ?`,
		fileID, FileProcessing, now, now, FileFailed,
	)
	if err != nil {
		return false, fmt.Errorf("claim file %s: %w", fileID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim file %s: rows affected: %w", fileID, err)
	}
	return affected == 1, nil
}

// MarkDone finalizes a claimed record. Only a record in processing can move
// to done; anything else means the caller no longer owns the record and
// ErrConflict is returned.
func (s *Store) MarkDone(ctx context.Context, fileID, draftID string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE processed_files
         SET status = ?, draft_id = ?, reason = NULL, updated_at = ?
         WHERE file_id = ? AND status = ?`,
		FileDone, nullableString(draftID), timestampNow(), fileID, FileProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark done %s: %w", fileID, err)
	}
	return requireOwnership(res, "store", "mark_done", fileID)
}

// MarkFailed records a failure reason for a claimed record so a later claim
// can retry it. Only the current owner (status processing) may fail it.
func (s *Store) MarkFailed(ctx context.Context, fileID, reason string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE processed_files
         SET status = ?, reason = ?, updated_at = ?
         WHERE file_id = ? AND status = ?`,
		FileFailed, nullableString(reason), timestampNow(), fileID, FileProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", fileID, err)
	}
	return requireOwnership(res, "store", "mark_failed", fileID)
}

// SetStage updates the recorded pipeline stage for a claimed record.
func (s *Store) SetStage(ctx context.Context, fileID, stage string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE processed_files SET stage = ?, updated_at = ?
         WHERE file_id = ? AND status = ?`,
		stage, timestampNow(), fileID, FileProcessing,
	)
	if err != nil {
		return fmt.Errorf("set stage %s: %w", fileID, err)
	}
	return requireOwnership(res, "store", "set_stage", fileID)
}

// Record fetches the processing record for one file identity.
// Status is the change detector's fast-path dedupe read. The boolean
// reports whether any record exists for the file; callers treat a missing
// record or a failed one as claimable and let TryClaim decide for real.
func (s *Store) Status(ctx context.Context, fileID string) (FileStatus, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM processed_files WHERE file_id = ?`, fileID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load status %s: %w", fileID, err)
	}
	status, ok := ParseFileStatus(raw)
	if !ok {
		return "", false, fmt.Errorf("record %s has unknown status %q", fileID, raw)
	}
	return status, true, nil
}

func (s *Store) Record(ctx context.Context, fileID string) (*FileRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT file_id, status, attempts, reason, draft_id, stage, claimed_at, updated_at
         FROM processed_files WHERE file_id = ?`,
		fileID,
	)
	record, err := scanFileRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "record", fmt.Sprintf("no record for file %s", fileID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", fileID, err)
	}
	return record, nil
}

// ListRecords returns records matching the given statuses, newest first.
// An empty status list returns everything.
func (s *Store) ListRecords(ctx context.Context, statuses ...FileStatus) ([]*FileRecord, error) {
	query := `SELECT file_id, status, attempts, reason, draft_id, stage, claimed_at, updated_at
        FROM processed_files`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + placeholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*FileRecord
	for rows.Next() {
		record, scanErr := scanFileRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan record: %w", scanErr)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CompactDone removes done records older than the cutoff. Failed and
// processing records are never compacted; failed ones remain claimable.
func (s *Store) CompactDone(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM processed_files WHERE status = ? AND updated_at < ?`,
		FileDone, formatTimestamp(olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("compact done records: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckProcessing moves processing records older than the cutoff to
// failed so TryClaim can hand them out again. A worker that crashes after
// winning a claim leaves its record in processing forever otherwise. Runs
// under the daemon's single-instance lock, so a swept record cannot have
// a live owner.
func (s *Store) ResetStuckProcessing(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE processed_files SET status = ?, reason = ?, updated_at = ?
         WHERE status = ? AND updated_at < ?`,
		FileFailed, "interrupted before completion", timestampNow(),
		FileProcessing, formatTimestamp(olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck files: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRecord(scanner rowScanner) (*FileRecord, error) {
	var (
		record    FileRecord
		status    string
		reason    sql.NullString
		draftID   sql.NullString
		stage     sql.NullString
		claimedAt sql.NullString
		updatedAt string
	)
	if err := scanner.Scan(
		&record.FileID, &status, &record.Attempts, &reason,
		&draftID, &stage, &claimedAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	record.Status = FileStatus(status)
	record.Reason = reason.String
	record.DraftID = draftID.String
	record.Stage = stage.String
	record.ClaimedAt = parseTimestamp(claimedAt.String)
	record.UpdatedAt = parseTimestamp(updatedAt)
	return &record, nil
}

func requireOwnership(res sql.Result, stage, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: rows affected: %w", operation, id, err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrConflict, stage, operation,
			fmt.Sprintf("record %s is not owned by this worker", id), nil)
	}
	return nil
}

func placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	out := "?"
	for i := 1; i < count; i++ {
		out += ", ?"
	}
	return out
}
