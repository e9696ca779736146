package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"minuteman/internal/services"
)

// SaveDraft persists a minutes draft. Draft ids are derived from the file
// identity, so a retried job writes the same id again; the upsert rewrites
// an unapproved draft in place instead of failing the retry. An approved
// draft is immutable and reports ErrConflict.
func (s *Store) SaveDraft(ctx context.Context, draft *DraftRow) error {
	if draft == nil || draft.ID == "" || draft.FileID == "" {
		return services.Wrap(services.ErrValidation, "store", "save_draft", "draft id and file id are required", nil)
	}
	now := timestampNow()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO drafts (id, file_id, title, content, approved, superseded, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, 0, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
            title = excluded.title,
            content = excluded.content,
            superseded = 0,
            updated_at = excluded.updated_at
         WHERE drafts.approved = 0`,
		draft.ID, draft.FileID, nullableString(draft.Title), draft.Content, now, now,
	)
	if err != nil {
		return fmt.Errorf("save draft %s: %w", draft.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save draft %s: rows affected: %w", draft.ID, err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrConflict, "store", "save_draft",
			fmt.Sprintf("draft %s is approved", draft.ID), nil)
	}
	return nil
}

// UpdateDraftContent replaces the body of an unapproved draft. An approved
// draft is immutable; editing it returns ErrConflict.
func (s *Store) UpdateDraftContent(ctx context.Context, draftID, title, content string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE drafts SET title = ?, content = ?, updated_at = ?
         WHERE id = ? AND approved = 0`,
		nullableString(title), content, timestampNow(), draftID,
	)
	if err != nil {
		return fmt.Errorf("update draft %s: %w", draftID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update draft %s: rows affected: %w", draftID, err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrConflict, "store", "update_draft",
			fmt.Sprintf("draft %s is approved or missing", draftID), nil)
	}
	return nil
}

// MarkApproved flips the draft to approved exactly once. The second and
// later calls lose the conditional update and report ErrDuplicate so that
// double-clicked approve buttons trigger no second round of side effects.
func (s *Store) MarkApproved(ctx context.Context, draftID string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE drafts SET approved = 1, updated_at = ?
         WHERE id = ? AND approved = 0 AND superseded = 0`,
		timestampNow(), draftID,
	)
	if err != nil {
		return fmt.Errorf("approve draft %s: %w", draftID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("approve draft %s: rows affected: %w", draftID, err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrDuplicate, "store", "mark_approved",
			fmt.Sprintf("draft %s already approved or superseded", draftID), nil)
	}
	return nil
}

// MarkSuperseded retires a draft whose source file was reprocessed.
func (s *Store) MarkSuperseded(ctx context.Context, draftID string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE drafts SET superseded = 1, updated_at = ? WHERE id = ?`,
		timestampNow(), draftID,
	)
	if err != nil {
		return fmt.Errorf("supersede draft %s: %w", draftID, err)
	}
	return nil
}

// Draft fetches one draft by id.
func (s *Store) Draft(ctx context.Context, draftID string) (*DraftRow, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, file_id, title, content, approved, superseded, created_at, updated_at
         FROM drafts WHERE id = ?`,
		draftID,
	)
	draft, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "draft",
			fmt.Sprintf("no draft %s", draftID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load draft %s: %w", draftID, err)
	}
	return draft, nil
}

// DraftsByFile returns all drafts produced for one file identity, newest
// first. Reprocessing a failed file can leave a superseded trail.
func (s *Store) DraftsByFile(ctx context.Context, fileID string) ([]*DraftRow, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, file_id, title, content, approved, superseded, created_at, updated_at
         FROM drafts WHERE file_id = ? ORDER BY created_at DESC`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("list drafts for %s: %w", fileID, err)
	}
	defer rows.Close()

	var drafts []*DraftRow
	for rows.Next() {
		draft, scanErr := scanDraft(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan draft: %w", scanErr)
		}
		drafts = append(drafts, draft)
	}
	return drafts, rows.Err()
}

func scanDraft(scanner rowScanner) (*DraftRow, error) {
	var (
		draft      DraftRow
		title      sql.NullString
		approved   int
		superseded int
		createdAt  string
		updatedAt  string
	)
	if err := scanner.Scan(
		&draft.ID, &draft.FileID, &title, &draft.Content,
		&approved, &superseded, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	draft.Title = title.String
	draft.Approved = approved != 0
	draft.Superseded = superseded != 0
	draft.CreatedAt = parseTimestamp(createdAt)
	draft.UpdatedAt = parseTimestamp(updatedAt)
	return &draft, nil
}
