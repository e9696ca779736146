package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"minuteman/internal/services"
)

// ClaimPosting atomically takes ownership of the post for a draft. The
// caller wins when no receipt exists or the previous attempt failed; a
// receipt in posting or sent loses. Winners must finish with
// CompleteReceipt or FailReceipt.
func (s *Store) ClaimPosting(ctx context.Context, draftID string) (bool, error) {
	if draftID == "" {
		return false, services.Wrap(services.ErrValidation, "store", "claim_posting", "draft id is required", nil)
	}
	now := timestampNow()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO post_receipts (draft_id, state, updated_at)
         VALUES (?, ?, ?)
         ON CONFLICT(draft_id) DO UPDATE SET
            state = excluded.state,
            error = NULL,
            updated_at = excluded.updated_at
         WHERE post_receipts.state = ?`,
		draftID, ReceiptPosting, now, ReceiptFailed,
	)
	if err != nil {
		return false, fmt.Errorf("claim posting %s: %w", draftID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim posting %s: rows affected: %w", draftID, err)
	}
	return affected == 1, nil
}

// CompleteReceipt records the proof of a successful post. Only the current
// owner (state posting) may complete it.
func (s *Store) CompleteReceipt(ctx context.Context, draftID, channel, messageID string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE post_receipts
         SET state = ?, channel = ?, message_id = ?, error = NULL, updated_at = ?
         WHERE draft_id = ? AND state = ?`,
		ReceiptSent, channel, messageID, timestampNow(), draftID, ReceiptPosting,
	)
	if err != nil {
		return fmt.Errorf("complete receipt %s: %w", draftID, err)
	}
	return requireOwnership(res, "store", "complete_receipt", draftID)
}

// FailReceipt records a post failure so a later claim can retry it.
func (s *Store) FailReceipt(ctx context.Context, draftID, reason string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE post_receipts
         SET state = ?, error = ?, updated_at = ?
         WHERE draft_id = ? AND state = ?`,
		ReceiptFailed, nullableString(reason), timestampNow(), draftID, ReceiptPosting,
	)
	if err != nil {
		return fmt.Errorf("fail receipt %s: %w", draftID, err)
	}
	return requireOwnership(res, "store", "fail_receipt", draftID)
}

// ResetStuckPosting moves posting receipts older than the cutoff to failed
// so ClaimPosting can reclaim them. A worker that crashes between claiming
// and completing leaves its receipt in posting forever otherwise. Runs
// under the daemon's single-instance lock, so a swept receipt cannot have
// a live owner.
func (s *Store) ResetStuckPosting(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE post_receipts SET state = ?, error = ?, updated_at = ?
         WHERE state = ? AND updated_at < ?`,
		ReceiptFailed, "interrupted before completion", timestampNow(),
		ReceiptPosting, formatTimestamp(olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck receipts: %w", err)
	}
	return res.RowsAffected()
}

// Receipt fetches the posting receipt for a draft.
func (s *Store) Receipt(ctx context.Context, draftID string) (*Receipt, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT draft_id, state, channel, message_id, error, updated_at
         FROM post_receipts WHERE draft_id = ?`,
		draftID,
	)
	var (
		receipt   Receipt
		state     string
		channel   sql.NullString
		messageID sql.NullString
		errText   sql.NullString
		updatedAt string
	)
	err := row.Scan(&receipt.DraftID, &state, &channel, &messageID, &errText, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "receipt",
			fmt.Sprintf("no receipt for draft %s", draftID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load receipt %s: %w", draftID, err)
	}
	receipt.State = ReceiptState(state)
	receipt.Channel = channel.String
	receipt.MessageID = messageID.String
	receipt.Error = errText.String
	receipt.UpdatedAt = parseTimestamp(updatedAt)
	return &receipt, nil
}
