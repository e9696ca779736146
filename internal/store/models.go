package store

import (
	"strings"
	"time"
)

// FileStatus represents the lifecycle of a processed-file record.
type FileStatus string

const (
	FileProcessing FileStatus = "processing"
	FileDone       FileStatus = "done"
	FileFailed     FileStatus = "failed"
)

// ReceiptState represents the lifecycle of a posting receipt.
type ReceiptState string

const (
	ReceiptPosting ReceiptState = "posting"
	ReceiptSent    ReceiptState = "sent"
	ReceiptFailed  ReceiptState = "failed"
)

// ReminderStatus represents the lifecycle of a reminder event.
type ReminderStatus string

const (
	ReminderScheduled ReminderStatus = "scheduled"
	ReminderSending   ReminderStatus = "sending"
	ReminderSent      ReminderStatus = "sent"
	ReminderSkipped   ReminderStatus = "skipped"
)

// FileRecord is the durable processing record for one source file identity.
type FileRecord struct {
	FileID    string
	Status    FileStatus
	Attempts  int
	Reason    string
	DraftID   string
	Stage     string
	ClaimedAt time.Time
	UpdatedAt time.Time
}

// Receipt is the recorded proof that a draft was (or failed to be) posted.
type Receipt struct {
	DraftID   string
	State     ReceiptState
	Channel   string
	MessageID string
	Error     string
	UpdatedAt time.Time
}

// Sent reports whether the receipt proves a successful post.
func (r Receipt) Sent() bool { return r.State == ReceiptSent }

// DraftRow is the persisted form of a minutes draft.
type DraftRow struct {
	ID         string
	FileID     string
	Title      string
	Content    string // JSON-encoded minutes.Draft body
	Approved   bool
	Superseded bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TaskRow is the persisted form of one action item.
type TaskRow struct {
	DraftID     string
	Index       int
	Description string
	Assignee    string
	DueRaw      string
	DueAt       *time.Time
	Completed   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReminderRow is one (task, slot) reminder event.
type ReminderRow struct {
	ID          int64
	DraftID     string
	TaskIndex   int
	Slot        string
	ScheduledAt time.Time
	Status      ReminderStatus
	UpdatedAt   time.Time
}

// HealthSummary aggregates record counts for diagnostics.
type HealthSummary struct {
	Files      map[FileStatus]int
	Receipts   map[ReceiptState]int
	Reminders  map[ReminderStatus]int
	OpenTasks  int
	TotalTasks int
}

// ParseFileStatus converts a string into a known FileStatus.
func ParseFileStatus(value string) (FileStatus, bool) {
	normalized := FileStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case FileProcessing, FileDone, FileFailed:
		return normalized, true
	}
	return "", false
}
