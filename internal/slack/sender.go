package slack

import (
	"context"
	"fmt"

	"minuteman/internal/services"
	"minuteman/internal/store"
)

// ReminderSender posts reminder messages into a draft's thread. It
// implements the reminder scheduler's Sender contract.
type ReminderSender struct {
	client *Client
	store  *store.Store
	users  *UserResolver
}

// NewReminderSender wires a sender over the shared store.
func NewReminderSender(client *Client, st *store.Store, users *UserResolver) *ReminderSender {
	return &ReminderSender{client: client, store: st, users: users}
}

// SendReminder posts one reminder into the thread of the task's draft. A
// draft without a sent receipt has no thread yet; that is a retryable
// condition, not a terminal one.
func (s *ReminderSender) SendReminder(ctx context.Context, task *store.TaskRow, slotName string) error {
	receipt, err := s.store.Receipt(ctx, task.DraftID)
	if err != nil {
		return err
	}
	if !receipt.Sent() {
		return services.Wrap(services.ErrTransient, "slack", "send_reminder",
			fmt.Sprintf("draft %s has no posted thread yet", task.DraftID), nil)
	}

	owner := task.Assignee
	if owner == "" {
		owner = "未定"
	}
	due := task.DueRaw
	if due == "" {
		due = "未定"
	}
	text := fmt.Sprintf("%sリマインド：*%s* （担当: %s / 期限: %s）",
		s.users.Mention(task.Assignee), task.Description, owner, due)

	_, _, err = s.client.PostThreadMessage(ctx, receipt.Channel, receipt.MessageID, text, nil)
	return err
}
