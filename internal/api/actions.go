package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	"minuteman/internal/logging"
	"minuteman/internal/minutes"
	"minuteman/internal/render"
	"minuteman/internal/services"
	"minuteman/internal/slack"
	"minuteman/internal/store"
)

// SlackActions handles POST /slack/actions: signed interaction callbacks
// for edit, edit submission, approval, and task completion.
func (h *Handler) SlackActions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unreadable request body"))
		return
	}

	if err := slack.VerifySignature(
		h.cfg.Slack.SigningSecret,
		r.Header.Get("X-Slack-Request-Timestamp"),
		body,
		r.Header.Get("X-Slack-Signature"),
		h.now(),
	); err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody("signature verification failed"))
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid form payload"))
		return
	}
	interaction, err := slack.ParseInteraction([]byte(form.Get("payload")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	logger := h.logger.With(
		logging.String("draft_id", interaction.DraftID),
		logging.String("action", interaction.ActionID),
	)

	switch interaction.ActionID {
	case slack.ActionEdit:
		err = h.openEditModal(r, interaction)
	case slack.CallbackEditSubmit:
		err = h.applyEdit(r, interaction)
	case slack.ActionApprove:
		err = h.approveDraft(r, interaction)
	case slack.ActionTaskComplete:
		err = h.completeTask(r, interaction)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported action"))
		return
	}
	if err != nil {
		logger.Warn("interaction failed", logging.Error(err))
		writeError(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) openEditModal(r *http.Request, interaction *slack.Interaction) error {
	row, err := h.store.Draft(r.Context(), interaction.DraftID)
	if err != nil {
		return err
	}
	draft, err := minutes.DecodeDraft(row.Content)
	if err != nil {
		return err
	}
	modal := slack.BuildEditModal(interaction.DraftID, draft)
	return h.slack.OpenView(r.Context(), interaction.TriggerID, modal)
}

// applyEdit merges the modal's sections into the stored draft, rewrites
// the task list and its reminders from the edited action items, and
// refreshes the preview message. An approved draft no longer accepts
// edits.
func (h *Handler) applyEdit(r *http.Request, interaction *slack.Interaction) error {
	ctx := r.Context()
	row, err := h.store.Draft(ctx, interaction.DraftID)
	if err != nil {
		return err
	}
	draft, err := minutes.DecodeDraft(row.Content)
	if err != nil {
		return err
	}

	edited := interaction.Draft
	edited.ID = draft.ID
	edited.FileID = draft.FileID
	edited.Title = draft.Title

	content, err := edited.Encode()
	if err != nil {
		return err
	}
	if err := h.store.UpdateDraftContent(ctx, interaction.DraftID, edited.DisplayTitle(), content); err != nil {
		return err
	}
	if err := h.refreshTasks(ctx, interaction.DraftID, edited); err != nil {
		return err
	}

	receipt, err := h.store.Receipt(ctx, interaction.DraftID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil
		}
		return err
	}
	if !receipt.Sent() {
		return nil
	}
	blocks := slack.BuildPreviewBlocks(interaction.DraftID, edited)
	return h.slack.UpdateMessage(ctx, receipt.Channel, receipt.MessageID, "議事録ドラフト: "+edited.DisplayTitle(), blocks)
}

// refreshTasks re-parses the action items of an edited draft so task
// assignments, due instants, and reminder slots follow the current content
// rather than the pre-edit one.
func (h *Handler) refreshTasks(ctx context.Context, draftID string, draft minutes.Draft) error {
	if h.scheduler == nil {
		return nil
	}
	parsed := draft.Tasks()
	rows := make([]store.TaskRow, 0, len(parsed))
	for i, task := range parsed {
		row := store.TaskRow{
			DraftID:     draftID,
			Index:       i,
			Description: task.Description,
			Assignee:    task.Assignee,
			DueRaw:      task.Due,
		}
		if task.Due != "" {
			row.DueAt = minutes.ParseDue(task.Due, h.scheduler.Location(), h.scheduler.DefaultHour(), h.now())
		}
		rows = append(rows, row)
	}
	if err := h.store.ReplaceTasks(ctx, draftID, rows); err != nil {
		return err
	}
	return h.scheduler.ScheduleDraft(ctx, draftID)
}

// approveDraft marks the draft approved exactly once and posts the design
// checklist into the draft thread. A second press is reported as already
// approved, not an error.
func (h *Handler) approveDraft(r *http.Request, interaction *slack.Interaction) error {
	ctx := r.Context()
	if err := h.store.MarkApproved(ctx, interaction.DraftID); err != nil {
		if errors.Is(err, services.ErrDuplicate) {
			h.logger.Debug("draft already approved",
				logging.String("draft_id", interaction.DraftID),
			)
			return nil
		}
		return err
	}

	row, err := h.store.Draft(ctx, interaction.DraftID)
	if err != nil {
		return err
	}
	draft, decodeErr := minutes.DecodeDraft(row.Content)
	if decodeErr != nil {
		return decodeErr
	}

	receipt, err := h.store.Receipt(ctx, interaction.DraftID)
	if err == nil && receipt.Sent() {
		checklist := render.DesignChecklist(draft)
		if uploadErr := h.slack.UploadFile(ctx, receipt.Channel, receipt.MessageID,
			render.ChecklistFileName(draft), "設計チェックリスト", []byte(checklist)); uploadErr != nil {
			h.logger.Warn("checklist upload failed", logging.Error(uploadErr))
		}
		if _, _, postErr := h.slack.PostThreadMessage(ctx, receipt.Channel, receipt.MessageID,
			"議事録が承認されました。", nil); postErr != nil {
			h.logger.Warn("approval note failed", logging.Error(postErr))
		}
	}

	if alertErr := h.alerts.NotifyDraftApproved(ctx, draft.DisplayTitle()); alertErr != nil {
		h.logger.Debug("approval alert failed", logging.Error(alertErr))
	}
	return nil
}

// completeTask flips the completion flag, retires the task's remaining
// reminders, and refreshes the task list message. Completing an already
// completed task is a no-op that still refreshes the rendering.
func (h *Handler) completeTask(r *http.Request, interaction *slack.Interaction) error {
	ctx := r.Context()
	flipped, err := h.store.CompleteTask(ctx, interaction.DraftID, interaction.TaskIndex)
	if err != nil {
		return err
	}
	if flipped {
		if _, err := h.store.SkipRemainingForTask(ctx, interaction.DraftID, interaction.TaskIndex); err != nil {
			h.logger.Warn("retire reminders failed", logging.Error(err))
		}
	}

	if interaction.Channel == "" || interaction.MessageTS == "" {
		return nil
	}
	row, err := h.store.Draft(ctx, interaction.DraftID)
	if err != nil {
		return err
	}
	draft, err := minutes.DecodeDraft(row.Content)
	if err != nil {
		return err
	}
	tasks, err := h.store.TasksByDraft(ctx, interaction.DraftID)
	if err != nil {
		return err
	}
	completed := completionFlags(tasks)
	items := slack.TaskItemsFromDraft(draft, completed)
	blocks := slack.BuildTaskBlocks(interaction.DraftID, items)
	return h.slack.UpdateMessage(ctx, interaction.Channel, interaction.MessageTS, "アクションアイテム", blocks)
}

func completionFlags(tasks []*store.TaskRow) []bool {
	flags := make([]bool, len(tasks))
	for _, task := range tasks {
		if task.Index >= 0 && task.Index < len(flags) {
			flags[task.Index] = task.Completed
		}
	}
	return flags
}
