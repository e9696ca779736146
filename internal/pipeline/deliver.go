package pipeline

import (
	"context"
	"log/slog"
	"time"

	"minuteman/internal/logging"
	"minuteman/internal/minutes"
	"minuteman/internal/render"
	"minuteman/internal/services"
	"minuteman/internal/slack"
	"minuteman/internal/store"
)

// deliverStage fans the finished draft out: registers tasks and their
// reminders, posts the task list and document into the draft thread, and
// pushes the document to the optional mail and folder targets. Task and
// reminder registration must succeed; the outbound copies are best effort
// and only logged on failure, matching how a human would rather have the
// draft thread than fail the whole job over a mail hiccup.
type deliverStage struct {
	store     *store.Store
	scheduler draftScheduler
	slack     messageClient
	drive     folderStore
	mail      documentMailer
	logger    *slog.Logger

	uploadFolderID string
	now            func() time.Time
}

func (s *deliverStage) Prepare(ctx context.Context, job *Job) error {
	if job.DraftID == "" || job.Document == "" {
		return services.Wrap(services.ErrValidation, StageDeliver, "prepare", "no rendered draft to deliver", nil)
	}
	return nil
}

func (s *deliverStage) Execute(ctx context.Context, job *Job) error {
	logger := logging.WithContext(ctx, s.logger)

	if err := s.registerTasks(ctx, job); err != nil {
		return err
	}
	if err := s.scheduler.ScheduleDraft(ctx, job.DraftID); err != nil {
		return err
	}

	tasks := job.Draft.Tasks()
	if len(tasks) > 0 && job.ReceiptTS != "" {
		items := slack.TaskItemsFromDraft(job.Draft, nil)
		blocks := slack.BuildTaskBlocks(job.DraftID, items)
		if _, _, err := s.slack.PostThreadMessage(ctx, job.ReceiptChannel, job.ReceiptTS, "アクションアイテム", blocks); err != nil {
			return err
		}
	}

	fileName := render.MinutesFileName(job.Draft)
	if job.ReceiptTS != "" {
		err := s.slack.UploadFile(ctx, job.ReceiptChannel, job.ReceiptTS, fileName, job.Draft.DisplayTitle(), []byte(job.Document))
		if err != nil {
			logger.Warn("document upload to thread failed", logging.Error(err))
		}
	}
	if s.drive != nil {
		if _, err := s.drive.Upload(ctx, s.uploadFolderID, fileName, "text/plain", []byte(job.Document)); err != nil {
			logger.Warn("document upload to folder failed", logging.Error(err))
		}
	}
	if s.mail != nil && s.mail.Enabled() {
		subject := "議事録: " + job.Draft.DisplayTitle()
		if err := s.mail.SendDocument(ctx, subject, "議事録を添付します。", fileName, []byte(job.Document)); err != nil {
			logger.Warn("document mail delivery failed", logging.Error(err))
		}
	}

	if job.ReceiptTS != "" {
		if _, _, err := s.slack.PostThreadMessage(ctx, job.ReceiptChannel, job.ReceiptTS, "議事録の処理が完了しました。編集または承認してください。", nil); err != nil {
			logger.Warn("completion note failed", logging.Error(err))
		}
	}
	return nil
}

// registerTasks parses the draft's action items into rows with resolved due
// instants. Unparseable due strings leave DueAt nil; the scheduler logs and
// skips those tasks without failing their siblings.
func (s *deliverStage) registerTasks(ctx context.Context, job *Job) error {
	now := time.Now
	if s.now != nil {
		now = s.now
	}

	parsed := job.Draft.Tasks()
	rows := make([]store.TaskRow, 0, len(parsed))
	for i, task := range parsed {
		row := store.TaskRow{
			DraftID:     job.DraftID,
			Index:       i,
			Description: task.Description,
			Assignee:    task.Assignee,
			DueRaw:      task.Due,
		}
		if task.Due != "" {
			row.DueAt = minutes.ParseDue(task.Due, s.scheduler.Location(), s.scheduler.DefaultHour(), now())
		}
		rows = append(rows, row)
	}
	return s.store.ReplaceTasks(ctx, job.DraftID, rows)
}
