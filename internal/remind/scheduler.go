package remind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"minuteman/internal/alerts"
	"minuteman/internal/config"
	"minuteman/internal/logging"
	"minuteman/internal/minutes"
	"minuteman/internal/services"
	"minuteman/internal/store"
)

// Sender delivers one reminder message. Implementations post to the draft's
// thread with an assignee mention when one resolves.
type Sender interface {
	SendReminder(ctx context.Context, task *store.TaskRow, slotName string) error
}

// Scheduler computes reminder events for tasks and dispatches due ones.
type Scheduler struct {
	store    *store.Store
	sender   Sender
	alerts   alerts.Service
	logger   *slog.Logger
	location *time.Location
	slots    []Slot

	defaultHour  int
	scanInterval time.Duration
	lateGrace    time.Duration
	scanLimit    int

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}

	now func() time.Time
}

// NewScheduler builds a scheduler from the remind config section.
func NewScheduler(cfg *config.Config, st *store.Store, sender Sender, alertSvc alerts.Service, logger *slog.Logger) (*Scheduler, error) {
	location, err := time.LoadLocation(cfg.Remind.Timezone)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "remind", "load_location",
			fmt.Sprintf("timezone %q", cfg.Remind.Timezone), err)
	}
	slots, err := ParseSlots(cfg.Remind.Slots)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if alertSvc == nil {
		alertSvc = alerts.NewNop()
	}
	scanInterval := time.Duration(cfg.Remind.ScanIntervalSeconds) * time.Second
	if scanInterval <= 0 {
		scanInterval = time.Minute
	}
	lateGrace := time.Duration(cfg.Remind.LateGraceMinutes) * time.Minute
	if lateGrace <= 0 {
		lateGrace = 6 * time.Hour
	}
	return &Scheduler{
		store:        st,
		sender:       sender,
		alerts:       alertSvc,
		logger:       logging.NewComponentLogger(logger, "remind"),
		location:     location,
		slots:        slots,
		defaultHour:  cfg.Remind.DefaultHour,
		scanInterval: scanInterval,
		lateGrace:    lateGrace,
		scanLimit:    100,
		now:          time.Now,
	}, nil
}

// Location exposes the configured timezone for callers resolving due strings.
func (s *Scheduler) Location() *time.Location { return s.location }

// DefaultHour exposes the configured reminder hour for date-only deadlines.
func (s *Scheduler) DefaultHour() int { return s.defaultHour }

// ScheduleTask inserts the reminder events for one task. A task without a
// due string gets no reminders. A due string that fails to parse is a parse
// error; the caller logs it and moves on to sibling tasks. Slots whose
// instant already passed are still inserted; the scan loop applies the late
// dispatch policy uniformly.
func (s *Scheduler) ScheduleTask(ctx context.Context, task *store.TaskRow) error {
	if task.DueRaw == "" {
		return nil
	}
	due := task.DueAt
	if due == nil {
		resolved := minutes.ParseDue(task.DueRaw, s.location, s.defaultHour, s.now())
		if resolved == nil {
			return services.Wrap(services.ErrParse, "remind", "schedule_task",
				fmt.Sprintf("due %q on task %s/%d", task.DueRaw, task.DraftID, task.Index), nil)
		}
		due = resolved
	}
	local := due.In(s.location)
	for _, slot := range s.slots {
		at := slot.Resolve(local)
		created, err := s.store.ScheduleReminder(ctx, task.DraftID, task.Index, slot.Name, at)
		if err != nil {
			return err
		}
		if created {
			s.logger.Info("reminder scheduled",
				logging.String(logging.FieldDraftID, task.DraftID),
				logging.Int("task_index", task.Index),
				logging.String(logging.FieldSlot, slot.Name),
				logging.Time("at", at))
		}
	}
	return nil
}

// ScheduleDraft schedules reminders for every task of a draft. Parse
// failures are logged per task and do not stop siblings.
func (s *Scheduler) ScheduleDraft(ctx context.Context, draftID string) error {
	tasks, err := s.store.TasksByDraft(ctx, draftID)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if err := s.ScheduleTask(ctx, task); err != nil {
			if services.IsRetryable(err) {
				return err
			}
			s.logger.Warn("task scheduling skipped",
				logging.String(logging.FieldDraftID, draftID),
				logging.Int("task_index", task.Index),
				logging.Error(err))
		}
	}
	return nil
}

// Start launches the scan loop. It returns immediately; Stop drains the
// in-flight tick and waits for the loop to exit.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(s.scanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.ScanOnce(loopCtx)
			}
		}
	}()
}

// Stop cancels the scan loop and waits for it to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	stopped := s.stopped
	s.cancel = nil
	s.stopped = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stopped != nil {
		<-stopped
	}
}

// ScanOnce processes one batch of due reminder events. Each event is
// claimed before any side effect; losing a claim means another worker has
// it. Terminal outcomes are sent or skipped; a send failure releases the
// event for the next tick.
func (s *Scheduler) ScanOnce(ctx context.Context) {
	now := s.now()
	due, err := s.store.DueReminders(ctx, now, s.scanLimit)
	if err != nil {
		s.logger.Error("list due reminders", logging.Error(err))
		return
	}
	for _, event := range due {
		if ctx.Err() != nil {
			return
		}
		s.dispatch(ctx, event, now)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, event *store.ReminderRow, now time.Time) {
	claimed, err := s.store.ClaimReminderDispatch(ctx, event.ID)
	if err != nil {
		s.logger.Error("claim reminder",
			logging.Int64("reminder_id", event.ID),
			logging.Error(err))
		return
	}
	if !claimed {
		return
	}

	attrs := []any{
		logging.Int64("reminder_id", event.ID),
		logging.String(logging.FieldDraftID, event.DraftID),
		logging.Int("task_index", event.TaskIndex),
		logging.String(logging.FieldSlot, event.Slot),
	}

	task, err := s.store.Task(ctx, event.DraftID, event.TaskIndex)
	if err != nil {
		// The task list was rewritten underneath a claimed event; retire
		// the event instead of releasing it into a retry loop.
		if errors.Is(err, services.ErrNotFound) {
			if skipErr := s.store.MarkReminderSkipped(ctx, event.ID); skipErr != nil {
				s.logger.Error("skip orphaned reminder", append(attrs, logging.Error(skipErr))...)
				return
			}
			s.logger.Info("reminder skipped", append(attrs, logging.String("reason", "task removed"))...)
			return
		}
		s.logger.Error("load task for reminder", append(attrs, logging.Error(err))...)
		if releaseErr := s.store.ReleaseReminder(ctx, event.ID); releaseErr != nil {
			s.logger.Error("release reminder", append(attrs, logging.Error(releaseErr))...)
		}
		return
	}

	if reason := s.skipReason(task, event, now); reason != "" {
		if err := s.store.MarkReminderSkipped(ctx, event.ID); err != nil {
			s.logger.Error("skip reminder", append(attrs, logging.Error(err))...)
			return
		}
		s.logger.Info("reminder skipped", append(attrs, logging.String("reason", reason))...)
		return
	}

	if err := s.sender.SendReminder(ctx, task, event.Slot); err != nil {
		s.logger.Warn("reminder send failed", append(attrs, logging.Error(err))...)
		if alertErr := s.alerts.NotifyReminderError(ctx, event.DraftID, event.TaskIndex, err); alertErr != nil {
			s.logger.Warn("reminder alert failed", logging.Error(alertErr))
		}
		if releaseErr := s.store.ReleaseReminder(ctx, event.ID); releaseErr != nil {
			s.logger.Error("release reminder", append(attrs, logging.Error(releaseErr))...)
		}
		return
	}
	if err := s.store.MarkReminderSent(ctx, event.ID); err != nil {
		s.logger.Error("mark reminder sent", append(attrs, logging.Error(err))...)
		return
	}
	s.logger.Info("reminder sent", attrs...)
}

// skipReason decides whether a claimed event should be retired without
// sending. Late dispatch is allowed only inside the grace window and only
// while the deadline itself has not passed.
func (s *Scheduler) skipReason(task *store.TaskRow, event *store.ReminderRow, now time.Time) string {
	if task.Completed {
		return "task completed"
	}
	if task.DueAt != nil && now.After(*task.DueAt) {
		return "deadline elapsed"
	}
	if now.Sub(event.ScheduledAt) > s.lateGrace {
		return "past late-dispatch grace"
	}
	return ""
}
