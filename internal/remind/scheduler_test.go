package remind_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"minuteman/internal/remind"
	"minuteman/internal/store"
	"minuteman/internal/testsupport"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	fail  error
	calls int
}

func (r *recordingSender) SendReminder(ctx context.Context, task *store.TaskRow, slotName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fail != nil {
		return r.fail
	}
	r.sent = append(r.sent, slotName)
	return nil
}

func newScheduler(t *testing.T, sender remind.Sender) (*remind.Scheduler, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	scheduler, err := remind.NewScheduler(cfg, st, sender, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	return scheduler, st
}

func seedTask(t *testing.T, st *store.Store, dueRaw string, dueAt *time.Time) {
	t.Helper()
	ctx := context.Background()
	testsupport.SaveDraft(t, st, &store.DraftRow{ID: "draft-1", FileID: "file-1", Content: "{}"})
	task := store.TaskRow{Description: "資料を送付する", Assignee: "田中", DueRaw: dueRaw, DueAt: dueAt}
	if err := st.ReplaceTasks(ctx, "draft-1", []store.TaskRow{task}); err != nil {
		t.Fatalf("ReplaceTasks failed: %v", err)
	}
}

func TestScheduleDraftCreatesSlotEvents(t *testing.T) {
	sender := &recordingSender{}
	scheduler, st := newScheduler(t, sender)
	ctx := context.Background()

	loc := scheduler.Location()
	due := time.Date(2025, 10, 25, 15, 0, 0, 0, loc)
	seedTask(t, st, "2025-10-25 15:00", &due)

	if err := scheduler.ScheduleDraft(ctx, "draft-1"); err != nil {
		t.Fatalf("ScheduleDraft failed: %v", err)
	}

	events, err := st.RemindersByTask(ctx, "draft-1", 0)
	if err != nil {
		t.Fatalf("RemindersByTask failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected two events, got %d", len(events))
	}
	wantFirst := time.Date(2025, 10, 24, 10, 0, 0, 0, loc)
	wantSecond := time.Date(2025, 10, 25, 14, 0, 0, 0, loc)
	if !events[0].ScheduledAt.Equal(wantFirst) {
		t.Fatalf("first event at %v, want %v", events[0].ScheduledAt, wantFirst)
	}
	if !events[1].ScheduledAt.Equal(wantSecond) {
		t.Fatalf("second event at %v, want %v", events[1].ScheduledAt, wantSecond)
	}

	// Re-running scheduling must not duplicate events.
	if err := scheduler.ScheduleDraft(ctx, "draft-1"); err != nil {
		t.Fatalf("repeat ScheduleDraft failed: %v", err)
	}
	events, err = st.RemindersByTask(ctx, "draft-1", 0)
	if err != nil {
		t.Fatalf("RemindersByTask failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected two events after rerun, got %d", len(events))
	}
}

func TestScheduleDraftSkipsUnparseableDue(t *testing.T) {
	sender := &recordingSender{}
	scheduler, st := newScheduler(t, sender)
	ctx := context.Background()

	testsupport.SaveDraft(t, st, &store.DraftRow{ID: "draft-1", FileID: "file-1", Content: "{}"})
	tasks := []store.TaskRow{
		{Description: "あとで決める", DueRaw: "来週中"},
		{Description: "資料を送付する", DueRaw: "2025-10-25 15:00"},
	}
	if err := st.ReplaceTasks(ctx, "draft-1", tasks); err != nil {
		t.Fatalf("ReplaceTasks failed: %v", err)
	}

	if err := scheduler.ScheduleDraft(ctx, "draft-1"); err != nil {
		t.Fatalf("ScheduleDraft failed: %v", err)
	}
	bad, err := st.RemindersByTask(ctx, "draft-1", 0)
	if err != nil {
		t.Fatalf("RemindersByTask failed: %v", err)
	}
	if len(bad) != 0 {
		t.Fatalf("expected no events for unparseable due, got %d", len(bad))
	}
	good, err := st.RemindersByTask(ctx, "draft-1", 1)
	if err != nil {
		t.Fatalf("RemindersByTask failed: %v", err)
	}
	if len(good) != 2 {
		t.Fatalf("expected sibling task scheduled, got %d events", len(good))
	}
}

func TestScanOnceDispatchesDueReminder(t *testing.T) {
	sender := &recordingSender{}
	scheduler, st := newScheduler(t, sender)
	ctx := context.Background()

	loc := scheduler.Location()
	due := time.Date(2025, 10, 25, 15, 0, 0, 0, loc)
	seedTask(t, st, "2025-10-25 15:00", &due)
	if err := scheduler.ScheduleDraft(ctx, "draft-1"); err != nil {
		t.Fatalf("ScheduleDraft failed: %v", err)
	}

	// Half an hour past the 1h slot, still before the deadline. The
	// day-before slot is more than the grace window late by now.
	remind.SetNow(scheduler, func() time.Time {
		return time.Date(2025, 10, 25, 14, 30, 0, 0, loc)
	})
	scheduler.ScanOnce(ctx)

	if len(sender.sent) != 1 || sender.sent[0] != "1h" {
		t.Fatalf("expected only the 1h slot dispatched, got %v", sender.sent)
	}
	events, err := st.RemindersByTask(ctx, "draft-1", 0)
	if err != nil {
		t.Fatalf("RemindersByTask failed: %v", err)
	}
	for _, event := range events {
		switch event.Slot {
		case "1h":
			if event.Status != store.ReminderSent {
				t.Fatalf("expected 1h slot sent, got %s", event.Status)
			}
		case "day-before@10:00":
			if event.Status != store.ReminderSkipped {
				t.Fatalf("expected stale day-before slot skipped, got %s", event.Status)
			}
		}
	}

	// A second scan finds nothing to do.
	scheduler.ScanOnce(ctx)
	if sender.calls != 1 {
		t.Fatalf("expected no further sends, got %d calls", sender.calls)
	}
}

func TestScanOnceSkipsCompletedTask(t *testing.T) {
	sender := &recordingSender{}
	scheduler, st := newScheduler(t, sender)
	ctx := context.Background()

	loc := scheduler.Location()
	due := time.Date(2025, 10, 25, 15, 0, 0, 0, loc)
	seedTask(t, st, "2025-10-25 15:00", &due)
	if err := scheduler.ScheduleDraft(ctx, "draft-1"); err != nil {
		t.Fatalf("ScheduleDraft failed: %v", err)
	}
	if _, err := st.CompleteTask(ctx, "draft-1", 0); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}

	remind.SetNow(scheduler, func() time.Time {
		return time.Date(2025, 10, 25, 14, 30, 0, 0, loc)
	})
	scheduler.ScanOnce(ctx)

	if sender.calls != 0 {
		t.Fatalf("expected no sends for completed task, got %d", sender.calls)
	}
	events, err := st.RemindersByTask(ctx, "draft-1", 0)
	if err != nil {
		t.Fatalf("RemindersByTask failed: %v", err)
	}
	for _, event := range events {
		if event.Status != store.ReminderSkipped {
			t.Fatalf("expected skipped, got %s for slot %s", event.Status, event.Slot)
		}
	}
}

func TestScanOnceSkipsAfterDeadline(t *testing.T) {
	sender := &recordingSender{}
	scheduler, st := newScheduler(t, sender)
	ctx := context.Background()

	loc := scheduler.Location()
	due := time.Date(2025, 10, 25, 15, 0, 0, 0, loc)
	seedTask(t, st, "2025-10-25 15:00", &due)
	if err := scheduler.ScheduleDraft(ctx, "draft-1"); err != nil {
		t.Fatalf("ScheduleDraft failed: %v", err)
	}

	remind.SetNow(scheduler, func() time.Time {
		return time.Date(2025, 10, 25, 16, 0, 0, 0, loc)
	})
	scheduler.ScanOnce(ctx)

	if sender.calls != 0 {
		t.Fatalf("expected no sends after deadline, got %d", sender.calls)
	}
	events, err := st.RemindersByTask(ctx, "draft-1", 0)
	if err != nil {
		t.Fatalf("RemindersByTask failed: %v", err)
	}
	for _, event := range events {
		if event.Status != store.ReminderSkipped {
			t.Fatalf("expected skipped after deadline, got %s", event.Status)
		}
	}
}

func TestScanOnceReleasesOnSendFailure(t *testing.T) {
	sender := &recordingSender{fail: errors.New("slack 500")}
	scheduler, st := newScheduler(t, sender)
	ctx := context.Background()

	loc := scheduler.Location()
	due := time.Date(2025, 10, 25, 15, 0, 0, 0, loc)
	seedTask(t, st, "2025-10-25 15:00", &due)
	if err := scheduler.ScheduleDraft(ctx, "draft-1"); err != nil {
		t.Fatalf("ScheduleDraft failed: %v", err)
	}

	now := time.Date(2025, 10, 25, 14, 10, 0, 0, loc)
	remind.SetNow(scheduler, func() time.Time { return now })
	scheduler.ScanOnce(ctx)

	events, err := st.RemindersByTask(ctx, "draft-1", 0)
	if err != nil {
		t.Fatalf("RemindersByTask failed: %v", err)
	}
	for _, event := range events {
		if event.Slot == "1h" && event.Status != store.ReminderScheduled {
			t.Fatalf("expected failed send released to scheduled, got %s", event.Status)
		}
	}

	// Next tick retries and succeeds.
	sender.fail = nil
	scheduler.ScanOnce(ctx)
	if len(sender.sent) == 0 {
		t.Fatal("expected retry to dispatch")
	}
}

func TestScanOnceRetiresEventWithoutTask(t *testing.T) {
	sender := &recordingSender{}
	scheduler, st := newScheduler(t, sender)
	ctx := context.Background()

	// An event whose task was rewritten away must be retired, not
	// released into an endless retry loop.
	testsupport.SaveDraft(t, st, &store.DraftRow{ID: "draft-1", FileID: "file-1", Content: "{}"})
	at := time.Now().Add(-time.Minute)
	if _, err := st.ScheduleReminder(ctx, "draft-1", 7, "1h", at); err != nil {
		t.Fatalf("ScheduleReminder failed: %v", err)
	}

	scheduler.ScanOnce(ctx)

	events, err := st.RemindersByTask(ctx, "draft-1", 7)
	if err != nil {
		t.Fatalf("RemindersByTask failed: %v", err)
	}
	if len(events) != 1 || events[0].Status != store.ReminderSkipped {
		t.Fatalf("expected orphaned event skipped, got %#v", events)
	}
	if sender.calls != 0 {
		t.Fatalf("orphaned event must not send, got %d calls", sender.calls)
	}
}
