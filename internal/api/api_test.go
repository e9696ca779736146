package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"minuteman/internal/api"
	"minuteman/internal/config"
	"minuteman/internal/drive"
	"minuteman/internal/logging"
	"minuteman/internal/minutes"
	"minuteman/internal/pipeline"
	"minuteman/internal/slack"
	"minuteman/internal/store"
	"minuteman/internal/testsupport"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []pipeline.Job
	full bool
}

func (f *fakeQueue) Enqueue(job pipeline.Job) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.jobs = append(f.jobs, job)
	return true
}

type fakeDetector struct {
	mu     sync.Mutex
	pushes []drive.PushNotification
	secret string
}

func (f *fakeDetector) Push(ctx context.Context, notification drive.PushNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, notification)
	return nil
}

func (f *fakeDetector) LeaseState() string { return "poll-only" }

func (f *fakeDetector) VerifyPushToken(notification drive.PushNotification) error {
	if f.secret != "" && notification.Token != f.secret {
		return fmt.Errorf("token mismatch")
	}
	return nil
}

type fakeMessaging struct {
	mu          sync.Mutex
	views       int
	updates     []string
	threadPosts []string
	uploads     []string
}

func (f *fakeMessaging) OpenView(ctx context.Context, triggerID string, view map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views++
	return nil
}

func (f *fakeMessaging) UpdateMessage(ctx context.Context, channel, ts, text string, blocks []slack.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, text)
	return nil
}

func (f *fakeMessaging) PostThreadMessage(ctx context.Context, channel, threadTS, text string, blocks []slack.Block) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threadPosts = append(f.threadPosts, text)
	return channel, "1700000000.000300", nil
}

func (f *fakeMessaging) UploadFile(ctx context.Context, channel, threadTS, filename, title string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, filename)
	return nil
}

type fakeScheduler struct {
	mu     sync.Mutex
	drafts []string
	loc    *time.Location
}

func (f *fakeScheduler) ScheduleDraft(ctx context.Context, draftID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, draftID)
	return nil
}

func (f *fakeScheduler) Location() *time.Location { return f.loc }

func (f *fakeScheduler) DefaultHour() int { return 10 }

type fixture struct {
	server    *httptest.Server
	cfg       *config.Config
	store     *store.Store
	queue     *fakeQueue
	detector  *fakeDetector
	messaging *fakeMessaging
	scheduler *fakeScheduler
	secret    string
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = token
	st := testsupport.MustOpenStore(t, cfg)

	queue := &fakeQueue{}
	detector := &fakeDetector{secret: "push-secret"}
	messaging := &fakeMessaging{}
	scheduler := &fakeScheduler{loc: time.UTC}

	handler := api.NewHandler(cfg, st, queue, detector, detector, messaging, scheduler, nil, logging.NewNop())
	server := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(server.Close)

	return &fixture{
		server:    server,
		cfg:       cfg,
		store:     st,
		queue:     queue,
		detector:  detector,
		messaging: messaging,
		scheduler: scheduler,
		secret:    cfg.Slack.SigningSecret,
	}
}

func (f *fixture) seedDraft(t *testing.T, draftID string, approved bool, withReceipt bool) minutes.Draft {
	t.Helper()
	ctx := context.Background()
	draft := minutes.Draft{
		ID:        draftID,
		FileID:    "file-1",
		Title:     "定例会議",
		Summary:   "進捗確認を行った。",
		Actions:   "・資料作成（担当：田中、期限：2099-01-02 10:00）\n・議事録展開（担当：佐藤）",
		Decisions: "・リリース日を決定",
	}
	content, err := draft.Encode()
	if err != nil {
		t.Fatalf("encode draft: %v", err)
	}
	if err := f.store.SaveDraft(ctx, &store.DraftRow{ID: draftID, FileID: "file-1", Title: draft.Title, Content: content}); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}
	tasks := []store.TaskRow{
		{DraftID: draftID, Index: 0, Description: "資料作成", Assignee: "田中", DueRaw: "2099-01-02 10:00"},
		{DraftID: draftID, Index: 1, Description: "議事録展開", Assignee: "佐藤"},
	}
	if err := f.store.ReplaceTasks(ctx, draftID, tasks); err != nil {
		t.Fatalf("ReplaceTasks failed: %v", err)
	}
	if withReceipt {
		claimed, err := f.store.ClaimPosting(ctx, draftID)
		if err != nil || !claimed {
			t.Fatalf("ClaimPosting failed: claimed=%v err=%v", claimed, err)
		}
		if err := f.store.CompleteReceipt(ctx, draftID, "#minutes-test", "1700000000.000100"); err != nil {
			t.Fatalf("CompleteReceipt failed: %v", err)
		}
	}
	if approved {
		if err := f.store.MarkApproved(ctx, draftID); err != nil {
			t.Fatalf("MarkApproved failed: %v", err)
		}
	}
	return draft
}

func (f *fixture) postSigned(t *testing.T, payload map[string]any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	form := url.Values{"payload": []string{string(encoded)}}
	body := []byte(form.Encode())

	ts := fmt.Sprintf("%d", time.Now().Unix())
	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/slack/actions", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", slack.Sign(f.secret, ts, body))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, "")
	resp, err := http.Get(f.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestStatusReportsCounts(t *testing.T) {
	f := newFixture(t, "")
	testsupport.ClaimFile(t, f.store, "file-1")

	resp, err := http.Get(f.server.URL + "/status")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var status struct {
		Files map[string]int `json:"files"`
		Watch string         `json:"watch"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Files["processing"] != 1 {
		t.Fatalf("unexpected file counts: %#v", status.Files)
	}
	if status.Watch != "poll-only" {
		t.Fatalf("unexpected watch state %q", status.Watch)
	}
}

func uploadRequest(t *testing.T, serverURL, token string, withFile bool) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if withFile {
		part, err := writer.CreateFormFile("file", "meeting.m4a")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte("fake audio")); err != nil {
			t.Fatalf("write audio: %v", err)
		}
	}
	if err := writer.WriteField("title", "定例会議"); err != nil {
		t.Fatalf("write title: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, serverURL+"/upload", &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadEnqueuesJob(t *testing.T) {
	f := newFixture(t, "")
	resp := uploadRequest(t, f.server.URL, "", true)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var accepted struct {
		Accepted bool   `json:"accepted"`
		FileID   string `json:"file_id"`
		DraftID  string `json:"draft_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !accepted.Accepted || accepted.DraftID != pipeline.DeriveDraftID(accepted.FileID) {
		t.Fatalf("unexpected response: %#v", accepted)
	}

	if len(f.queue.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(f.queue.jobs))
	}
	job := f.queue.jobs[0]
	if job.FileID != accepted.FileID || !strings.HasPrefix(job.Name, "定例会議") {
		t.Fatalf("unexpected job: %#v", job)
	}
	if _, err := os.Stat(job.LocalPath); err != nil {
		t.Fatalf("uploaded audio not stored: %v", err)
	}
}

func TestUploadRequiresFile(t *testing.T) {
	f := newFixture(t, "")
	resp := uploadRequest(t, f.server.URL, "", false)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestUploadRequiresToken(t *testing.T) {
	f := newFixture(t, "api-token")
	resp := uploadRequest(t, f.server.URL, "", true)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = uploadRequest(t, f.server.URL, "api-token", true)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 with token, got %d", resp.StatusCode)
	}
}

func TestUploadQueueFullIsRetryable(t *testing.T) {
	f := newFixture(t, "")
	f.queue.full = true
	resp := uploadRequest(t, f.server.URL, "", true)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestDriveWebhookFeedsDetector(t *testing.T) {
	f := newFixture(t, "")
	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/webhooks/drive", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-Goog-Channel-Id", "chan-1")
	req.Header.Set("X-Goog-Resource-State", "update")
	req.Header.Set("X-Goog-Channel-Token", "push-secret")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if len(f.detector.pushes) != 1 || f.detector.pushes[0].ChannelID != "chan-1" {
		t.Fatalf("detector not fed: %#v", f.detector.pushes)
	}
}

func TestDriveWebhookRejectsBadToken(t *testing.T) {
	f := newFixture(t, "")
	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/webhooks/drive", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-Goog-Channel-Id", "chan-1")
	req.Header.Set("X-Goog-Channel-Token", "wrong")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if len(f.detector.pushes) != 0 {
		t.Fatal("rejected push must not reach the detector")
	}
}

func TestJobsListFiltersByStatus(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	testsupport.ClaimFile(t, f.store, "file-ok")
	if err := f.store.MarkDone(ctx, "file-ok", "draft-ok"); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	testsupport.ClaimFile(t, f.store, "file-bad")
	if err := f.store.MarkFailed(ctx, "file-bad", "transcription failed"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	resp, err := http.Get(f.server.URL + "/jobs?status=failed")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var listing struct {
		Jobs []struct {
			FileID string `json:"file_id"`
			Status string `json:"status"`
			Reason string `json:"reason"`
		} `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Jobs) != 1 || listing.Jobs[0].FileID != "file-bad" {
		t.Fatalf("unexpected listing: %#v", listing.Jobs)
	}
	if listing.Jobs[0].Reason != "transcription failed" {
		t.Fatalf("reason missing: %#v", listing.Jobs[0])
	}
}

func TestJobsListRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t, "")
	resp, err := http.Get(f.server.URL + "/jobs?status=bogus")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRetryJobRequeuesFailedFile(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	testsupport.ClaimFile(t, f.store, "file-bad")
	if err := f.store.MarkFailed(ctx, "file-bad", "summarization failed"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	if err := os.MkdirAll(f.cfg.UploadDir(), 0o755); err != nil {
		t.Fatalf("create upload dir: %v", err)
	}
	audioPath := filepath.Join(f.cfg.UploadDir(), "file-bad.m4a")
	if err := os.WriteFile(audioPath, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write audio copy: %v", err)
	}

	resp, err := http.Post(f.server.URL+"/jobs/file-bad/retry", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if len(f.queue.jobs) != 1 || f.queue.jobs[0].LocalPath != audioPath {
		t.Fatalf("job not enqueued from stored audio: %#v", f.queue.jobs)
	}
}

func TestRetryJobRejectsNonFailedFile(t *testing.T) {
	f := newFixture(t, "")
	testsupport.ClaimFile(t, f.store, "file-live")

	resp, err := http.Post(f.server.URL+"/jobs/file-live/retry", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	resp, err = http.Post(f.server.URL+"/jobs/file-missing/retry", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown file, got %d", resp.StatusCode)
	}
}

func TestTasksListsOpenItems(t *testing.T) {
	f := newFixture(t, "")
	f.seedDraft(t, "draft-1", true, false)

	resp, err := http.Get(f.server.URL + "/tasks")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var listing struct {
		Tasks []struct {
			DraftID     string `json:"draft_id"`
			Description string `json:"description"`
			Assignee    string `json:"assignee"`
		} `json:"tasks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Tasks) != 2 {
		t.Fatalf("expected two open tasks, got %#v", listing.Tasks)
	}
	if listing.Tasks[0].Assignee != "田中" {
		t.Fatalf("unexpected first task: %#v", listing.Tasks[0])
	}
}

func TestSlackActionsRejectsBadSignature(t *testing.T) {
	f := newFixture(t, "")
	body := []byte("payload={}")
	ts := fmt.Sprintf("%d", time.Now().Unix())

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/slack/actions", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0=deadbeef")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestApproveIsOneShot(t *testing.T) {
	f := newFixture(t, "")
	f.seedDraft(t, "draft-1", false, true)

	payload := map[string]any{
		"type":       "block_actions",
		"trigger_id": "trig-1",
		"actions":    []map[string]any{{"action_id": slack.ActionApprove, "value": "draft-1"}},
		"channel":    map[string]any{"id": "#minutes-test"},
		"message":    map[string]any{"ts": "1700000000.000100"},
	}
	resp := f.postSigned(t, payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	row, err := f.store.Draft(context.Background(), "draft-1")
	if err != nil {
		t.Fatalf("Draft failed: %v", err)
	}
	if !row.Approved {
		t.Fatal("draft not approved")
	}
	if len(f.messaging.uploads) != 1 || !strings.Contains(f.messaging.uploads[0], "design_checklist") {
		t.Fatalf("checklist not uploaded: %#v", f.messaging.uploads)
	}

	resp = f.postSigned(t, payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second approve should be silent, got %d", resp.StatusCode)
	}
	if len(f.messaging.uploads) != 1 {
		t.Fatalf("second approve must not re-upload: %#v", f.messaging.uploads)
	}
}

func TestEditOpensModal(t *testing.T) {
	f := newFixture(t, "")
	f.seedDraft(t, "draft-1", false, true)

	payload := map[string]any{
		"type":       "block_actions",
		"trigger_id": "trig-1",
		"actions":    []map[string]any{{"action_id": slack.ActionEdit, "value": "draft-1"}},
	}
	resp := f.postSigned(t, payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if f.messaging.views != 1 {
		t.Fatalf("expected modal open, got %d", f.messaging.views)
	}
}

func TestEditSubmitUpdatesDraftAndMessage(t *testing.T) {
	f := newFixture(t, "")
	f.seedDraft(t, "draft-1", false, true)

	payload := map[string]any{
		"type": "view_submission",
		"view": map[string]any{
			"callback_id":      slack.CallbackEditSubmit,
			"private_metadata": "draft-1",
			"state": map[string]any{
				"values": map[string]any{
					"summary":   map[string]any{"inp": map[string]any{"value": "修正したサマリー"}},
					"decisions": map[string]any{"inp": map[string]any{"value": "・日程を再調整"}},
				},
			},
		},
	}
	resp := f.postSigned(t, payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	row, err := f.store.Draft(context.Background(), "draft-1")
	if err != nil {
		t.Fatalf("Draft failed: %v", err)
	}
	draft, err := minutes.DecodeDraft(row.Content)
	if err != nil {
		t.Fatalf("DecodeDraft failed: %v", err)
	}
	if draft.Summary != "修正したサマリー" {
		t.Fatalf("summary not updated: %q", draft.Summary)
	}
	if draft.Title != "定例会議" {
		t.Fatalf("title must survive the edit: %q", draft.Title)
	}
	if len(f.messaging.updates) != 1 {
		t.Fatalf("preview message not refreshed: %#v", f.messaging.updates)
	}
}

func TestEditSubmitReparsesTasks(t *testing.T) {
	f := newFixture(t, "")
	f.seedDraft(t, "draft-1", false, true)
	ctx := context.Background()
	if _, err := f.store.ScheduleReminder(ctx, "draft-1", 0, "1h", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("ScheduleReminder failed: %v", err)
	}

	payload := map[string]any{
		"type": "view_submission",
		"view": map[string]any{
			"callback_id":      slack.CallbackEditSubmit,
			"private_metadata": "draft-1",
			"state": map[string]any{
				"values": map[string]any{
					"summary": map[string]any{"inp": map[string]any{"value": "修正したサマリー"}},
					"actions": map[string]any{"inp": map[string]any{"value": "・テスト計画の見直し（担当：鈴木、期限：2099-03-01）"}},
				},
			},
		},
	}
	resp := f.postSigned(t, payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	tasks, err := f.store.TasksByDraft(ctx, "draft-1")
	if err != nil {
		t.Fatalf("TasksByDraft failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected edited task list to replace the old one, got %d tasks", len(tasks))
	}
	if tasks[0].Description != "テスト計画の見直し" || tasks[0].Assignee != "鈴木" {
		t.Fatalf("task does not follow the edited content: %#v", tasks[0])
	}
	if tasks[0].DueAt == nil {
		t.Fatalf("due instant not resolved from edited content")
	}

	stale, err := f.store.RemindersByTask(ctx, "draft-1", 0)
	if err != nil {
		t.Fatalf("RemindersByTask failed: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("pre-edit scheduled reminders must be dropped, got %#v", stale)
	}
	if len(f.scheduler.drafts) != 1 || f.scheduler.drafts[0] != "draft-1" {
		t.Fatalf("edited draft not rescheduled: %#v", f.scheduler.drafts)
	}
}

func TestEditSubmitRejectedAfterApproval(t *testing.T) {
	f := newFixture(t, "")
	f.seedDraft(t, "draft-1", true, true)

	payload := map[string]any{
		"type": "view_submission",
		"view": map[string]any{
			"callback_id":      slack.CallbackEditSubmit,
			"private_metadata": "draft-1",
			"state": map[string]any{
				"values": map[string]any{
					"summary": map[string]any{"inp": map[string]any{"value": "承認後の編集"}},
				},
			},
		},
	}
	resp := f.postSigned(t, payload)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 after approval, got %d", resp.StatusCode)
	}
}

func TestTaskCompleteIsIdempotent(t *testing.T) {
	f := newFixture(t, "")
	f.seedDraft(t, "draft-1", false, true)
	ctx := context.Background()
	if _, err := f.store.ScheduleReminder(ctx, "draft-1", 0, "1h", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("ScheduleReminder failed: %v", err)
	}

	payload := map[string]any{
		"type":    "block_actions",
		"actions": []map[string]any{{"action_id": slack.ActionTaskComplete, "value": "draft-1:0"}},
		"channel": map[string]any{"id": "#minutes-test"},
		"message": map[string]any{"ts": "1700000000.000200"},
	}
	resp := f.postSigned(t, payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	task, err := f.store.Task(ctx, "draft-1", 0)
	if err != nil {
		t.Fatalf("Task failed: %v", err)
	}
	if !task.Completed {
		t.Fatal("task not completed")
	}
	reminders, err := f.store.RemindersByTask(ctx, "draft-1", 0)
	if err != nil {
		t.Fatalf("RemindersByTask failed: %v", err)
	}
	if len(reminders) != 1 || reminders[0].Status != store.ReminderSkipped {
		t.Fatalf("reminder not retired: %#v", reminders)
	}
	if len(f.messaging.updates) != 1 {
		t.Fatalf("task message not refreshed: %#v", f.messaging.updates)
	}

	resp = f.postSigned(t, payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second completion should be a no-op success, got %d", resp.StatusCode)
	}
	if len(f.messaging.updates) != 2 {
		t.Fatal("second completion should still refresh the rendering")
	}
}
