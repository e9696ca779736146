// Package api exposes the daemon's inbound HTTP surface: audio uploads,
// push notification callbacks from the watched folder, signed interaction
// callbacks from the messaging platform, and liveness/status reads.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"minuteman/internal/alerts"
	"minuteman/internal/config"
	"minuteman/internal/drive"
	"minuteman/internal/logging"
	"minuteman/internal/pipeline"
	"minuteman/internal/slack"
	"minuteman/internal/store"
)

type jobQueue interface {
	Enqueue(pipeline.Job) bool
}

type pushReceiver interface {
	Push(ctx context.Context, notification drive.PushNotification) error
	LeaseState() string
}

type pushVerifier interface {
	VerifyPushToken(notification drive.PushNotification) error
}

type reminderScheduler interface {
	ScheduleDraft(ctx context.Context, draftID string) error
	Location() *time.Location
	DefaultHour() int
}

type messagingClient interface {
	OpenView(ctx context.Context, triggerID string, view map[string]any) error
	UpdateMessage(ctx context.Context, channel, ts, text string, blocks []slack.Block) error
	PostThreadMessage(ctx context.Context, channel, threadTS, text string, blocks []slack.Block) (string, string, error)
	UploadFile(ctx context.Context, channel, threadTS, filename, title string, content []byte) error
}

// Handler holds the API route handlers.
type Handler struct {
	cfg       *config.Config
	store     *store.Store
	queue     jobQueue
	detector  pushReceiver
	verifier  pushVerifier
	slack     messagingClient
	scheduler reminderScheduler
	alerts    alerts.Service
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler wires the handlers. Detector and verifier may be nil when the
// drive integration is disabled; the webhook route then rejects callbacks.
func NewHandler(cfg *config.Config, st *store.Store, queue jobQueue, detector pushReceiver, verifier pushVerifier, slackClient messagingClient, scheduler reminderScheduler, alertSvc alerts.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if alertSvc == nil {
		alertSvc = alerts.NewNop()
	}
	return &Handler{
		cfg:       cfg,
		store:     st,
		queue:     queue,
		detector:  detector,
		verifier:  verifier,
		slack:     slackClient,
		scheduler: scheduler,
		alerts:    alertSvc,
		logger:    logging.NewComponentLogger(logger, "api"),
		now:       time.Now,
	}
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status handles GET /status with queue and scheduler counters.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.Health(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	watchState := "disabled"
	if h.detector != nil {
		watchState = h.detector.LeaseState()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"files":       summary.Files,
		"receipts":    summary.Receipts,
		"reminders":   summary.Reminders,
		"open_tasks":  summary.OpenTasks,
		"total_tasks": summary.TotalTasks,
		"watch":       watchState,
	})
}
