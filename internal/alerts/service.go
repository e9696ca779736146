package alerts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"minuteman/internal/config"
)

const userAgent = "Minuteman-Go/0.1.0"

// Service defines the alert surface exposed to workers.
type Service interface {
	NotifyPipelineFailed(ctx context.Context, fileID, stage string, err error) error
	NotifyDraftPosted(ctx context.Context, title, channel string) error
	NotifyDraftApproved(ctx context.Context, title string) error
	NotifyWatchLeaseLost(ctx context.Context, reason string) error
	NotifyReminderError(ctx context.Context, draftID string, taskIndex int, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds an alert service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Alerts.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Alerts.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		cfg:      cfg.Alerts,
	}
}

// NewNop returns a service that discards every alert.
func NewNop() Service { return noopService{} }

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	cfg      config.Alerts
}

func (n *ntfyService) NotifyPipelineFailed(ctx context.Context, fileID, stage string, err error) error {
	if !n.cfg.Failures {
		return nil
	}
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "Minuteman - Pipeline Failed",
		message:  fmt.Sprintf("File %s failed at %s: %s", fileID, stage, detail),
		tags:     []string{"minuteman", "pipeline", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDraftPosted(ctx context.Context, title, channel string) error {
	data := payload{
		title:   "Minuteman - Draft Posted",
		message: fmt.Sprintf("Minutes draft posted: %s (%s)", title, channel),
		tags:    []string{"minuteman", "draft", "posted"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDraftApproved(ctx context.Context, title string) error {
	data := payload{
		title:   "Minuteman - Approved",
		message: fmt.Sprintf("Minutes approved and delivered: %s", title),
		tags:    []string{"minuteman", "draft", "approved"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyWatchLeaseLost(ctx context.Context, reason string) error {
	if !n.cfg.WatchLease {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Minuteman - Watch Lease Lost",
		message:  fmt.Sprintf("Push channel dropped, polling only: %s", reason),
		tags:     []string{"minuteman", "watch", "lease"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReminderError(ctx context.Context, draftID string, taskIndex int, err error) error {
	if !n.cfg.Reminders {
		return nil
	}
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:   "Minuteman - Reminder Error",
		message: fmt.Sprintf("Reminder for task %s/%d failed: %s", draftID, taskIndex, detail),
		tags:    []string{"minuteman", "remind", "error"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Minuteman - Test",
		message:  "Notification system test",
		tags:     []string{"minuteman", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyPipelineFailed(context.Context, string, string, error) error  { return nil }
func (noopService) NotifyDraftPosted(context.Context, string, string) error            { return nil }
func (noopService) NotifyDraftApproved(context.Context, string) error                  { return nil }
func (noopService) NotifyWatchLeaseLost(context.Context, string) error                 { return nil }
func (noopService) NotifyReminderError(context.Context, string, int, error) error      { return nil }
func (noopService) TestNotification(context.Context) error                             { return nil }
