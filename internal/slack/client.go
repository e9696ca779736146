package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"minuteman/internal/config"
	"minuteman/internal/logging"
	"minuteman/internal/services"
)

const defaultAPIBase = "https://slack.com/api"

// Block is one Block Kit element. Payloads are built as loose maps; the
// platform validates structure server-side.
type Block = map[string]any

// Client is a minimal messaging API client covering the calls the pipeline
// needs.
type Client struct {
	token      string
	apiBase    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a client from the slack config section.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	token := strings.TrimSpace(cfg.Slack.BotToken)
	if token == "" {
		return nil, services.Wrap(services.ErrConfiguration, "slack", "new_client", "bot token is required", nil)
	}
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.Slack.APIBase), "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	timeout := time.Duration(cfg.Slack.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		token:      token,
		apiBase:    apiBase,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "slack"),
	}, nil
}

// PostMessage posts a new message and returns the resolved channel id and
// message timestamp. The timestamp is the platform's message identity and
// what threads anchor on.
func (c *Client) PostMessage(ctx context.Context, channel, text string, blocks []Block) (string, string, error) {
	return c.postMessage(ctx, channel, "", text, blocks)
}

// PostThreadMessage posts a reply into an existing message's thread.
func (c *Client) PostThreadMessage(ctx context.Context, channel, threadTS, text string, blocks []Block) (string, string, error) {
	return c.postMessage(ctx, channel, threadTS, text, blocks)
}

func (c *Client) postMessage(ctx context.Context, channel, threadTS, text string, blocks []Block) (string, string, error) {
	body := map[string]any{
		"channel": channel,
		"text":    text,
	}
	if threadTS != "" {
		body["thread_ts"] = threadTS
	}
	if len(blocks) > 0 {
		body["blocks"] = blocks
	}
	var result struct {
		apiResponse
		Channel string `json:"channel"`
		TS      string `json:"ts"`
	}
	if err := c.call(ctx, "chat.postMessage", body, &result); err != nil {
		return "", "", err
	}
	return result.Channel, result.TS, nil
}

// UpdateMessage replaces the text and blocks of an existing message.
func (c *Client) UpdateMessage(ctx context.Context, channel, ts, text string, blocks []Block) error {
	body := map[string]any{
		"channel": channel,
		"ts":      ts,
		"text":    text,
	}
	if len(blocks) > 0 {
		body["blocks"] = blocks
	}
	var result apiResponse
	return c.call(ctx, "chat.update", body, &result)
}

// OpenView opens a modal in response to an interaction trigger.
func (c *Client) OpenView(ctx context.Context, triggerID string, view map[string]any) error {
	body := map[string]any{
		"trigger_id": triggerID,
		"view":       view,
	}
	var result apiResponse
	return c.call(ctx, "views.open", body, &result)
}

// UploadFile attaches a file to a channel, optionally threaded, using the
// external upload flow: reserve an upload URL, push the bytes, complete.
func (c *Client) UploadFile(ctx context.Context, channel, threadTS, filename, title string, content []byte) error {
	var reserved struct {
		apiResponse
		UploadURL string `json:"upload_url"`
		FileID    string `json:"file_id"`
	}
	reserve := map[string]any{
		"filename": filename,
		"length":   len(content),
	}
	if err := c.call(ctx, "files.getUploadURLExternal", reserve, &reserved); err != nil {
		return err
	}

	if err := c.pushFile(ctx, reserved.UploadURL, filename, content); err != nil {
		return err
	}

	complete := map[string]any{
		"files": []map[string]any{{"id": reserved.FileID, "title": title}},
	}
	if channel != "" {
		complete["channel_id"] = channel
	}
	if threadTS != "" {
		complete["thread_ts"] = threadTS
	}
	var result apiResponse
	return c.call(ctx, "files.completeUploadExternal", complete, &result)
}

func (c *Client) pushFile(ctx context.Context, uploadURL, filename string, content []byte) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("write upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "slack", "upload_file", "push file bytes", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(services.ErrTransient, "slack", "upload_file",
			fmt.Sprintf("upload endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (r apiResponse) ok() bool       { return r.OK }
func (r apiResponse) apiErr() string { return r.Error }

type apiResult interface {
	ok() bool
	apiErr() string
}

func (c *Client) call(ctx context.Context, method string, body map[string]any, result apiResult) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "slack", method, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "slack", method, "read response", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return services.Wrap(services.ErrTransient, "slack", method,
			fmt.Sprintf("api returned %d", resp.StatusCode), nil)
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return services.Wrap(services.ErrParse, "slack", method, "decode response", err)
	}
	if !result.ok() {
		apiError := result.apiErr()
		c.logger.Warn("api call rejected",
			logging.String("method", method),
			logging.String("api_error", apiError))
		if retryableAPIError(apiError) {
			return services.Wrap(services.ErrTransient, "slack", method, apiError, nil)
		}
		return services.Wrap(services.ErrValidation, "slack", method, apiError, nil)
	}
	return nil
}

// retryableAPIError classifies platform error strings that a later attempt
// can succeed on.
func retryableAPIError(code string) bool {
	switch code {
	case "ratelimited", "rate_limited", "service_unavailable", "internal_error", "fatal_error", "request_timeout":
		return true
	}
	return false
}
