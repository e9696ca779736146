package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"minuteman/internal/config"
	"minuteman/internal/services"
)

const (
	defaultChatURL       = "https://api.openai.com/v1/chat/completions"
	defaultTranscribeURL = "https://api.openai.com/v1/audio/transcriptions"
	defaultChatModel     = "gpt-4o-mini"
	defaultWhisperModel  = "whisper-1"

	defaultHTTPTimeout    = 120 * time.Second
	defaultRetryAttempts  = 5
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

// Client talks to an OpenAI-compatible API for transcription and
// summarization.
type Client struct {
	apiKey        string
	chatURL       string
	chatModel     string
	transcribeURL string
	whisperModel  string
	httpClient    *http.Client

	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	sleeper        func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithRetryBackoff overrides retry pacing, mainly for tests.
func WithRetryBackoff(attempts int, base, maxDelay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.retryAttempts = attempts
		}
		if base >= 0 {
			c.retryBaseDelay = base
		}
		if maxDelay > 0 {
			c.retryMaxDelay = maxDelay
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient builds a client from the analysis config section.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.Analysis.APIKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "analysis", "new_client", "api key is required", nil)
	}
	timeout := defaultHTTPTimeout
	if cfg.Analysis.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Analysis.TimeoutSeconds) * time.Second
	}
	client := &Client{
		apiKey:         apiKey,
		chatURL:        strings.TrimSpace(cfg.Analysis.BaseURL),
		chatModel:      strings.TrimSpace(cfg.Analysis.Model),
		transcribeURL:  strings.TrimSpace(cfg.Analysis.TranscribeURL),
		whisperModel:   strings.TrimSpace(cfg.Analysis.TranscribeModel),
		httpClient:     &http.Client{Timeout: timeout},
		retryAttempts:  defaultRetryAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		retryMaxDelay:  defaultRetryMaxDelay,
	}
	if cfg.Analysis.RetryAttempts > 0 {
		client.retryAttempts = cfg.Analysis.RetryAttempts
	}
	if client.chatURL == "" {
		client.chatURL = defaultChatURL
	}
	if client.chatModel == "" {
		client.chatModel = defaultChatModel
	}
	if client.transcribeURL == "" {
		client.transcribeURL = defaultTranscribeURL
	}
	if client.whisperModel == "" {
		client.whisperModel = defaultWhisperModel
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// CompleteJSON issues a JSON-only chat completion and returns the raw JSON
// payload produced by the model.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" || userPrompt == "" {
		return "", services.Wrap(services.ErrValidation, "analysis", "complete_json", "both prompts are required", nil)
	}
	payload := chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0.2,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var content string
	err := c.withRetry(ctx, "complete_json", func(ctx context.Context) error {
		var err error
		content, err = c.sendChatOnce(ctx, payload)
		return err
	})
	return content, err
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("analysis request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (c *Client) sendChatOnce(ctx context.Context, payload chatRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &httpStatusError{StatusCode: resp.StatusCode, Body: string(body), RetryAfter: retryAfter}
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("chat api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	if len(completion.Choices) > 0 {
		if refusal := strings.TrimSpace(completion.Choices[0].Message.Refusal); refusal != "" {
			return "", services.Wrap(services.ErrParse, "analysis", "complete_json",
				fmt.Sprintf("model refused: %s", refusal), nil)
		}
	}
	return "", errors.New("chat response has no content")
}

// withRetry runs one network call with exponential backoff on transient
// failures, honoring Retry-After when the server sets it.
func (c *Client) withRetry(ctx context.Context, operation string, call func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		lastErr = call(ctx)
		if lastErr == nil {
			return nil
		}
		delay, retry := c.retryDelay(ctx, lastErr, attempt)
		if !retry {
			return c.classify(operation, lastErr)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return services.Wrap(services.ErrTransient, "analysis", operation,
		fmt.Sprintf("failed after %d attempts", c.retryAttempts), lastErr)
}

func (c *Client) classify(operation string, err error) error {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "analysis", operation, "api unavailable", err)
		default:
			return services.Wrap(services.ErrValidation, "analysis", operation, "rejected by api", err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if services.IsRetryable(err) {
		return services.Wrap(services.ErrTransient, "analysis", operation, "request failed", err)
	}
	return err
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if attempt >= c.retryAttempts || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	if strings.Contains(err.Error(), "connection refused") {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > c.retryMaxDelay/2 {
			return c.retryMaxDelay
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
