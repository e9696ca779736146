package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"minuteman/internal/services"
)

// Transcribe sends audio to the Whisper-style transcription endpoint and
// returns the recognized text. The whole payload is buffered per attempt so
// retries resend identical bytes.
func (c *Client) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", services.Wrap(services.ErrValidation, "analysis", "transcribe", "audio is empty", nil)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("model", c.whisperModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}
	body := buf.Bytes()
	contentType := writer.FormDataContentType()

	var text string
	err = c.withRetry(ctx, "transcribe", func(ctx context.Context) error {
		var err error
		text, err = c.sendTranscribeOnce(ctx, contentType, body)
		return err
	})
	return text, err
}

func (c *Client) sendTranscribeOnce(ctx context.Context, contentType string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.transcribeURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build transcribe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcribe response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &httpStatusError{StatusCode: resp.StatusCode, Body: string(raw), RetryAfter: retryAfter}
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode transcribe response: %w", err)
	}
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return "", services.Wrap(services.ErrParse, "analysis", "transcribe", "transcription returned no text", nil)
	}
	return text, nil
}
