package analysis_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"minuteman/internal/analysis"
	"minuteman/internal/config"
	"minuteman/internal/services"
	"minuteman/internal/testsupport"
)

func newTestClient(t *testing.T, handler http.Handler) *analysis.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithAnalysisBaseURL(server.URL))
	client, err := analysis.NewClient(cfg,
		analysis.WithRetryBackoff(3, time.Millisecond, 10*time.Millisecond),
		analysis.WithSleeper(func(time.Duration) {}))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func chatContent(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
}

func TestCompleteJSONReturnsContent(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if format, _ := req["response_format"].(map[string]any); format["type"] != "json_object" {
			t.Errorf("expected json response format, got %v", req["response_format"])
		}
		_ = json.NewEncoder(w).Encode(chatContent(`{"ok":true}`))
	}))

	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON failed: %v", err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestCompleteJSONRetriesServerErrors(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(chatContent(`{"ok":true}`))
	}))

	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON failed: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected three attempts, got %d", attempts)
	}
}

func TestCompleteJSONHonorsRetryAfter(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(chatContent(`{"ok":true}`))
	}))

	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON failed: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected retry after 429, got %d attempts", attempts)
	}
}

func TestCompleteJSONTerminalOnClientError(t *testing.T) {
	attempts := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))

	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil || services.IsRetryable(err) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected no retries on 400, got %d attempts", attempts)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	cfg := config.Default()
	cfg.Analysis.APIKey = ""
	if _, err := analysis.NewClient(&cfg); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestTranscribeSendsMultipart(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if model := r.FormValue("model"); model != "whisper-1" {
			t.Errorf("unexpected model %q", model)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			file.Close()
			if header.Filename != "meeting.m4a" {
				t.Errorf("unexpected filename %q", header.Filename)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "会議の文字起こしです。"})
	}))

	text, err := client.Transcribe(context.Background(), "meeting.m4a", []byte("audio-bytes"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "会議の文字起こしです。" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestTranscribeRejectsEmptyAudio(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	if _, err := client.Transcribe(context.Background(), "empty.m4a", nil); err == nil {
		t.Fatal("expected validation error")
	}
}
