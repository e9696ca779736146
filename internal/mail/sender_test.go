package mail_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"minuteman/internal/logging"
	"minuteman/internal/mail"
	"minuteman/internal/testsupport"
)

func TestSenderDisabledWhenUnconfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sender := mail.NewSender(cfg, logging.NewNop())
	if sender.Enabled() {
		t.Fatal("expected sender disabled without mail config")
	}
	if err := sender.SendDocument(context.Background(), "件名", "本文", "minutes.txt", []byte("doc")); err != nil {
		t.Fatalf("disabled send should be a no-op, got %v", err)
	}
}

func TestSenderEnabledRequiresRecipients(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Mail.Enabled = true
	cfg.Mail.SMTPHost = "smtp.example.test"
	cfg.Mail.Username = "bot@example.test"
	sender := mail.NewSender(cfg, logging.NewNop())
	if sender.Enabled() {
		t.Fatal("expected sender disabled without recipients")
	}

	cfg.Mail.To = "a@example.test, b@example.test"
	sender = mail.NewSender(cfg, logging.NewNop())
	if !sender.Enabled() {
		t.Fatal("expected sender enabled")
	}
}

func TestBuildMessageCarriesAttachment(t *testing.T) {
	message, err := mail.BuildMessage(
		"bot@example.test",
		[]string{"a@example.test"},
		"議事録: 定例会議",
		"議事録を添付します。",
		"議事録_定例会議.txt",
		[]byte("meeting minutes body"),
	)
	if err != nil {
		t.Fatalf("BuildMessage failed: %v", err)
	}

	text := string(message)
	if !strings.Contains(text, "From: bot@example.test\r\n") {
		t.Error("missing From header")
	}
	if !strings.Contains(text, "To: a@example.test\r\n") {
		t.Error("missing To header")
	}
	if !strings.Contains(text, "Subject: =?utf-8?q?") {
		t.Error("subject not RFC 2047 encoded")
	}
	if !strings.Contains(text, "multipart/mixed") {
		t.Error("missing multipart content type")
	}
	if !strings.Contains(text, "Content-Transfer-Encoding: base64") {
		t.Error("missing attachment encoding")
	}
	if !strings.Contains(text, "Content-Disposition: attachment") {
		t.Error("missing attachment disposition")
	}
	if bytes.Contains(message, []byte("meeting minutes body")) {
		t.Error("attachment body should be base64 encoded")
	}
}

func TestBuildMessageWithoutAttachment(t *testing.T) {
	message, err := mail.BuildMessage(
		"bot@example.test",
		[]string{"a@example.test"},
		"subject",
		"plain body",
		"",
		nil,
	)
	if err != nil {
		t.Fatalf("BuildMessage failed: %v", err)
	}
	if strings.Contains(string(message), "Content-Disposition: attachment") {
		t.Error("unexpected attachment part")
	}
	if !strings.Contains(string(message), "plain body") {
		t.Error("missing text body")
	}
}
