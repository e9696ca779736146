// Package mail delivers rendered minutes documents over SMTP. The sender
// speaks implicit TLS (the SMTPS port) and attaches the document to a short
// notification body. When the mail section is not configured the sender is
// disabled and delivery becomes a no-op the pipeline logs and skips.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"minuteman/internal/config"
	"minuteman/internal/logging"
	"minuteman/internal/services"
)

// Sender delivers documents as MIME attachments.
type Sender struct {
	host     string
	port     int
	username string
	password string
	to       []string
	enabled  bool
	timeout  time.Duration
	logger   *slog.Logger
}

// NewSender builds a sender from the mail config section. A disabled or
// incomplete section yields a sender whose Enabled reports false.
func NewSender(cfg *config.Config, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = logging.NewNop()
	}
	sender := &Sender{
		host:     strings.TrimSpace(cfg.Mail.SMTPHost),
		port:     cfg.Mail.SMTPPort,
		username: cfg.Mail.Username,
		password: cfg.Mail.Password,
		timeout:  30 * time.Second,
		logger:   logging.NewComponentLogger(logger, "mail"),
	}
	for _, addr := range strings.Split(cfg.Mail.To, ",") {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			sender.to = append(sender.to, trimmed)
		}
	}
	if sender.port == 0 {
		sender.port = 465
	}
	sender.enabled = cfg.Mail.Enabled && sender.host != "" && sender.username != "" && len(sender.to) > 0
	return sender
}

// Enabled reports whether delivery is configured.
func (s *Sender) Enabled() bool {
	return s.enabled
}

// SendDocument mails the document as an attachment. The subject may contain
// non-ASCII text; it is encoded per RFC 2047.
func (s *Sender) SendDocument(ctx context.Context, subject, body, attachmentName string, attachment []byte) error {
	if !s.enabled {
		s.logger.Debug("mail delivery disabled; skipping", logging.String("subject", subject))
		return nil
	}

	message, err := buildMessage(s.username, s.to, subject, body, attachmentName, attachment)
	if err != nil {
		return fmt.Errorf("build mail message: %w", err)
	}

	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	dialer := &net.Dialer{Timeout: s.timeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return services.Wrap(services.ErrTransient, "mail", "dial", "smtp connect failed", err)
	}
	conn := tls.Client(rawConn, &tls.Config{ServerName: s.host})
	if err := conn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return services.Wrap(services.ErrTransient, "mail", "dial", "tls handshake failed", err)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return services.Wrap(services.ErrTransient, "mail", "session", "smtp handshake failed", err)
	}
	defer client.Close()

	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	if err := client.Auth(auth); err != nil {
		return services.Wrap(services.ErrConfiguration, "mail", "auth", "smtp authentication failed", err)
	}
	if err := client.Mail(s.username); err != nil {
		return services.Wrap(services.ErrTransient, "mail", "send", "MAIL FROM rejected", err)
	}
	for _, recipient := range s.to {
		if err := client.Rcpt(recipient); err != nil {
			return services.Wrap(services.ErrTransient, "mail", "send", fmt.Sprintf("RCPT TO %s rejected", recipient), err)
		}
	}
	writer, err := client.Data()
	if err != nil {
		return services.Wrap(services.ErrTransient, "mail", "send", "DATA rejected", err)
	}
	if _, err := writer.Write(message); err != nil {
		writer.Close()
		return services.Wrap(services.ErrTransient, "mail", "send", "write message body", err)
	}
	if err := writer.Close(); err != nil {
		return services.Wrap(services.ErrTransient, "mail", "send", "finish message body", err)
	}
	if err := client.Quit(); err != nil {
		s.logger.Debug("smtp quit failed", logging.Error(err))
	}

	s.logger.Info("document mailed",
		logging.String("subject", subject),
		logging.Int("recipients", len(s.to)),
		logging.String("attachment", attachmentName),
	)
	return nil
}

func buildMessage(from string, to []string, subject, body, attachmentName string, attachment []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n", writer.Boundary())
	fmt.Fprintf(&buf, "\r\n")

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=UTF-8")
	textPart, err := writer.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := textPart.Write([]byte(body)); err != nil {
		return nil, err
	}

	if len(attachment) > 0 {
		encodedName := mime.QEncoding.Encode("utf-8", attachmentName)
		fileHeader := textproto.MIMEHeader{}
		fileHeader.Set("Content-Type", "application/octet-stream")
		fileHeader.Set("Content-Transfer-Encoding", "base64")
		fileHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", encodedName))
		filePart, err := writer.CreatePart(fileHeader)
		if err != nil {
			return nil, err
		}
		encoded := base64.StdEncoding.EncodeToString(attachment)
		for len(encoded) > 0 {
			line := encoded
			if len(line) > 76 {
				line = line[:76]
			}
			if _, err := filePart.Write([]byte(line + "\r\n")); err != nil {
				return nil, err
			}
			encoded = encoded[len(line):]
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
