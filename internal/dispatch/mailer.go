package dispatch

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"

	"agrisense/internal/config"
)

// SMTPMailer delivers email actions over plain SMTP.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer creates an SMTP-backed mailer.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers one message. net/smtp has no context support; the
// dial/send runs to completion or error.
func (m *SMTPMailer) Send(_ context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.cfg.From, to, subject, body)
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogMailer is used when no SMTP server is configured: email actions
// degrade to a log line instead of failing the dispatch.
type LogMailer struct {
	log *zap.Logger
}

// NewLogMailer creates the logging fallback mailer.
func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.log.Info("email action (no SMTP configured)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}
