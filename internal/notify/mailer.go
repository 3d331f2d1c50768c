package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"onboard-backend/internal/config"
)

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(_ context.Context, recipient, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(m.cfg.Addr(), auth, m.cfg.From, []string{recipient}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", recipient, err)
	}
	return nil
}

// LogMailer writes notifications to the application log instead of sending
// them. Used when SMTP is not configured, so development setups still see
// what would have gone out.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, recipient, subject, _ string) error {
	log.Printf("mail (not sent, SMTP disabled): to=%s subject=%q", recipient, subject)
	return nil
}

// NewMailer picks the SMTP mailer when enabled, the log mailer otherwise.
func NewMailer(cfg config.SMTPConfig) Mailer {
	if cfg.Enabled {
		return NewSMTPMailer(cfg)
	}
	return LogMailer{}
}
