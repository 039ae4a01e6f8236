// Package mail delivers transactional email through a primary HTTP
// provider (Resend) with an SMTP relay as the configured alternative.
// The backend is chosen once at startup, not retried per call.
package mail

import (
	"context"
	"log"
	"strings"
)

// Message is the logical payload both backends accept.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer sends a single transactional message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Settings selects and configures a backend.
type Settings struct {
	From         string
	ResendAPIKey string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// New picks the backend from the settings: a Resend API key wins,
// otherwise SMTP, otherwise a log-only mailer for development.
func New(s Settings) Mailer {
	if s.ResendAPIKey != "" {
		return NewResendMailer(s.ResendAPIKey, s.From)
	}
	if s.SMTPHost != "" {
		return NewSMTPMailer(s)
	}
	log.Printf("Mail: no provider configured, using log-only mailer")
	return LogMailer{}
}

// LogMailer logs instead of sending. Development fallback only.
type LogMailer struct{}

// Send logs the message metadata and drops the body.
func (LogMailer) Send(_ context.Context, msg Message) error {
	log.Printf("Mail (log-only): to=%s subject=%q", MaskAddress(msg.To), msg.Subject)
	return nil
}

// MaskAddress masks an email address for logging (e.g. al****@example.com).
func MaskAddress(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "****"
	}
	local := email[:at]
	if len(local) <= 2 {
		return "****" + email[at:]
	}
	return local[:2] + strings.Repeat("*", len(local)-2) + email[at:]
}
