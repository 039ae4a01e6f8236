package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// SMTPMailer sends through a plain SMTP relay.
type SMTPMailer struct {
	settings Settings
}

// NewSMTPMailer creates an SMTP-backed mailer
func NewSMTPMailer(s Settings) *SMTPMailer {
	return &SMTPMailer{settings: s}
}

// Send dials the relay and submits the message.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	message := gomail.NewMsg()
	if err := message.From(m.settings.From); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := message.To(msg.To); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	message.Subject(msg.Subject)
	message.SetBodyString(gomail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		message.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	}

	opts := []gomail.Option{
		gomail.WithPort(m.settings.SMTPPort),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if m.settings.SMTPUsername != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.settings.SMTPUsername),
			gomail.WithPassword(m.settings.SMTPPassword),
		)
	}

	client, err := gomail.NewClient(m.settings.SMTPHost, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, message); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
