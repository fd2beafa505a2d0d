package notify

import (
	"context"
	"fmt"

	"github.com/cloudcost-tools/cost-sentinel/pkg/model"
	"github.com/wneessen/go-mail"
)

// EmailConfig holds the SMTP settings for the email channel.
type EmailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
}

// EmailChannel delivers alerts as plain-text mail over SMTP with STARTTLS
// and authenticated login.
type EmailChannel struct {
	client     *mail.Client
	from       string
	recipients []string
}

// NewEmailChannel creates an email channel from SMTP settings.
func NewEmailChannel(cfg EmailConfig) (*EmailChannel, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if len(cfg.Recipients) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &EmailChannel{
		client:     client,
		from:       from,
		recipients: cfg.Recipients,
	}, nil
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, alert model.Alert) error {
	msg := mail.NewMsg()
	if err := msg.From(e.from); err != nil {
		return fmt.Errorf("set mail sender: %w", err)
	}
	if err := msg.To(e.recipients...); err != nil {
		return fmt.Errorf("set mail recipients: %w", err)
	}
	msg.Subject(FormatEmailSubject(alert))
	msg.SetBodyString(mail.TypeTextPlain, FormatEmailBody(alert))

	if err := e.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send alert mail: %w", err)
	}
	return nil
}
