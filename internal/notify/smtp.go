package notify

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/MotionAge/sn-sub000/internal/common"
	"github.com/MotionAge/sn-sub000/internal/config"
)

// Dialer is the subset of *gomail.Dialer used by SMTPMailer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer delivers email through an SMTP relay.
type SMTPMailer struct {
	Dialer Dialer
	From   string
}

// NewSMTPMailer returns a mailer for cfg, or nil when no relay host is set.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	if !cfg.Enabled() {
		return nil
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &SMTPMailer{
		Dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		From:   from,
	}
}

// Send implements common.EmailSender. The context is checked before dialing;
// gomail itself does not take one.
func (m *SMTPMailer) Send(ctx context.Context, msg common.EmailMessage) error {
	if m == nil || m.Dialer == nil {
		return fmt.Errorf("smtp: mailer not configured")
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("smtp: recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.From)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.HTML)
	if err := m.Dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("smtp: send to %s: %w", msg.To, err)
	}
	return nil
}
