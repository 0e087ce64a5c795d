// Package notify sends the outbound email and SMS behind send_message actions.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/marminbh/automation-svc/internal/config"
)

// ErrChannelDisabled is returned when a channel has no configuration
var ErrChannelDisabled = errors.New("channel not configured")

// EmailSender sends mail through an SMTP relay
type EmailSender struct {
	dialer *gomail.Dialer
	from   string
	send   func(m *gomail.Message) error
	logger *zap.Logger
}

// NewEmailSender returns nil when no SMTP host is configured
func NewEmailSender(cfg config.EmailConfig, logger *zap.Logger) *EmailSender {
	if cfg.Host == "" {
		return nil
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	d := gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &EmailSender{
		dialer: d,
		from:   from,
		send:   func(m *gomail.Message) error { return d.DialAndSend(m) },
		logger: logger,
	}
}

// Send delivers one message. Bodies that look like HTML are sent as HTML.
func (e *EmailSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	if looksLikeHTML(body) {
		m.SetBody("text/html", body)
	} else {
		m.SetBody("text/plain", body)
	}

	if err := e.send(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	e.logger.Debug("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

func looksLikeHTML(body string) bool {
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, "<") && strings.HasSuffix(trimmed, ">")
}
