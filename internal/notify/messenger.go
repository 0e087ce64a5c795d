package notify

import (
	"context"
	"fmt"
)

// Messenger routes send_message actions to the configured channel senders.
// A nil sender disables its channel.
type Messenger struct {
	Email *EmailSender
	SMS   *SMSSender
}

func (m *Messenger) SendEmail(ctx context.Context, to, subject, body string) error {
	if m.Email == nil {
		return fmt.Errorf("email: %w", ErrChannelDisabled)
	}
	return m.Email.Send(ctx, to, subject, body)
}

func (m *Messenger) SendSMS(ctx context.Context, to, body string) error {
	if m.SMS == nil {
		return fmt.Errorf("sms: %w", ErrChannelDisabled)
	}
	return m.SMS.Send(ctx, to, body)
}
