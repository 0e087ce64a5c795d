package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/marminbh/automation-svc/internal/config"
)

func TestEmailSenderBuildsMessage(t *testing.T) {
	sender := NewEmailSender(config.EmailConfig{Host: "smtp.example.com", Username: "bot@example.com", Password: "pw"}, zap.NewNop())
	require.NotNil(t, sender)

	var sent *gomail.Message
	sender.send = func(m *gomail.Message) error {
		sent = m
		return nil
	}

	require.NoError(t, sender.Send(context.Background(), "buyer@acme.test", "Deal won", "<p>Congrats</p>"))
	require.NotNil(t, sent)
	assert.Equal(t, []string{"bot@example.com"}, sent.GetHeader("From"))
	assert.Equal(t, []string{"buyer@acme.test"}, sent.GetHeader("To"))
	assert.Equal(t, []string{"Deal won"}, sent.GetHeader("Subject"))

	sender.send = func(*gomail.Message) error { return errors.New("relay refused") }
	assert.ErrorContains(t, sender.Send(context.Background(), "a@b.test", "s", "b"), "relay refused")
}

func TestSendersDisabledWithoutConfig(t *testing.T) {
	assert.Nil(t, NewEmailSender(config.EmailConfig{}, zap.NewNop()))
	assert.Nil(t, NewSMSSender(config.SMSConfig{}, zap.NewNop()))

	m := &Messenger{}
	assert.ErrorIs(t, m.SendEmail(context.Background(), "a@b.test", "s", "b"), ErrChannelDisabled)
	assert.ErrorIs(t, m.SendSMS(context.Background(), "+15550100", "b"), ErrChannelDisabled)
}

func TestSMSSender(t *testing.T) {
	var got smsPayload
	var user, pass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/message", r.URL.Path)
		user, pass, _ = r.BasicAuth()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.PhoneNumbers[0] == "+15550199" {
			http.Error(w, "unknown number", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewSMSSender(config.SMSConfig{GatewayURL: server.URL + "/", Username: "gw", Password: "secret"}, zap.NewNop())
	m := &Messenger{SMS: sender}

	require.NoError(t, m.SendSMS(context.Background(), "+15550100", "Your deal closed"))
	assert.Equal(t, []string{"+15550100"}, got.PhoneNumbers)
	assert.Equal(t, "Your deal closed", got.TextMessage.Text)
	assert.Equal(t, "gw", user)
	assert.Equal(t, "secret", pass)

	err := m.SendSMS(context.Background(), "+15550199", "x")
	assert.ErrorContains(t, err, "unknown number")
}
