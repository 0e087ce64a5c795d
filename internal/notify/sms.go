package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marminbh/automation-svc/internal/config"
)

// SMSSender posts text messages to an SMS gateway
type SMSSender struct {
	url      string
	username string
	password string
	client   *http.Client
	logger   *zap.Logger
}

type smsPayload struct {
	TextMessage struct {
		Text string `json:"text"`
	} `json:"textMessage"`
	PhoneNumbers []string `json:"phoneNumbers"`
}

// NewSMSSender returns nil when no gateway is configured
func NewSMSSender(cfg config.SMSConfig, logger *zap.Logger) *SMSSender {
	if cfg.GatewayURL == "" {
		return nil
	}
	return &SMSSender{
		url:      strings.TrimRight(cfg.GatewayURL, "/") + "/message",
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

func (s *SMSSender) Send(ctx context.Context, to, body string) error {
	payload := smsPayload{PhoneNumbers: []string{to}}
	payload.TextMessage.Text = body

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SMS payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("SMS gateway returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	s.logger.Debug("SMS sent", zap.String("to", to), zap.Int("status", resp.StatusCode))
	return nil
}
