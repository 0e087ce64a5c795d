package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/marminbh/automation-svc/internal/config"
	"github.com/marminbh/automation-svc/internal/models"
	"github.com/marminbh/automation-svc/internal/store"
)

// Repository is the persistence the delivery service needs
type Repository interface {
	GetSubscription(ctx context.Context, id uuid.UUID) (*models.WebhookSubscription, error)
	CreateDeliveryLog(ctx context.Context, log *models.DeliveryLog) error
	CompleteAttempt(ctx context.Context, id uuid.UUID, attempt int, res store.AttemptResult) error
	RecordDeliverySuccess(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordDeliveryFailure(ctx context.Context, id uuid.UUID, at time.Time, reason string, terminal bool) error
}

// DeliveryOutcome reports how one attempt ended
type DeliveryOutcome struct {
	LogID       uuid.UUID             `json:"logId"`
	Status      models.DeliveryStatus `json:"status"`
	Attempts    int                   `json:"attempts"`
	HTTPStatus  *int                  `json:"httpStatus,omitempty"`
	LatencyMs   int                   `json:"latencyMs"`
	Error       string                `json:"error,omitempty"`
	NextRetryAt *time.Time            `json:"nextRetryAt,omitempty"`
}

// Service signs, sends and records webhook deliveries
type Service struct {
	repo   Repository
	client *http.Client
	cfg    config.DeliveryConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a delivery service. Per-request deadlines come from each
// subscription, so the shared client carries no timeout of its own.
func NewService(repo Repository, cfg config.DeliveryConfig, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		client: &http.Client{},
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source used for timestamps and backoff
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithHTTPClient replaces the outbound client
func (s *Service) WithHTTPClient(client *http.Client) *Service {
	s.client = client
	return s
}

// Deliver creates a delivery log row for event and performs the first attempt
func (s *Service) Deliver(ctx context.Context, sub *models.WebhookSubscription, event string, ectx models.EventContext) (*DeliveryOutcome, error) {
	log, err := s.newLog(sub, event, ectx, models.DeliveryPending, 1)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateDeliveryLog(ctx, log); err != nil {
		return nil, err
	}
	return s.Send(ctx, log, sub)
}

// Defer records a delivery that could not be started now. The row is due
// immediately and the retry sweep makes the first attempt.
func (s *Service) Defer(ctx context.Context, sub *models.WebhookSubscription, event string, ectx models.EventContext) error {
	log, err := s.newLog(sub, event, ectx, models.DeliveryRetrying, 0)
	if err != nil {
		return err
	}
	due := log.CreatedAt
	log.NextRetryAt = &due
	return s.repo.CreateDeliveryLog(ctx, log)
}

func (s *Service) newLog(sub *models.WebhookSubscription, event string, ectx models.EventContext, status models.DeliveryStatus, attempts int) (*models.DeliveryLog, error) {
	now := s.now()
	payload, err := MarshalEnvelope(BuildEnvelope(sub.ID.String(), event, ectx, now))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	return &models.DeliveryLog{
		ID:               uuid.New(),
		SubscriptionID:   sub.ID,
		SubscriptionName: sub.Name,
		Event:            event,
		EntityType:       ectx.EntityType,
		EntityID:         ectx.EntityID,
		Payload:          datatypes.JSON(payload),
		Status:           status,
		Attempts:         attempts,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Send performs one attempt for a log row that is pending and owned by the
// caller, then moves it to its next state. The stored payload bytes are sent
// unchanged. If ctx is cancelled mid-flight the row stays pending for the
// stale sweep to pick up.
func (s *Service) Send(ctx context.Context, log *models.DeliveryLog, sub *models.WebhookSubscription) (*DeliveryOutcome, error) {
	headers, err := s.headers(sub, log)
	if err != nil {
		return nil, err
	}

	result := DeliverWebhook(ctx, s.client, PostRequest{
		URL:                 sub.URL,
		Body:                log.Payload,
		Headers:             headers,
		Timeout:             sub.Timeout(),
		MaxResponseBodySize: s.maxBody(),
	}, s.logger)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("delivery %s interrupted: %w", log.ID, ctx.Err())
	}

	// Bookkeeping must land even if the caller gives up now
	ctx = context.WithoutCancel(ctx)
	now := s.now()
	outcome := ProcessDeliveryResult(result, log.Attempts, sub.RetryLimit(), now)

	attempt := store.AttemptResult{
		Status:          outcome.Status,
		RequestHeaders:  redact(headers),
		ResponseStatus:  result.HTTPStatus,
		ResponseHeaders: result.ResponseHeaders,
		Error:           outcome.LastError,
		NextRetryAt:     outcome.NextRetryAt,
	}
	if result.HTTPStatus != nil {
		attempt.ResponseBody = &result.ResponseBody
	}
	latency := result.LatencyMs
	attempt.LatencyMs = &latency

	if err := s.repo.CompleteAttempt(ctx, log.ID, log.Attempts, attempt); err != nil {
		if errors.Is(err, store.ErrNotClaimed) {
			s.logger.Warn("Delivery log changed during attempt, result discarded",
				zap.String("log_id", log.ID.String()),
				zap.Int("attempt", log.Attempts),
			)
		}
		return nil, err
	}

	if outcome.Status == models.DeliverySuccess {
		err = s.repo.RecordDeliverySuccess(ctx, sub.ID, now)
	} else {
		err = s.repo.RecordDeliveryFailure(ctx, sub.ID, now, *outcome.LastError, outcome.Status == models.DeliveryFailed)
	}
	if err != nil {
		s.logger.Error("Failed to update subscription health",
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err),
		)
	}

	delivered := &DeliveryOutcome{
		LogID:       log.ID,
		Status:      outcome.Status,
		Attempts:    log.Attempts,
		HTTPStatus:  result.HTTPStatus,
		LatencyMs:   result.LatencyMs,
		NextRetryAt: outcome.NextRetryAt,
	}
	if outcome.LastError != nil {
		delivered.Error = *outcome.LastError
	}
	s.logOutcome(sub, log, delivered)
	return delivered, nil
}

// SendTest delivers a canned payload for the subscription's first event
func (s *Service) SendTest(ctx context.Context, subscriptionID uuid.UUID) (*DeliveryOutcome, error) {
	sub, err := s.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if len(sub.Events) == 0 {
		return nil, fmt.Errorf("%w: subscription has no events", models.ErrInvalidSubscription)
	}
	return s.Deliver(ctx, sub, sub.Events[0], SampleContext(sub.Events[0]))
}

const (
	HeaderWebhookID = "X-Webhook-Id"
	HeaderEvent     = "X-Webhook-Event"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderSignature = "X-Webhook-Signature"
	HeaderDelivery  = "X-Webhook-Delivery"
)

var reservedHeaders = map[string]struct{}{
	"Content-Type":  {},
	"User-Agent":    {},
	HeaderWebhookID: {},
	HeaderEvent:     {},
	HeaderTimestamp: {},
	HeaderSignature: {},
	HeaderDelivery:  {},
}

func (s *Service) headers(sub *models.WebhookSubscription, log *models.DeliveryLog) (map[string]string, error) {
	signature, err := GenerateHMACSignature(log.Payload, sub.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}

	headers := make(map[string]string, len(sub.Headers)+len(reservedHeaders))
	for k, v := range sub.Headers {
		k = http.CanonicalHeaderKey(strings.TrimSpace(k))
		if _, reserved := reservedHeaders[k]; reserved || k == "" {
			continue
		}
		headers[k] = v
	}
	headers["Content-Type"] = "application/json"
	headers["User-Agent"] = s.userAgent()
	headers[HeaderWebhookID] = sub.ID.String()
	headers[HeaderEvent] = log.Event
	headers[HeaderTimestamp] = strconv.FormatInt(s.now().Unix(), 10)
	headers[HeaderSignature] = signature
	headers[HeaderDelivery] = log.ID.String()
	return headers, nil
}

func (s *Service) userAgent() string {
	product := s.cfg.Product
	if product == "" {
		product = "Pulse"
	}
	return product + "-Webhook/1.0"
}

func (s *Service) maxBody() int {
	if s.cfg.MaxResponseBodySize <= 0 {
		return models.MaxResponseBodyChars
	}
	return s.cfg.MaxResponseBodySize
}

// redact drops the signature from the stored request headers
func redact(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if k == HeaderSignature {
			continue
		}
		out[k] = v
	}
	return out
}

func (s *Service) logOutcome(sub *models.WebhookSubscription, log *models.DeliveryLog, o *DeliveryOutcome) {
	fields := []zap.Field{
		zap.String("log_id", log.ID.String()),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("event", log.Event),
		zap.Int("attempt", o.Attempts),
		zap.Int("latency_ms", o.LatencyMs),
	}
	if o.HTTPStatus != nil {
		fields = append(fields, zap.Int("http_status", *o.HTTPStatus))
	}

	switch o.Status {
	case models.DeliverySuccess:
		s.logger.Info("Webhook delivery succeeded", fields...)
	case models.DeliveryFailed:
		s.logger.Warn("Webhook delivery failed (max retries reached)", append(fields, zap.String("last_error", o.Error))...)
	default:
		s.logger.Info("Webhook delivery will be retried", append(fields,
			zap.Timep("next_retry_at", o.NextRetryAt),
			zap.String("last_error", o.Error),
		)...)
	}
}
