package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marminbh/automation-svc/internal/models"
	"github.com/marminbh/automation-svc/internal/store"
	"github.com/marminbh/automation-svc/internal/worker"
)

// WebhookStore is the persistence behind the webhook endpoints
type WebhookStore interface {
	CreateSubscription(ctx context.Context, sub *models.WebhookSubscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*models.WebhookSubscription, error)
	ListSubscriptions(ctx context.Context, ownerID string, page store.Page) ([]models.WebhookSubscription, error)
	UpdateSubscription(ctx context.Context, sub *models.WebhookSubscription) error
	DeleteSubscription(ctx context.Context, id uuid.UUID) error
	ResetSubscriptionHealth(ctx context.Context, id uuid.UUID) error
	ListDeliveryLogs(ctx context.Context, subscriptionID uuid.UUID, status models.DeliveryStatus, page store.Page) ([]models.DeliveryLog, error)
}

// TestSender delivers a synthetic event to a subscription
type TestSender interface {
	SendTest(ctx context.Context, subscriptionID uuid.UUID) (*worker.DeliveryOutcome, error)
}

type WebhooksHandler struct {
	Store    WebhookStore
	Delivery TestSender
	Logger   *zap.Logger
}

func NewWebhooksHandler(st WebhookStore, delivery TestSender, logger *zap.Logger) *WebhooksHandler {
	return &WebhooksHandler{Store: st, Delivery: delivery, Logger: logger}
}

// SubscriptionRequest is the writable part of a subscription. Secret is
// write-only; a blank secret on create is generated, on update it keeps the
// stored one. An omitted isActive means active on create and unchanged on
// update.
type SubscriptionRequest struct {
	OwnerID     string                `json:"ownerId"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	URL         string                `json:"url"`
	Secret      string                `json:"secret"`
	Events      []string              `json:"events"`
	Filters     models.WebhookFilters `json:"filters"`
	Headers     map[string]string     `json:"headers"`
	IsActive    *bool                 `json:"isActive"`
	MaxRetries  int                   `json:"maxRetries"`
	TimeoutMs   int                   `json:"timeoutMs"`
}

func (r SubscriptionRequest) apply(sub *models.WebhookSubscription) {
	sub.Name = r.Name
	sub.Description = r.Description
	sub.URL = r.URL
	sub.Events = r.Events
	sub.Filters = r.Filters
	sub.Headers = r.Headers
	if r.IsActive != nil {
		sub.IsActive = *r.IsActive
	}
	sub.MaxRetries = r.MaxRetries
	sub.TimeoutMs = r.TimeoutMs
	if r.Secret != "" {
		sub.Secret = r.Secret
	}
}

// CreatedSubscription is returned once on create and is the only response
// that carries the secret
type CreatedSubscription struct {
	*models.WebhookSubscription
	Secret string `json:"secret"`
}

type SubscriptionsResponse struct {
	Webhooks []models.WebhookSubscription `json:"webhooks"`
	HasMore  bool                         `json:"has_more"`
}

type DeliveryLogsResponse struct {
	Logs    []models.DeliveryLog `json:"logs"`
	HasMore bool                 `json:"has_more"`
}

// GenerateSecret returns a random signing secret
func GenerateSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}

// List handles GET /api/v1/webhooks?ownerId=&limit=&offset=
func (h *WebhooksHandler) List(c *fiber.Ctx) error {
	page, limit, err := parsePage(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	subs, err := h.Store.ListSubscriptions(c.UserContext(), c.Query("ownerId"), page)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	subs, hasMore := trim(subs, limit)
	return c.JSON(SubscriptionsResponse{Webhooks: subs, HasMore: hasMore})
}

// Create handles POST /api/v1/webhooks
func (h *WebhooksHandler) Create(c *fiber.Ctx) error {
	var req SubscriptionRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "invalid webhook body: "+err.Error())
	}

	sub := &models.WebhookSubscription{OwnerID: req.OwnerID, IsActive: true}
	req.apply(sub)
	if sub.Secret == "" {
		secret, err := GenerateSecret()
		if err != nil {
			return respondError(c, h.Logger, err)
		}
		sub.Secret = secret
	}
	if err := models.ValidateSubscription(sub); err != nil {
		return respondError(c, h.Logger, err)
	}
	if err := h.Store.CreateSubscription(c.UserContext(), sub); err != nil {
		return respondError(c, h.Logger, err)
	}

	h.Logger.Info("Webhook subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.Strings("events", sub.Events),
	)
	return c.Status(fiber.StatusCreated).JSON(CreatedSubscription{WebhookSubscription: sub, Secret: sub.Secret})
}

// Get handles GET /api/v1/webhooks/:id
func (h *WebhooksHandler) Get(c *fiber.Ctx) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid webhook id")
	}
	sub, err := h.Store.GetSubscription(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(sub)
}

// Update handles PUT /api/v1/webhooks/:id
func (h *WebhooksHandler) Update(c *fiber.Ctx) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid webhook id")
	}
	var req SubscriptionRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "invalid webhook body: "+err.Error())
	}

	sub, err := h.Store.GetSubscription(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	req.apply(sub)
	if err := models.ValidateSubscription(sub); err != nil {
		return respondError(c, h.Logger, err)
	}
	if err := h.Store.UpdateSubscription(c.UserContext(), sub); err != nil {
		return respondError(c, h.Logger, err)
	}

	updated, err := h.Store.GetSubscription(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(updated)
}

// Delete handles DELETE /api/v1/webhooks/:id. Delivery logs stay until they
// expire.
func (h *WebhooksHandler) Delete(c *fiber.Ctx) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid webhook id")
	}
	if err := h.Store.DeleteSubscription(c.UserContext(), id); err != nil {
		return respondError(c, h.Logger, err)
	}
	h.Logger.Info("Webhook subscription deleted", zap.String("subscription_id", id.String()))
	return c.SendStatus(fiber.StatusNoContent)
}

// Test handles POST /api/v1/webhooks/:id/test. The attempt is logged like
// any other delivery and retried on failure.
func (h *WebhooksHandler) Test(c *fiber.Ctx) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid webhook id")
	}
	outcome, err := h.Delivery.SendTest(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(outcome)
}

// Reset handles POST /api/v1/webhooks/:id/reset, closing the circuit breaker
func (h *WebhooksHandler) Reset(c *fiber.Ctx) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid webhook id")
	}
	if err := h.Store.ResetSubscriptionHealth(c.UserContext(), id); err != nil {
		return respondError(c, h.Logger, err)
	}
	sub, err := h.Store.GetSubscription(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	h.Logger.Info("Webhook subscription health reset", zap.String("subscription_id", id.String()))
	return c.JSON(sub)
}

// Logs handles GET /api/v1/webhooks/:id/logs?status=&limit=&offset=
func (h *WebhooksHandler) Logs(c *fiber.Ctx) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid webhook id")
	}
	page, limit, err := parsePage(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	status := models.DeliveryStatus(c.Query("status"))
	switch status {
	case "", models.DeliveryPending, models.DeliverySuccess, models.DeliveryFailed, models.DeliveryRetrying:
	default:
		return badRequest(c, "status must be one of pending, success, failed, retrying")
	}

	if _, err := h.Store.GetSubscription(c.UserContext(), id); err != nil {
		return respondError(c, h.Logger, err)
	}
	logs, err := h.Store.ListDeliveryLogs(c.UserContext(), id, status, page)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	logs, hasMore := trim(logs, limit)
	return c.JSON(DeliveryLogsResponse{Logs: logs, HasMore: hasMore})
}
