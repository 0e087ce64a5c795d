package handlers

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/marminbh/automation-svc/internal/models"
)

// EventDispatcher queues domain events, reporting false when it cannot take
// more
type EventDispatcher interface {
	DispatchAsync(ctx context.Context, event string, ectx models.EventContext) bool
}

// EventsHandler ingests domain events over HTTP
type EventsHandler struct {
	Dispatcher EventDispatcher
	Logger     *zap.Logger
}

func NewEventsHandler(dispatcher EventDispatcher, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		Dispatcher: dispatcher,
		Logger:     logger,
	}
}

// Ingest handles POST /api/v1/events. A valid event is queued and accepted
// with 202; dispatch happens after the response. A full queue answers 503.
func (h *EventsHandler) Ingest(c *fiber.Ctx) error {
	var event models.DomainEvent
	if err := json.Unmarshal(c.Body(), &event); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if err := models.ValidateEvent(&event); err != nil {
		return respondError(c, h.Logger, err)
	}

	if !h.Dispatcher.DispatchAsync(c.UserContext(), event.Event, event.Context) {
		h.Logger.Warn("Event queue full, rejecting event",
			zap.String("event", event.Event),
			zap.String("entity_id", event.Context.EntityID),
		)
		c.Set(fiber.HeaderRetryAfter, "1")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "event queue is full"})
	}

	h.Logger.Debug("Event accepted",
		zap.String("event", event.Event),
		zap.String("entity_id", event.Context.EntityID),
	)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"accepted": true,
		"event":    event.Event,
	})
}
