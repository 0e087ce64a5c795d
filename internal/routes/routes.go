package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/marminbh/automation-svc/internal/handlers"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Health   *handlers.HealthHandler
	Events   *handlers.EventsHandler
	Rules    *handlers.RulesHandler
	Webhooks *handlers.WebhooksHandler
}

// SetupRoutes configures all application routes with dependencies
func SetupRoutes(app *fiber.App, h Handlers) {
	if h.Health != nil {
		app.Get("/health", h.Health.HealthCheck)
	}

	api := app.Group("/api/v1")

	if h.Events != nil {
		api.Post("/events", h.Events.Ingest)
	}

	if h.Rules != nil {
		rules := api.Group("/rules")
		rules.Get("/", h.Rules.List)
		rules.Post("/", h.Rules.Create)
		rules.Get("/:id", h.Rules.Get)
		rules.Put("/:id", h.Rules.Update)
		rules.Delete("/:id", h.Rules.Delete)
		rules.Get("/:id/executions", h.Rules.Executions)
	}

	if h.Webhooks != nil {
		webhooks := api.Group("/webhooks")
		webhooks.Get("/", h.Webhooks.List)
		webhooks.Post("/", h.Webhooks.Create)
		webhooks.Get("/:id", h.Webhooks.Get)
		webhooks.Put("/:id", h.Webhooks.Update)
		webhooks.Delete("/:id", h.Webhooks.Delete)
		webhooks.Post("/:id/test", h.Webhooks.Test)
		webhooks.Post("/:id/reset", h.Webhooks.Reset)
		webhooks.Get("/:id/logs", h.Webhooks.Logs)
	}
}
