package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marminbh/automation-svc/internal/models"
	"github.com/marminbh/automation-svc/internal/store"
)

const (
	defaultLimit = 25
	maxLimit     = 200
)

// respondError maps definition errors to 400, missing rows to 404 and
// everything else to 500
func respondError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidRule),
		errors.Is(err, models.ErrInvalidSubscription),
		errors.Is(err, models.ErrInvalidEvent):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	default:
		logger.Error("Request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// pathID parses the :id route parameter
func pathID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	return id, err == nil
}

// parsePage reads limit and offset. The returned page asks for one extra row
// so the caller can report has_more.
func parsePage(c *fiber.Ctx) (store.Page, int, error) {
	limit := defaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return store.Page{}, 0, errors.New("limit must be a positive integer")
		}
		limit = min(parsed, maxLimit)
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil || parsed < 0 {
			return store.Page{}, 0, errors.New("offset must be a non-negative integer")
		}
		offset = parsed
	}
	return store.Page{Limit: limit + 1, Offset: offset}, limit, nil
}

// trim drops the lookahead row and reports whether it existed
func trim[T any](rows []T, limit int) ([]T, bool) {
	if rows == nil {
		rows = []T{}
	}
	if len(rows) > limit {
		return rows[:limit], true
	}
	return rows, false
}
