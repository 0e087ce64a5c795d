package handlers

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marminbh/automation-svc/internal/models"
	"github.com/marminbh/automation-svc/internal/store"
)

// RuleStore is the persistence behind the rules endpoints
type RuleStore interface {
	CreateRule(ctx context.Context, rule *models.Rule) error
	GetRule(ctx context.Context, id uuid.UUID) (*models.Rule, error)
	ListRules(ctx context.Context, f store.RuleFilter) ([]models.Rule, error)
	UpdateRule(ctx context.Context, rule *models.Rule) error
	DeleteRule(ctx context.Context, id uuid.UUID) error
	ListExecutions(ctx context.Context, ruleID uuid.UUID, page store.Page) ([]models.RuleExecution, error)
}

type RulesHandler struct {
	Store  RuleStore
	Logger *zap.Logger
}

func NewRulesHandler(st RuleStore, logger *zap.Logger) *RulesHandler {
	return &RulesHandler{Store: st, Logger: logger}
}

// RuleRequest is the writable part of a rule
type RuleRequest struct {
	OwnerID     string             `json:"ownerId"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Trigger     models.RuleTrigger `json:"trigger"`
	Conditions  []models.Condition `json:"conditions"`
	Actions     []models.Action    `json:"actions"`
	IsActive    *bool              `json:"isActive"`
}

// apply copies the request onto rule. An omitted isActive keeps the rule's
// current state.
func (r RuleRequest) apply(rule *models.Rule) {
	rule.Name = r.Name
	rule.Description = r.Description
	rule.Trigger = r.Trigger
	rule.Conditions = r.Conditions
	rule.Actions = r.Actions
	if r.IsActive != nil {
		rule.IsActive = *r.IsActive
	}
}

// NewRule builds an unsaved rule owned by the requesting owner. New rules are
// active unless told otherwise.
func (r RuleRequest) NewRule() *models.Rule {
	rule := &models.Rule{OwnerID: r.OwnerID, IsActive: true}
	r.apply(rule)
	return rule
}

type RulesResponse struct {
	Rules   []models.Rule `json:"rules"`
	HasMore bool          `json:"has_more"`
}

type ExecutionsResponse struct {
	Executions []models.RuleExecution `json:"executions"`
	HasMore    bool                   `json:"has_more"`
}

// List handles GET /api/v1/rules?ownerId=&trigger=&active=&limit=&offset=
func (h *RulesHandler) List(c *fiber.Ctx) error {
	page, limit, err := parsePage(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	filter := store.RuleFilter{
		OwnerID: c.Query("ownerId"),
		Trigger: models.RuleTrigger(c.Query("trigger")),
		Page:    page,
	}
	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return badRequest(c, "active must be true or false")
		}
		filter.Active = &active
	}

	rules, err := h.Store.ListRules(c.UserContext(), filter)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	rules, hasMore := trim(rules, limit)
	return c.JSON(RulesResponse{Rules: rules, HasMore: hasMore})
}

// Create handles POST /api/v1/rules
func (h *RulesHandler) Create(c *fiber.Ctx) error {
	var req RuleRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "invalid rule body: "+err.Error())
	}

	rule := req.NewRule()
	if err := models.ValidateRule(rule); err != nil {
		return respondError(c, h.Logger, err)
	}
	if err := h.Store.CreateRule(c.UserContext(), rule); err != nil {
		return respondError(c, h.Logger, err)
	}

	h.Logger.Info("Rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("trigger", string(rule.Trigger)),
	)
	return c.Status(fiber.StatusCreated).JSON(rule)
}

// Get handles GET /api/v1/rules/:id
func (h *RulesHandler) Get(c *fiber.Ctx) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid rule id")
	}
	rule, err := h.Store.GetRule(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(rule)
}

// Update handles PUT /api/v1/rules/:id. The owner of a rule never changes.
func (h *RulesHandler) Update(c *fiber.Ctx) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid rule id")
	}
	var req RuleRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "invalid rule body: "+err.Error())
	}

	rule, err := h.Store.GetRule(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	req.apply(rule)
	if err := models.ValidateRule(rule); err != nil {
		return respondError(c, h.Logger, err)
	}
	if err := h.Store.UpdateRule(c.UserContext(), rule); err != nil {
		return respondError(c, h.Logger, err)
	}

	updated, err := h.Store.GetRule(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(updated)
}

// Delete handles DELETE /api/v1/rules/:id
func (h *RulesHandler) Delete(c *fiber.Ctx) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid rule id")
	}
	if err := h.Store.DeleteRule(c.UserContext(), id); err != nil {
		return respondError(c, h.Logger, err)
	}
	h.Logger.Info("Rule deleted", zap.String("rule_id", id.String()))
	return c.SendStatus(fiber.StatusNoContent)
}

// Executions handles GET /api/v1/rules/:id/executions
func (h *RulesHandler) Executions(c *fiber.Ctx) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "invalid rule id")
	}
	page, limit, err := parsePage(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	execs, err := h.Store.ListExecutions(c.UserContext(), id, page)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	execs, hasMore := trim(execs, limit)
	return c.JSON(ExecutionsResponse{Executions: execs, HasMore: hasMore})
}
