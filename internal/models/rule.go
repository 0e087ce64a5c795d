package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RuleTrigger is the closed set of domain events a rule can fire on
type RuleTrigger string

const (
	TriggerDealCreated      RuleTrigger = "deal_created"
	TriggerDealUpdated      RuleTrigger = "deal_updated"
	TriggerDealStageChanged RuleTrigger = "deal_stage_changed"
	TriggerDealValueChanged RuleTrigger = "deal_value_changed"
	TriggerDealWon          RuleTrigger = "deal_won"
	TriggerDealLost         RuleTrigger = "deal_lost"
	TriggerDealDeleted      RuleTrigger = "deal_deleted"
	TriggerContactCreated   RuleTrigger = "contact_created"
	TriggerContactUpdated   RuleTrigger = "contact_updated"
	TriggerContactDeleted   RuleTrigger = "contact_deleted"
	TriggerClientCreated    RuleTrigger = "client_created"
	TriggerClientUpdated    RuleTrigger = "client_updated"
	TriggerClientDeleted    RuleTrigger = "client_deleted"
	TriggerActivityCreated  RuleTrigger = "activity_created"
	TriggerTaskCompleted    RuleTrigger = "task_completed"
	TriggerTaskOverdue      RuleTrigger = "task_overdue"
	TriggerQuoteCreated     RuleTrigger = "quote_created"
	TriggerQuoteSent        RuleTrigger = "quote_sent"
	TriggerQuoteAccepted    RuleTrigger = "quote_accepted"
	TriggerQuoteRejected    RuleTrigger = "quote_rejected"
)

// Operator is a condition comparison
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThan           Operator = "less_than"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "not_contains"
	OpStartsWith         Operator = "starts_with"
	OpEndsWith           Operator = "ends_with"
	OpIsEmpty            Operator = "is_empty"
	OpIsNotEmpty         Operator = "is_not_empty"
	OpInList             Operator = "in_list"
	OpNotInList          Operator = "not_in_list"
)

// LogicalOperator joins a condition to the one after it
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

type Condition struct {
	Field           string          `json:"field" yaml:"field" validate:"required,max=200"`
	Operator        Operator        `json:"operator" yaml:"operator" validate:"required,oneof=equals not_equals greater_than greater_than_or_equal less_than less_than_or_equal contains not_contains starts_with ends_with is_empty is_not_empty in_list not_in_list"`
	Value           any             `json:"value,omitempty" yaml:"value,omitempty"`
	LogicalOperator LogicalOperator `json:"logicalOperator,omitempty" yaml:"logicalOperator,omitempty" validate:"omitempty,oneof=AND OR"`
}

// Rule is a CRM automation: trigger, condition list and ordered actions
type Rule struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID        string      `gorm:"index;not null" json:"ownerId" validate:"required"`
	Name           string      `gorm:"not null" json:"name" validate:"required,max=200"`
	Description    string      `gorm:"type:text" json:"description,omitempty"`
	Trigger        RuleTrigger `gorm:"index;not null" json:"trigger" validate:"required,ruletrigger"`
	Conditions     []Condition `gorm:"serializer:json" json:"conditions" validate:"max=50,dive"`
	Actions        []Action    `gorm:"serializer:json" json:"actions" validate:"required,min=1,max=50,dive"`
	IsActive       bool        `gorm:"index;not null" json:"isActive"`
	ExecutionCount int64       `gorm:"not null;default:0" json:"executionCount"`
	LastExecutedAt *time.Time  `json:"lastExecutedAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

func (Rule) TableName() string {
	return "automation_rules"
}

func (r *Rule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// SortedActions returns the actions in ascending Order, ties kept in list order
func (r *Rule) SortedActions() []Action {
	return SortActions(r.Actions)
}

// SortActions returns a copy of actions sorted by Order, stable on position
func SortActions(actions []Action) []Action {
	sorted := make([]Action, len(actions))
	copy(sorted, actions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return sorted
}

var ruleTriggers = map[RuleTrigger]struct{}{
	TriggerDealCreated: {}, TriggerDealUpdated: {}, TriggerDealStageChanged: {}, TriggerDealValueChanged: {},
	TriggerDealWon: {}, TriggerDealLost: {}, TriggerDealDeleted: {},
	TriggerContactCreated: {}, TriggerContactUpdated: {}, TriggerContactDeleted: {},
	TriggerClientCreated: {}, TriggerClientUpdated: {}, TriggerClientDeleted: {},
	TriggerActivityCreated: {}, TriggerTaskCompleted: {}, TriggerTaskOverdue: {},
	TriggerQuoteCreated: {}, TriggerQuoteSent: {}, TriggerQuoteAccepted: {}, TriggerQuoteRejected: {},
}

// IsValidTrigger reports whether t belongs to the trigger enum
func IsValidTrigger(t RuleTrigger) bool {
	_, ok := ruleTriggers[t]
	return ok
}
