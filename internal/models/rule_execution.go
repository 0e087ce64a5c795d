package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActionOutcome is the result of one action within a rule run
type ActionOutcome struct {
	ActionID string         `json:"actionId"`
	Type     ActionType     `json:"type"`
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// ExecutionResult summarizes one pass through a rule's actions. Success holds
// only when every outcome succeeded.
type ExecutionResult struct {
	ActionsExecuted []ActionOutcome `json:"actionsExecuted"`
	Success         bool            `json:"success"`
}

// RuleExecution is the audit row written for every rule run
type RuleExecution struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	RuleID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"ruleId"`
	Event           string          `gorm:"not null" json:"event"`
	EntityType      EntityType      `gorm:"not null" json:"entityType"`
	EntityID        string          `gorm:"not null;index" json:"entityId"`
	ActionsExecuted []ActionOutcome `gorm:"serializer:json" json:"actionsExecuted"`
	Success         bool            `gorm:"not null" json:"success"`
	Resumed         bool            `gorm:"not null" json:"resumed"`
	CreatedAt       time.Time       `json:"createdAt"`
	ExpiresAt       time.Time       `gorm:"not null;index" json:"expiresAt"`
}

func (RuleExecution) TableName() string {
	return "automation_rule_executions"
}

func (e *RuleExecution) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.ExpiresAt.IsZero() {
		e.ExpiresAt = e.CreatedAt.Add(LogRetention)
	}
	return nil
}
