package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ScheduledStatus string

const (
	ScheduledPending ScheduledStatus = "pending"
	ScheduledRunning ScheduledStatus = "running"
	ScheduledDone    ScheduledStatus = "done"
	ScheduledFailed  ScheduledStatus = "failed"
)

// ScheduledAction is a deferred continuation of a rule's action chain. Actions
// holds the remaining steps in execution order; when SkipFirstDelay is set the
// first of them runs without waiting again.
type ScheduledAction struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	RuleID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"ruleId"`
	Event          string          `gorm:"not null" json:"event"`
	Context        EventContext    `gorm:"serializer:json" json:"context"`
	Actions        []Action        `gorm:"serializer:json" json:"actions"`
	SkipFirstDelay bool            `gorm:"not null" json:"skipFirstDelay"`
	RunAt          time.Time       `gorm:"not null;index:idx_scheduled_due,priority:2" json:"runAt"`
	Status         ScheduledStatus `gorm:"not null;index:idx_scheduled_due,priority:1" json:"status"`
	Error          *string         `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (ScheduledAction) TableName() string {
	return "automation_scheduled_actions"
}

func (s *ScheduledAction) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = ScheduledPending
	}
	return nil
}
