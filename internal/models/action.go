package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ActionType identifies one variant of the action union
type ActionType string

const (
	ActionSendMessage      ActionType = "send_message"
	ActionSendNotification ActionType = "send_notification"
	ActionCreateTask       ActionType = "create_task"
	ActionCreateRecord     ActionType = "create_record"
	ActionUpdateField      ActionType = "update_field"
	ActionMoveStage        ActionType = "move_stage"
	ActionAssignOwner      ActionType = "assign_owner"
	ActionAddTag           ActionType = "add_tag"
	ActionRemoveTag        ActionType = "remove_tag"
	ActionCallWebhook      ActionType = "call_webhook"
	ActionDelay            ActionType = "delay"
)

// MaxConfigEntries bounds every key-value map carried in an action config
const MaxConfigEntries = 50

// ActionConfig is implemented by the per-type config structs below
type ActionConfig interface {
	isActionConfig()
}

type SendMessageConfig struct {
	Channel string `json:"channel" validate:"required,oneof=email sms"`
	To      string `json:"to" validate:"required,max=500"`
	Subject string `json:"subject,omitempty" validate:"max=500"`
	Body    string `json:"body" validate:"required,max=20000"`
}

type SendNotificationConfig struct {
	UserID  string `json:"userId" validate:"required,max=200"`
	Title   string `json:"title" validate:"required,max=500"`
	Message string `json:"message" validate:"required,max=5000"`
}

type CreateTaskConfig struct {
	Title       string `json:"title" validate:"required,max=500"`
	Description string `json:"description,omitempty" validate:"max=5000"`
	DueInDays   int    `json:"dueInDays,omitempty" validate:"gte=0,lte=365"`
	AssigneeID  string `json:"assigneeId,omitempty" validate:"max=200"`
}

// CreateRecordConfig creates a subordinate record linked to the triggering entity
type CreateRecordConfig struct {
	EntityType EntityType        `json:"entityType" validate:"required,oneof=deal contact client activity quote"`
	Fields     map[string]string `json:"fields" validate:"required,min=1,max=50"`
}

type UpdateFieldConfig struct {
	Field string `json:"field" validate:"required,max=200"`
	Value string `json:"value" validate:"max=5000"`
}

type MoveStageConfig struct {
	PipelineID string `json:"pipelineId,omitempty" validate:"max=200"`
	StageID    string `json:"stageId" validate:"required,max=200"`
}

type AssignOwnerConfig struct {
	OwnerID string `json:"ownerId" validate:"required,max=200"`
}

// TagConfig serves both add_tag and remove_tag
type TagConfig struct {
	Tag string `json:"tag" validate:"required,max=100"`
}

type CallWebhookConfig struct {
	URL     string            `json:"url" validate:"required,max=2048,startswith=http"`
	Method  string            `json:"method,omitempty" validate:"omitempty,oneof=POST PUT PATCH"`
	Headers map[string]string `json:"headers,omitempty" validate:"max=50"`
	Secret  string            `json:"secret,omitempty" validate:"max=500"`
}

type DelayConfig struct {
	Minutes int `json:"minutes" validate:"gte=1,lte=43200"`
}

func (*SendMessageConfig) isActionConfig()      {}
func (*SendNotificationConfig) isActionConfig() {}
func (*CreateTaskConfig) isActionConfig()       {}
func (*CreateRecordConfig) isActionConfig()     {}
func (*UpdateFieldConfig) isActionConfig()      {}
func (*MoveStageConfig) isActionConfig()        {}
func (*AssignOwnerConfig) isActionConfig()      {}
func (*TagConfig) isActionConfig()              {}
func (*CallWebhookConfig) isActionConfig()      {}
func (*DelayConfig) isActionConfig()            {}

// NewActionConfig returns an empty config of the variant that belongs to t
func NewActionConfig(t ActionType) (ActionConfig, error) {
	switch t {
	case ActionSendMessage:
		return &SendMessageConfig{}, nil
	case ActionSendNotification:
		return &SendNotificationConfig{}, nil
	case ActionCreateTask:
		return &CreateTaskConfig{}, nil
	case ActionCreateRecord:
		return &CreateRecordConfig{}, nil
	case ActionUpdateField:
		return &UpdateFieldConfig{}, nil
	case ActionMoveStage:
		return &MoveStageConfig{}, nil
	case ActionAssignOwner:
		return &AssignOwnerConfig{}, nil
	case ActionAddTag, ActionRemoveTag:
		return &TagConfig{}, nil
	case ActionCallWebhook:
		return &CallWebhookConfig{}, nil
	case ActionDelay:
		return &DelayConfig{}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", t)
	}
}

// Action is one step of a rule. Config holds the variant matching Type.
type Action struct {
	ID           string       `json:"id" validate:"required,max=64"`
	Type         ActionType   `json:"type" validate:"required"`
	Order        int          `json:"order"`
	DelayMinutes int          `json:"delayMinutes,omitempty" validate:"gte=0,lte=43200"`
	Config       ActionConfig `json:"config" validate:"-"`
}

// Delay returns the minutes execution waits at this action. A delay action
// waits for its configured minutes and the chain resumes after it.
func (a Action) Delay() int {
	if cfg, ok := a.Config.(*DelayConfig); ok && a.Type == ActionDelay {
		return cfg.Minutes
	}
	return a.DelayMinutes
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID           string          `json:"id"`
		Type         ActionType      `json:"type"`
		Order        int             `json:"order"`
		DelayMinutes int             `json:"delayMinutes"`
		Config       json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	cfg, err := NewActionConfig(raw.Type)
	if err != nil {
		return err
	}
	if len(raw.Config) > 0 && !bytes.Equal(raw.Config, []byte("null")) {
		if err := json.Unmarshal(raw.Config, cfg); err != nil {
			return fmt.Errorf("invalid config for %s action: %w", raw.Type, err)
		}
	}

	a.ID = raw.ID
	a.Type = raw.Type
	a.Order = raw.Order
	a.DelayMinutes = raw.DelayMinutes
	a.Config = cfg
	return nil
}
