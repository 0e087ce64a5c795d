package models

import (
	"fmt"
	"strings"
)

// EntityType names the CRM record kind an event refers to
type EntityType string

const (
	EntityDeal     EntityType = "deal"
	EntityContact  EntityType = "contact"
	EntityClient   EntityType = "client"
	EntityActivity EntityType = "activity"
	EntityQuote    EntityType = "quote"
)

// EventSource records which surface produced the mutation
type EventSource string

const (
	SourceWeb      EventSource = "web"
	SourceAPI      EventSource = "api"
	SourceWorkflow EventSource = "workflow"
	SourceImport   EventSource = "import"
)

// Event tags emitted by the CRM, grouped by entity
const (
	EventDealCreated      = "deal.created"
	EventDealUpdated      = "deal.updated"
	EventDealStageChanged = "deal.stage_changed"
	EventDealWon          = "deal.won"
	EventDealLost         = "deal.lost"
	EventDealDeleted      = "deal.deleted"
	EventContactCreated   = "contact.created"
	EventContactUpdated   = "contact.updated"
	EventContactDeleted   = "contact.deleted"
	EventClientCreated    = "client.created"
	EventClientUpdated    = "client.updated"
	EventClientDeleted    = "client.deleted"
	EventActivityCreated  = "activity.created"
	EventTaskCompleted    = "task.completed"
	EventQuoteCreated     = "quote.created"
	EventQuoteSent        = "quote.sent"
	EventQuoteAccepted    = "quote.accepted"
	EventQuoteRejected    = "quote.rejected"

	// Rule-only events: derived or raised by sweeps, never offered to webhooks
	EventDealValueChanged = "deal.value_changed"
	EventTaskOverdue      = "task.overdue"
)

// WebhookEvents is the closed set a subscription may listen to
var WebhookEvents = []string{
	EventDealCreated, EventDealUpdated, EventDealStageChanged, EventDealWon, EventDealLost, EventDealDeleted,
	EventContactCreated, EventContactUpdated, EventContactDeleted,
	EventClientCreated, EventClientUpdated, EventClientDeleted,
	EventActivityCreated,
	EventTaskCompleted,
	EventQuoteCreated, EventQuoteSent, EventQuoteAccepted, EventQuoteRejected,
}

var ruleOnlyEvents = []string{EventDealValueChanged, EventTaskOverdue}

// IsWebhookEvent reports whether subscriptions may list the tag
func IsWebhookEvent(tag string) bool {
	for _, e := range WebhookEvents {
		if e == tag {
			return true
		}
	}
	return false
}

// ParseEventTag normalizes a dotted event tag and rejects unknown ones
func ParseEventTag(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	if IsWebhookEvent(name) {
		return name, nil
	}
	for _, e := range ruleOnlyEvents {
		if e == name {
			return name, nil
		}
	}

	return "", fmt.Errorf("unknown event tag: %s", name)
}

// TriggerForEvent maps a dotted event tag onto the rule trigger it fires
func TriggerForEvent(tag string) RuleTrigger {
	return RuleTrigger(strings.ReplaceAll(tag, ".", "_"))
}

// EntityTypeForEvent returns the entity prefix of a dotted tag
func EntityTypeForEvent(tag string) EntityType {
	prefix, _, _ := strings.Cut(tag, ".")
	if prefix == "task" {
		return EntityActivity
	}
	return EntityType(prefix)
}

// EventContext is the description of a mutation handed to the dispatcher
type EventContext struct {
	EntityType    EntityType     `json:"entityType" yaml:"entityType" validate:"required,oneof=deal contact client activity quote"`
	EntityID      string         `json:"entityId" yaml:"entityId" validate:"required,entityid"`
	EntityName    string         `json:"entityName,omitempty" yaml:"entityName,omitempty"`
	Current       map[string]any `json:"current" yaml:"current" validate:"required"`
	Previous      map[string]any `json:"previous,omitempty" yaml:"previous,omitempty"`
	ChangedFields []string       `json:"changedFields,omitempty" yaml:"changedFields,omitempty"`
	UserID        string         `json:"userId,omitempty" yaml:"userId,omitempty"`
	UserName      string         `json:"userName,omitempty" yaml:"userName,omitempty"`
	Source        EventSource    `json:"source,omitempty" yaml:"source,omitempty" validate:"omitempty,oneof=web api workflow import"`
}

// HasChanged reports whether field is listed in ChangedFields
func (c EventContext) HasChanged(field string) bool {
	for _, f := range c.ChangedFields {
		if f == field {
			return true
		}
	}
	return false
}

// Snapshot builds the document conditions are evaluated against: entity
// fields at the root, the entity again under its type key, plus previous,
// changedFields and user.
func (c EventContext) Snapshot() Snapshot {
	root := make(Snapshot, len(c.Current)+4)
	for k, v := range c.Current {
		root[k] = v
	}
	if _, taken := root[string(c.EntityType)]; !taken && c.EntityType != "" {
		root[string(c.EntityType)] = map[string]any(c.Current)
	}
	if c.Previous != nil {
		root["previous"] = map[string]any(c.Previous)
	}
	changed := make([]any, len(c.ChangedFields))
	for i, f := range c.ChangedFields {
		changed[i] = f
	}
	root["changedFields"] = changed
	root["user"] = map[string]any{"id": c.UserID, "name": c.UserName}
	return root
}

// DomainEvent is the message shape accepted on the source queue and the
// ingestion endpoint
type DomainEvent struct {
	Event   string       `json:"event" validate:"required"`
	Context EventContext `json:"context"`
}
