package models

import "time"

// MutationCommand asks the CRM to change state on behalf of a rule
type MutationCommand struct {
	ID         string         `json:"id"`
	Action     ActionType     `json:"action"`
	RuleID     string         `json:"ruleId"`
	EntityType EntityType     `json:"entityType"`
	EntityID   string         `json:"entityId"`
	OwnerID    string         `json:"ownerId,omitempty"`
	Params     map[string]any `json:"params"`
	Source     EventSource    `json:"source"`
	IssuedAt   time.Time      `json:"issuedAt"`
}
