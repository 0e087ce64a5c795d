package worker

import (
	"encoding/json"
	"time"

	"github.com/marminbh/automation-svc/internal/models"
)

// Envelope is the JSON document POSTed to subscribers
type Envelope struct {
	Event     string       `json:"event"`
	Timestamp string       `json:"timestamp"`
	WebhookID string       `json:"webhookId"`
	Data      EnvelopeData `json:"data"`
	Meta      EnvelopeMeta `json:"meta"`
}

type EnvelopeData struct {
	Current  map[string]any    `json:"current"`
	Previous map[string]any    `json:"previous,omitempty"`
	Changes  map[string]Change `json:"changes,omitempty"`
}

// Change pairs a field's previous and current value
type Change struct {
	From any `json:"from"`
	To   any `json:"to"`
}

type EnvelopeMeta struct {
	TriggeredBy *TriggeredBy       `json:"triggeredBy,omitempty"`
	Source      models.EventSource `json:"source"`
}

type TriggeredBy struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

const isoMillis = "2006-01-02T15:04:05.000Z"

// BuildEnvelope assembles the payload for one subscription
func BuildEnvelope(webhookID, event string, ctx models.EventContext, at time.Time) Envelope {
	env := Envelope{
		Event:     event,
		Timestamp: at.UTC().Format(isoMillis),
		WebhookID: webhookID,
		Data: EnvelopeData{
			Current:  ctx.Current,
			Previous: ctx.Previous,
		},
		Meta: EnvelopeMeta{Source: ctx.Source},
	}
	if env.Data.Current == nil {
		env.Data.Current = map[string]any{}
	}
	if env.Meta.Source == "" {
		env.Meta.Source = models.SourceAPI
	}
	if ctx.UserID != "" {
		env.Meta.TriggeredBy = &TriggeredBy{UserID: ctx.UserID, UserName: ctx.UserName}
	}
	if len(ctx.ChangedFields) > 0 {
		env.Data.Changes = make(map[string]Change, len(ctx.ChangedFields))
		for _, field := range ctx.ChangedFields {
			env.Data.Changes[field] = Change{From: ctx.Previous[field], To: ctx.Current[field]}
		}
	}
	return env
}

// MarshalEnvelope produces the exact bytes that are both signed and sent
func MarshalEnvelope(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// SampleContext returns a canned entity for the event's entity type, used by
// test deliveries
func SampleContext(event string) models.EventContext {
	entityType := models.EntityTypeForEvent(event)
	const sampleID = "000000000000000000000000"

	var current map[string]any
	switch entityType {
	case models.EntityDeal:
		current = map[string]any{
			"_id":      sampleID,
			"title":    "Sample Deal",
			"value":    5000,
			"currency": "USD",
			"stage":    map[string]any{"_id": sampleID, "name": "Proposal"},
			"pipeline": map[string]any{"_id": sampleID, "name": "Sales"},
		}
	case models.EntityContact:
		current = map[string]any{
			"_id":       sampleID,
			"firstName": "Sample",
			"lastName":  "Contact",
			"email":     "sample.contact@example.com",
		}
	case models.EntityClient:
		current = map[string]any{
			"_id":  sampleID,
			"name": "Sample Client",
		}
	case models.EntityQuote:
		current = map[string]any{
			"_id":    sampleID,
			"number": "Q-0001",
			"total":  1200,
			"status": "sent",
		}
	default:
		current = map[string]any{
			"_id":     sampleID,
			"type":    "task",
			"subject": "Sample Task",
		}
	}

	return models.EventContext{
		EntityType: entityType,
		EntityID:   sampleID,
		EntityName: "Sample",
		Current:    current,
		Source:     models.SourceAPI,
	}
}
