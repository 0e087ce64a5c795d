package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// SuspendThreshold is the consecutive failure count at which a subscription
	// stops receiving new events
	SuspendThreshold = 10

	DefaultMaxRetries = 3
	DefaultTimeoutMs  = 10000
	MinTimeoutMs      = 1000
	MaxTimeoutMs      = 30000
)

// WebhookFilters narrow a subscription beyond its event list. Every set field
// must match.
type WebhookFilters struct {
	PipelineID string   `json:"pipelineId,omitempty"`
	StageID    string   `json:"stageId,omitempty"`
	OwnerID    string   `json:"ownerId,omitempty"`
	MinValue   *float64 `json:"minValue,omitempty"`
	MaxValue   *float64 `json:"maxValue,omitempty"`
}

// Matches reports whether the entity in ctx passes every configured filter
func (f WebhookFilters) Matches(ctx EventContext) bool {
	if f.PipelineID != "" && refField(ctx.Current, "pipelineId", "pipeline") != f.PipelineID {
		return false
	}
	if f.StageID != "" && refField(ctx.Current, "stageId", "stage") != f.StageID {
		return false
	}
	if f.OwnerID != "" && refField(ctx.Current, "ownerId", "owner") != f.OwnerID {
		return false
	}
	if f.MinValue != nil || f.MaxValue != nil {
		value, ok := numericField(ctx.Current["value"])
		if !ok {
			return false
		}
		if f.MinValue != nil && value < *f.MinValue {
			return false
		}
		if f.MaxValue != nil && value > *f.MaxValue {
			return false
		}
	}
	return true
}

func refField(doc map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := doc[k]; ok {
			if id := RefID(v); id != "" {
				return id
			}
		}
	}
	return ""
}

func numericField(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// WebhookSubscription is an outbound endpoint registered for a set of events
type WebhookSubscription struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID     string            `gorm:"index;not null" json:"ownerId" validate:"required"`
	Name        string            `gorm:"not null" json:"name" validate:"required,max=200"`
	Description string            `gorm:"type:text" json:"description,omitempty"`
	URL         string            `gorm:"not null" json:"url" validate:"required,url,startswith=http,max=2048"`
	Secret      string            `gorm:"not null" json:"-" validate:"required,min=16,max=500"`
	Events      []string          `gorm:"serializer:json" json:"events" validate:"required,min=1,dive,webhookevent"`
	Filters     WebhookFilters    `gorm:"serializer:json" json:"filters"`
	Headers     map[string]string `gorm:"serializer:json" json:"headers,omitempty" validate:"max=50"`
	IsActive    bool              `gorm:"index;not null" json:"isActive"`
	MaxRetries  int               `gorm:"not null" json:"maxRetries" validate:"gte=0,lte=10"`
	TimeoutMs   int               `gorm:"not null" json:"timeoutMs" validate:"gte=1000,lte=30000"`

	TotalSent           int64      `gorm:"not null;default:0" json:"totalSent"`
	TotalFailed         int64      `gorm:"not null;default:0" json:"totalFailed"`
	ConsecutiveFailures int        `gorm:"not null;default:0;index" json:"consecutiveFailures"`
	LastTriggeredAt     *time.Time `json:"lastTriggeredAt,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastErrorAt         *time.Time `json:"lastErrorAt,omitempty"`
	LastError           *string    `gorm:"type:text" json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (WebhookSubscription) TableName() string {
	return "webhook_subscriptions"
}

func (s *WebhookSubscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ApplyDefaults fills zero-valued retry and timeout settings
func (s *WebhookSubscription) ApplyDefaults() {
	if s.MaxRetries == 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.TimeoutMs == 0 {
		s.TimeoutMs = DefaultTimeoutMs
	}
}

// IsSuspended reports whether the circuit breaker has tripped
func (s *WebhookSubscription) IsSuspended() bool {
	return s.ConsecutiveFailures >= SuspendThreshold
}

// Timeout returns the per-request deadline clamped to the allowed range
func (s *WebhookSubscription) Timeout() time.Duration {
	ms := s.TimeoutMs
	if ms == 0 {
		ms = DefaultTimeoutMs
	}
	if ms < MinTimeoutMs {
		ms = MinTimeoutMs
	}
	if ms > MaxTimeoutMs {
		ms = MaxTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// RetryLimit returns the number of retries allowed after the first attempt
func (s *WebhookSubscription) RetryLimit() int {
	if s.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return s.MaxRetries
}

// ListensTo reports whether the subscription lists the event tag
func (s *WebhookSubscription) ListensTo(event string) bool {
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}
