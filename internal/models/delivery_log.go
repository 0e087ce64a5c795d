package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DeliveryStatus is the lifecycle state of a delivery log row
type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliverySuccess  DeliveryStatus = "success"
	DeliveryFailed   DeliveryStatus = "failed"
	DeliveryRetrying DeliveryStatus = "retrying"
)

// IsTerminal reports whether no further attempts follow
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliverySuccess || s == DeliveryFailed
}

// LogRetention is how long delivery logs live before the reaper removes them
const LogRetention = 30 * 24 * time.Hour

// MaxResponseBodyChars caps the stored response body
const MaxResponseBodyChars = 10000

// DeliveryLog records one delivery generation. Retries mutate the same row.
type DeliveryLog struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	SubscriptionID   uuid.UUID         `gorm:"type:uuid;not null;index" json:"subscriptionId"`
	SubscriptionName string            `gorm:"not null" json:"subscriptionName"`
	Event            string            `gorm:"not null;index" json:"event"`
	EntityType       EntityType        `gorm:"not null" json:"entityType"`
	EntityID         string            `gorm:"not null;index" json:"entityId"`
	Payload          datatypes.JSON    `gorm:"type:json;not null" json:"payload"`
	RequestHeaders   map[string]string `gorm:"serializer:json" json:"requestHeaders,omitempty"`
	ResponseStatus   *int              `json:"responseStatus,omitempty"`
	ResponseHeaders  map[string]string `gorm:"serializer:json" json:"responseHeaders,omitempty"`
	ResponseBody     *string           `gorm:"type:text" json:"responseBody,omitempty"`
	LatencyMs        *int              `json:"latencyMs,omitempty"`
	Status           DeliveryStatus    `gorm:"not null;index:idx_delivery_logs_due,priority:1" json:"status"`
	Attempts         int               `gorm:"not null" json:"attempts"`
	Error            *string           `gorm:"type:text" json:"error,omitempty"`
	NextRetryAt      *time.Time        `gorm:"index:idx_delivery_logs_due,priority:2" json:"nextRetryAt,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	ExpiresAt        time.Time         `gorm:"not null;index" json:"expiresAt"`
}

func (DeliveryLog) TableName() string {
	return "webhook_delivery_logs"
}

func (l *DeliveryLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	if l.ExpiresAt.IsZero() {
		l.ExpiresAt = l.CreatedAt.Add(LogRetention)
	}
	return nil
}
