package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marminbh/automation-svc/internal/models"
)

func (s *Store) CreateSubscription(ctx context.Context, sub *models.WebhookSubscription) error {
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to create webhook subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, id uuid.UUID) (*models.WebhookSubscription, error) {
	var sub models.WebhookSubscription
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

// ListSubscriptions returns an owner's subscriptions newest first
func (s *Store) ListSubscriptions(ctx context.Context, ownerID string, page Page) ([]models.WebhookSubscription, error) {
	q := s.db.WithContext(ctx).Model(&models.WebhookSubscription{})
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}

	var subs []models.WebhookSubscription
	if err := page.apply(q).Order("created_at DESC").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list webhook subscriptions: %w", err)
	}
	return subs, nil
}

// UpdateSubscription overwrites the definition fields. A blank secret keeps
// the stored one. Health counters are left untouched.
func (s *Store) UpdateSubscription(ctx context.Context, sub *models.WebhookSubscription) error {
	columns := []interface{}{"description", "url", "events", "filters", "headers", "is_active", "max_retries", "timeout_ms", "updated_at"}
	if sub.Secret != "" {
		columns = append(columns, "secret")
	}

	result := s.db.WithContext(ctx).Model(&models.WebhookSubscription{}).
		Where("id = ?", sub.ID).
		Select("name", columns...).
		Updates(sub)
	if result.Error != nil {
		return fmt.Errorf("failed to update webhook subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.WebhookSubscription{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete webhook subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MatchingSubscriptions returns active subscriptions listening to event whose
// circuit breaker has not tripped
func (s *Store) MatchingSubscriptions(ctx context.Context, event string) ([]models.WebhookSubscription, error) {
	var candidates []models.WebhookSubscription
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND consecutive_failures < ?", true, models.SuspendThreshold).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook subscriptions: %w", err)
	}

	matched := candidates[:0]
	for _, sub := range candidates {
		if sub.ListensTo(event) {
			matched = append(matched, sub)
		}
	}
	return matched, nil
}

// RecordDeliverySuccess closes the circuit and counts the send
func (s *Store) RecordDeliverySuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	at = at.UTC()
	err := s.db.WithContext(ctx).Model(&models.WebhookSubscription{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"total_sent":           gorm.Expr("total_sent + 1"),
			"consecutive_failures": 0,
			"last_success_at":      at,
			"last_triggered_at":    at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record delivery success: %w", err)
	}
	return nil
}

// RecordDeliveryFailure counts a failed attempt. total_failed only moves when
// the delivery will not be retried.
func (s *Store) RecordDeliveryFailure(ctx context.Context, id uuid.UUID, at time.Time, reason string, terminal bool) error {
	at = at.UTC()
	updates := map[string]interface{}{
		"consecutive_failures": gorm.Expr("consecutive_failures + 1"),
		"last_error_at":        at,
		"last_error":           reason,
		"last_triggered_at":    at,
	}
	if terminal {
		updates["total_failed"] = gorm.Expr("total_failed + 1")
	}

	err := s.db.WithContext(ctx).Model(&models.WebhookSubscription{}).
		Where("id = ?", id).
		UpdateColumns(updates).Error
	if err != nil {
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}
	return nil
}

// ResetSubscriptionHealth clears the consecutive failure counter so a
// suspended subscription receives events again
func (s *Store) ResetSubscriptionHealth(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&models.WebhookSubscription{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"consecutive_failures": 0,
			"updated_at":           s.now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to reset webhook subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
