package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marminbh/automation-svc/internal/models"
)

// AttemptResult is what one HTTP attempt writes back to its log row
type AttemptResult struct {
	Status          models.DeliveryStatus
	RequestHeaders  map[string]string
	ResponseStatus  *int
	ResponseHeaders map[string]string
	ResponseBody    *string
	LatencyMs       *int
	Error           *string
	NextRetryAt     *time.Time
}

func (s *Store) CreateDeliveryLog(ctx context.Context, log *models.DeliveryLog) error {
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create delivery log: %w", err)
	}
	return nil
}

func (s *Store) GetDeliveryLog(ctx context.Context, id uuid.UUID) (*models.DeliveryLog, error) {
	var log models.DeliveryLog
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&log).Error; err != nil {
		return nil, translate(err)
	}
	return &log, nil
}

// ListDeliveryLogs returns a subscription's logs newest first, optionally
// narrowed to one status
func (s *Store) ListDeliveryLogs(ctx context.Context, subscriptionID uuid.UUID, status models.DeliveryStatus, page Page) ([]models.DeliveryLog, error) {
	q := s.db.WithContext(ctx).Model(&models.DeliveryLog{}).Where("subscription_id = ?", subscriptionID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var logs []models.DeliveryLog
	if err := page.apply(q).Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list delivery logs: %w", err)
	}
	return logs, nil
}

// DueDeliveryLogs returns retrying rows whose next_retry_at has passed and
// pending rows untouched since staleBefore, which an interrupted process left
// behind. Rows come oldest first: retrying rows by next_retry_at, stale rows
// by their last update.
func (s *Store) DueDeliveryLogs(ctx context.Context, now, staleBefore time.Time, limit int) ([]models.DeliveryLog, error) {
	var logs []models.DeliveryLog
	err := s.db.WithContext(ctx).
		Where("(status = ? AND next_retry_at <= ?) OR (status = ? AND updated_at < ?)",
			models.DeliveryRetrying, now.UTC(), models.DeliveryPending, staleBefore.UTC()).
		Order("COALESCE(next_retry_at, updated_at) ASC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load due delivery logs: %w", err)
	}
	return logs, nil
}

// ClaimDeliveryLog moves a due row back to pending and increments attempts,
// provided nobody else changed it since it was read. The in-memory row is
// updated to match on success.
func (s *Store) ClaimDeliveryLog(ctx context.Context, log *models.DeliveryLog) error {
	now := s.now()
	result := s.db.WithContext(ctx).Model(&models.DeliveryLog{}).
		Where("id = ? AND status = ? AND attempts = ?", log.ID, log.Status, log.Attempts).
		UpdateColumns(map[string]interface{}{
			"status":        models.DeliveryPending,
			"attempts":      log.Attempts + 1,
			"next_retry_at": nil,
			"updated_at":    now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to claim delivery log: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		return ErrNotClaimed
	}

	log.Status = models.DeliveryPending
	log.Attempts++
	log.NextRetryAt = nil
	log.UpdatedAt = now
	return nil
}

// CompleteAttempt records the outcome of attempt number attempt. Rows that
// moved on since the attempt started are left alone.
func (s *Store) CompleteAttempt(ctx context.Context, id uuid.UUID, attempt int, res AttemptResult) error {
	updates := map[string]interface{}{
		"status":        res.Status,
		"next_retry_at": res.NextRetryAt,
		"error":         res.Error,
		"updated_at":    s.now(),
	}
	if res.RequestHeaders != nil {
		updates["request_headers"] = jsonColumn(res.RequestHeaders)
	}
	if res.ResponseStatus != nil {
		updates["response_status"] = *res.ResponseStatus
	}
	if res.ResponseHeaders != nil {
		updates["response_headers"] = jsonColumn(res.ResponseHeaders)
	}
	if res.ResponseBody != nil {
		updates["response_body"] = *res.ResponseBody
	}
	if res.LatencyMs != nil {
		updates["latency_ms"] = *res.LatencyMs
	}

	result := s.db.WithContext(ctx).Model(&models.DeliveryLog{}).
		Where("id = ? AND attempts = ? AND status = ?", id, attempt, models.DeliveryPending).
		UpdateColumns(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to complete delivery attempt: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		return ErrNotClaimed
	}
	return nil
}

// FailDeliveryLog terminally fails a claimed row without sending
func (s *Store) FailDeliveryLog(ctx context.Context, id uuid.UUID, attempt int, reason string) error {
	return s.CompleteAttempt(ctx, id, attempt, AttemptResult{
		Status: models.DeliveryFailed,
		Error:  &reason,
	})
}

// DeleteExpiredDeliveryLogs removes rows past their retention
func (s *Store) DeleteExpiredDeliveryLogs(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&models.DeliveryLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired delivery logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
