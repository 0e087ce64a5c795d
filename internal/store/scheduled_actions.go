package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marminbh/automation-svc/internal/models"
)

func (s *Store) CreateScheduledAction(ctx context.Context, sa *models.ScheduledAction) error {
	if err := s.db.WithContext(ctx).Create(sa).Error; err != nil {
		return fmt.Errorf("failed to schedule action continuation: %w", err)
	}
	return nil
}

func (s *Store) GetScheduledAction(ctx context.Context, id uuid.UUID) (*models.ScheduledAction, error) {
	var sa models.ScheduledAction
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sa).Error; err != nil {
		return nil, translate(err)
	}
	return &sa, nil
}

// DueScheduledActions returns pending continuations whose run_at has passed
func (s *Store) DueScheduledActions(ctx context.Context, now time.Time, limit int) ([]models.ScheduledAction, error) {
	var due []models.ScheduledAction
	err := s.db.WithContext(ctx).
		Where("status = ? AND run_at <= ?", models.ScheduledPending, now.UTC()).
		Order("run_at ASC").
		Limit(limit).
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load due continuations: %w", err)
	}
	return due, nil
}

// ClaimScheduledAction moves a pending continuation to running. Exactly one
// caller wins.
func (s *Store) ClaimScheduledAction(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&models.ScheduledAction{}).
		Where("id = ? AND status = ?", id, models.ScheduledPending).
		UpdateColumns(map[string]interface{}{
			"status":     models.ScheduledRunning,
			"updated_at": s.now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to claim continuation: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		return ErrNotClaimed
	}
	return nil
}

// FinishScheduledAction marks a running continuation done or failed
func (s *Store) FinishScheduledAction(ctx context.Context, id uuid.UUID, status models.ScheduledStatus, reason *string) error {
	err := s.db.WithContext(ctx).Model(&models.ScheduledAction{}).
		Where("id = ? AND status = ?", id, models.ScheduledRunning).
		UpdateColumns(map[string]interface{}{
			"status":     status,
			"error":      reason,
			"updated_at": s.now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to finish continuation: %w", err)
	}
	return nil
}

// DeleteFinishedScheduledActions removes done and failed continuations last
// touched before cutoff
func (s *Store) DeleteFinishedScheduledActions(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []models.ScheduledStatus{models.ScheduledDone, models.ScheduledFailed}, cutoff.UTC()).
		Delete(&models.ScheduledAction{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete finished continuations: %w", result.Error)
	}
	return result.RowsAffected, nil
}
