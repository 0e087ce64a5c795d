package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marminbh/automation-svc/internal/models"
)

func (s *Store) CreateExecution(ctx context.Context, exec *models.RuleExecution) error {
	if err := s.db.WithContext(ctx).Create(exec).Error; err != nil {
		return fmt.Errorf("failed to create rule execution: %w", err)
	}
	return nil
}

// ListExecutions returns a rule's runs newest first
func (s *Store) ListExecutions(ctx context.Context, ruleID uuid.UUID, page Page) ([]models.RuleExecution, error) {
	var execs []models.RuleExecution
	q := s.db.WithContext(ctx).Where("rule_id = ?", ruleID)
	if err := page.apply(q).Order("created_at DESC").Find(&execs).Error; err != nil {
		return nil, fmt.Errorf("failed to list rule executions: %w", err)
	}
	return execs, nil
}

func (s *Store) DeleteExpiredExecutions(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&models.RuleExecution{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired rule executions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
