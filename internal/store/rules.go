package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marminbh/automation-svc/internal/models"
)

// RuleFilter narrows ListRules; zero fields are ignored
type RuleFilter struct {
	OwnerID string
	Trigger models.RuleTrigger
	Active  *bool
	Page
}

func (s *Store) CreateRule(ctx context.Context, rule *models.Rule) error {
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	var rule models.Rule
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error; err != nil {
		return nil, translate(err)
	}
	return &rule, nil
}

// ListRules returns matching rules newest first
func (s *Store) ListRules(ctx context.Context, f RuleFilter) ([]models.Rule, error) {
	q := s.db.WithContext(ctx).Model(&models.Rule{})
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.Trigger != "" {
		q = q.Where(map[string]interface{}{"trigger": f.Trigger})
	}
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}

	var rules []models.Rule
	err := f.Page.apply(q).Order("created_at DESC").Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// UpdateRule overwrites the definition fields. Counters are left untouched.
func (s *Store) UpdateRule(ctx context.Context, rule *models.Rule) error {
	result := s.db.WithContext(ctx).Model(&models.Rule{}).
		Where("id = ?", rule.ID).
		Select("name", "description", "trigger", "conditions", "actions", "is_active", "updated_at").
		Updates(rule)
	if result.Error != nil {
		return fmt.Errorf("failed to update rule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Rule{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete rule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveRulesByTrigger loads the rules a dispatch of trigger must evaluate
func (s *Store) ActiveRulesByTrigger(ctx context.Context, trigger models.RuleTrigger) ([]models.Rule, error) {
	var rules []models.Rule
	err := s.db.WithContext(ctx).
		Where(map[string]interface{}{"trigger": trigger, "is_active": true}).
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load rules for %s: %w", trigger, err)
	}
	return rules, nil
}

// RecordRuleRun bumps the execution counter and moves last_executed_at
// forward, never backward
func (s *Store) RecordRuleRun(ctx context.Context, id uuid.UUID, at time.Time) error {
	at = at.UTC()
	result := s.db.WithContext(ctx).Model(&models.Rule{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"execution_count": gorm.Expr("execution_count + 1"),
			"last_executed_at": gorm.Expr(
				"CASE WHEN last_executed_at IS NULL OR last_executed_at < ? THEN ? ELSE last_executed_at END", at, at),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record rule run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
