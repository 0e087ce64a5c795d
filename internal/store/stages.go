package store

import (
	"context"

	"github.com/marminbh/automation-svc/internal/models"
)

// GetStage reads a pipeline stage owned by the CRM
func (s *Store) GetStage(ctx context.Context, id string) (*models.PipelineStage, error) {
	var stage models.PipelineStage
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&stage).Error; err != nil {
		return nil, translate(err)
	}
	return &stage, nil
}

// SaveStage upserts a stage record
func (s *Store) SaveStage(ctx context.Context, stage *models.PipelineStage) error {
	return s.db.WithContext(ctx).Save(stage).Error
}
