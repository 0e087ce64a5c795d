package models

// PipelineStage is the CRM's stage record, read to decide won and lost cascades
type PipelineStage struct {
	ID         string `gorm:"primaryKey" json:"id"`
	PipelineID string `gorm:"index;not null" json:"pipelineId"`
	Name       string `json:"name"`
	IsWon      bool   `gorm:"not null" json:"isWon"`
	IsClosed   bool   `gorm:"not null" json:"isClosed"`
}

func (PipelineStage) TableName() string {
	return "pipeline_stages"
}
