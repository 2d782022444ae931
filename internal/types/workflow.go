package types

import "time"

type Workflow struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"not null;index" json:"name"`
	User        string    `gorm:"column:user;not null;index" json:"user"`
	Description string    `gorm:"column:description" json:"description,omitempty"`
	IsArchived  bool      `gorm:"column:is_archived;not null;default:false" json:"is_archived"`
	Status      string    `gorm:"column:status;not null;default:uninitialized" json:"status"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Workflow) TableName() string { return "workflow" }

// WorkflowStatusSummary is the rollup returned by GET /workflows/:id/status.
type WorkflowStatusSummary struct {
	WorkflowID  int64            `json:"workflow_id"`
	JobCounts   map[string]int64 `json:"job_counts"`
	TotalJobs   int64            `json:"total_jobs"`
	IsComplete  bool             `json:"is_complete"`
	HasFailures bool             `json:"has_failures"`
}
