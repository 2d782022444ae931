package types

import "gorm.io/datatypes"

type FailureHandler struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkflowID int64          `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	Name       string         `gorm:"not null" json:"name"`
	Rules      datatypes.JSON `gorm:"column:rules" json:"rules,omitempty"`
}

func (FailureHandler) TableName() string { return "failure_handler" }
