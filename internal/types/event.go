package types

import "gorm.io/datatypes"

// Event is an append-only audit record.
type Event struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkflowID int64          `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	Timestamp  Timestamp      `gorm:"column:timestamp;not null;index" json:"timestamp"`
	Data       datatypes.JSON `gorm:"column:data" json:"data,omitempty"`
}

func (Event) TableName() string { return "event" }
