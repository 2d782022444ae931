package types

import "time"

type File struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkflowID int64      `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	Name       string     `gorm:"not null;index" json:"name"`
	Path       string     `gorm:"not null" json:"path"`
	Mtime      *time.Time `gorm:"column:st_mtime" json:"st_mtime,omitempty"`
}

func (File) TableName() string { return "file" }
