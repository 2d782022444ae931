package types

import "gorm.io/datatypes"

type UserData struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkflowID  int64          `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	Name        string         `gorm:"not null;index" json:"name"`
	IsEphemeral bool           `gorm:"column:is_ephemeral;not null;default:false" json:"is_ephemeral"`
	Data        datatypes.JSON `gorm:"column:data" json:"data,omitempty"`
}

func (UserData) TableName() string { return "user_data" }
