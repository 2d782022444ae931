package types

import "gorm.io/datatypes"

type TriggerType string

const (
	TriggerOnWorkflowStart    TriggerType = "on_workflow_start"
	TriggerOnWorkflowComplete TriggerType = "on_workflow_complete"
	TriggerOnWorkerStart      TriggerType = "on_worker_start"
	TriggerOnWorkerComplete   TriggerType = "on_worker_complete"
	TriggerOnJobsReady        TriggerType = "on_jobs_ready"
	TriggerOnJobsComplete     TriggerType = "on_jobs_complete"
)

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerOnWorkflowStart, TriggerOnWorkflowComplete,
		TriggerOnWorkerStart, TriggerOnWorkerComplete,
		TriggerOnJobsReady, TriggerOnJobsComplete:
		return true
	}
	return false
}

// JobScoped reports whether the trigger counts per-job rather than per-event.
func (t TriggerType) JobScoped() bool {
	return t == TriggerOnJobsReady || t == TriggerOnJobsComplete
}

type ActionType string

const (
	ActionRunCommands   ActionType = "run_commands"
	ActionScheduleNodes ActionType = "schedule_nodes"
)

func (t ActionType) Valid() bool {
	return t == ActionRunCommands || t == ActionScheduleNodes
}

type WorkflowAction struct {
	ID               int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkflowID       int64          `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	TriggerType      TriggerType    `gorm:"column:trigger_type;not null;index" json:"trigger_type"`
	ActionType       ActionType     `gorm:"column:action_type;not null" json:"action_type"`
	ActionConfig     datatypes.JSON `gorm:"column:action_config;not null" json:"action_config"`
	JobIDs           datatypes.JSON `gorm:"column:job_ids" json:"job_ids,omitempty"`
	TriggerCount     int            `gorm:"column:trigger_count;not null;default:0" json:"trigger_count"`
	RequiredTriggers int            `gorm:"column:required_triggers;not null;default:1" json:"required_triggers"`
	Executed         bool           `gorm:"column:executed;not null;default:false" json:"executed"`
	ExecutedAt       *Timestamp     `gorm:"column:executed_at" json:"executed_at,omitempty"`
	ExecutedBy       *int64         `gorm:"column:executed_by" json:"executed_by,omitempty"`
	Persistent       bool           `gorm:"column:persistent;not null;default:false" json:"persistent"`
	IsRecovery       bool           `gorm:"column:is_recovery;not null;default:false" json:"is_recovery"`
}

func (WorkflowAction) TableName() string { return "workflow_action" }
