package types

import (
	"gorm.io/datatypes"
)

type ComputeNodeType string

const (
	ComputeNodeLocal ComputeNodeType = "local"
	ComputeNodeSlurm ComputeNodeType = "slurm"
)

type ComputeNode struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkflowID int64           `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	Hostname   string          `gorm:"not null;index" json:"hostname"`
	PID        int             `gorm:"column:pid;not null" json:"pid"`
	StartTime  Timestamp       `gorm:"column:start_time;not null" json:"start_time"`
	Duration   *string         `gorm:"column:duration" json:"duration,omitempty"`
	IsActive   bool            `gorm:"column:is_active;not null;default:true" json:"is_active"`
	NumCPUs    int             `gorm:"column:num_cpus;not null;default:1" json:"num_cpus"`
	NumGPUs    int             `gorm:"column:num_gpus;not null;default:0" json:"num_gpus"`
	NumNodes   int             `gorm:"column:num_nodes;not null;default:1" json:"num_nodes"`
	Memory     string          `gorm:"column:memory;not null;default:1m" json:"memory"`
	TimeLimit  *string         `gorm:"column:time_limit" json:"time_limit,omitempty"`
	Type       ComputeNodeType `gorm:"column:type;not null;default:local" json:"type"`
	Scheduler  datatypes.JSON  `gorm:"column:scheduler" json:"scheduler,omitempty"`
}

func (ComputeNode) TableName() string { return "compute_node" }

// ComputeNodesResources is the resource budget a claiming worker offers.
type ComputeNodesResources struct {
	NumCPUs           int     `json:"num_cpus"`
	MemoryGB          float64 `json:"memory_gb"`
	NumGPUs           int     `json:"num_gpus"`
	NumNodes          int     `json:"num_nodes"`
	TimeLimit         *string `json:"time_limit,omitempty"`
	SchedulerConfigID *int64  `json:"scheduler_config_id,omitempty"`
}
