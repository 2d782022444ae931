package types

type LocalScheduler struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkflowID int64  `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	Name       string `gorm:"not null" json:"name"`
	Memory     string `gorm:"column:memory" json:"memory,omitempty"`
	NumCPUs    int    `gorm:"column:num_cpus;not null;default:1" json:"num_cpus"`
}

func (LocalScheduler) TableName() string { return "local_scheduler" }

type SlurmScheduler struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkflowID int64  `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	Name       string `gorm:"not null" json:"name"`
	Account    string `gorm:"column:account;not null" json:"account"`
	Gres       *string `gorm:"column:gres" json:"gres,omitempty"`
	Mem        *string `gorm:"column:mem" json:"mem,omitempty"`
	Nodes      int    `gorm:"column:nodes;not null;default:1" json:"nodes"`
	Partition  *string `gorm:"column:partition" json:"partition,omitempty"`
	Qos        *string `gorm:"column:qos" json:"qos,omitempty"`
	Walltime   string `gorm:"column:walltime;not null;default:04:00:00" json:"walltime"`
	Extra      *string `gorm:"column:extra" json:"extra,omitempty"`
}

func (SlurmScheduler) TableName() string { return "slurm_scheduler" }

type ScheduledComputeNodeStatus string

const (
	ScheduledNodePending   ScheduledComputeNodeStatus = "pending"
	ScheduledNodeSubmitted ScheduledComputeNodeStatus = "submitted"
	ScheduledNodeActive    ScheduledComputeNodeStatus = "active"
	ScheduledNodeComplete  ScheduledComputeNodeStatus = "complete"
)

// ScheduledComputeNode tracks the lifecycle of a requested HPC allocation.
type ScheduledComputeNode struct {
	ID            int64                      `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkflowID    int64                      `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	SchedulerID   int64                      `gorm:"column:scheduler_id;not null;index" json:"scheduler_id"`
	ScheduleID    *string                    `gorm:"column:schedule_id" json:"schedule_id,omitempty"`
	Status        ScheduledComputeNodeStatus `gorm:"column:status;not null;default:pending" json:"status"`
	SchedulerType string                     `gorm:"column:scheduler_type;not null;default:slurm" json:"scheduler_type"`
}

func (ScheduledComputeNode) TableName() string { return "scheduled_compute_node" }
