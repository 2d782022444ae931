package types

type Result struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID          int64     `gorm:"column:job_id;not null;index" json:"job_id"`
	WorkflowID     int64     `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	RunID          int64     `gorm:"column:run_id;not null" json:"run_id"`
	ComputeNodeID  int64     `gorm:"column:compute_node_id;not null" json:"compute_node_id"`
	ReturnCode     int       `gorm:"column:return_code;not null" json:"return_code"`
	ExecTimeMinutes float64  `gorm:"column:exec_time_minutes;not null;default:0" json:"exec_time_minutes"`
	CompletionTime Timestamp `gorm:"column:completion_time;not null" json:"completion_time"`
	Status         JobStatus `gorm:"column:status;not null" json:"status"`
	PeakMemoryBytes int64    `gorm:"column:peak_memory_bytes;not null;default:0" json:"peak_memory_bytes"`
	AvgMemoryBytes  int64    `gorm:"column:avg_memory_bytes;not null;default:0" json:"avg_memory_bytes"`
	PeakCPUPercent  float64  `gorm:"column:peak_cpu_percent;not null;default:0" json:"peak_cpu_percent"`
	AvgCPUPercent   float64  `gorm:"column:avg_cpu_percent;not null;default:0" json:"avg_cpu_percent"`
}

func (Result) TableName() string { return "result" }

// WorkflowResult points at the current (latest-run) result per job.
type WorkflowResult struct {
	WorkflowID int64 `gorm:"primaryKey;column:workflow_id" json:"workflow_id"`
	JobID      int64 `gorm:"primaryKey;column:job_id" json:"job_id"`
	ResultID   int64 `gorm:"column:result_id;not null" json:"result_id"`
}

func (WorkflowResult) TableName() string { return "workflow_result" }
