package types

import "time"

type Job struct {
	ID                         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkflowID                 int64     `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	Name                       string    `gorm:"not null;index" json:"name"`
	Command                    string    `gorm:"not null" json:"command"`
	InvocationScript           *string   `gorm:"column:invocation_script" json:"invocation_script,omitempty"`
	ResourceRequirementsID     *int64    `gorm:"column:resource_requirements_id;index" json:"resource_requirements_id,omitempty"`
	SchedulerID                *int64    `gorm:"column:scheduler_id;index" json:"scheduler_id,omitempty"`
	CancelOnBlockingJobFailure bool      `gorm:"column:cancel_on_blocking_job_failure;not null;default:false" json:"cancel_on_blocking_job_failure"`
	SupportsTermination        bool      `gorm:"column:supports_termination;not null;default:false" json:"supports_termination"`
	Status                     JobStatus `gorm:"column:status;not null;index" json:"status"`
	CreatedAt                  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt                  time.Time `gorm:"not null" json:"updated_at"`

	// Populated on request (include_relationships), never stored inline.
	DependsOn          []int64 `gorm:"-" json:"depends_on,omitempty"`
	InputFileIDs       []int64 `gorm:"-" json:"input_file_ids,omitempty"`
	OutputFileIDs      []int64 `gorm:"-" json:"output_file_ids,omitempty"`
	InputUserDataIDs   []int64 `gorm:"-" json:"input_user_data_ids,omitempty"`
	OutputUserDataIDs  []int64 `gorm:"-" json:"output_user_data_ids,omitempty"`
}

func (Job) TableName() string { return "job" }

// JobInternal carries bookkeeping the public Job payload does not expose:
// the stored input hash, the node currently running the job, the retry
// counter and the last issued run id.
type JobInternal struct {
	JobID               int64   `gorm:"primaryKey" json:"job_id"`
	WorkflowID          int64   `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	InputHash           *string `gorm:"column:input_hash" json:"input_hash,omitempty"`
	ActiveComputeNodeID *int64  `gorm:"column:active_compute_node_id" json:"active_compute_node_id,omitempty"`
	Attempts            int     `gorm:"column:attempts;not null;default:0" json:"attempts"`
	RunID               int64   `gorm:"column:run_id;not null;default:0" json:"run_id"`
}

func (JobInternal) TableName() string { return "job_internal" }

type JobDependency struct {
	JobID       int64 `gorm:"primaryKey;column:job_id" json:"job_id"`
	DependsOnID int64 `gorm:"primaryKey;column:depends_on_id" json:"depends_on_id"`
}

func (JobDependency) TableName() string { return "job_depends_on" }

type JobInputFile struct {
	JobID  int64 `gorm:"primaryKey;column:job_id" json:"job_id"`
	FileID int64 `gorm:"primaryKey;column:file_id" json:"file_id"`
}

func (JobInputFile) TableName() string { return "job_input_file" }

type JobOutputFile struct {
	JobID  int64 `gorm:"primaryKey;column:job_id" json:"job_id"`
	FileID int64 `gorm:"primaryKey;column:file_id" json:"file_id"`
}

func (JobOutputFile) TableName() string { return "job_output_file" }

type JobInputUserData struct {
	JobID      int64 `gorm:"primaryKey;column:job_id" json:"job_id"`
	UserDataID int64 `gorm:"primaryKey;column:user_data_id" json:"user_data_id"`
}

func (JobInputUserData) TableName() string { return "job_input_user_data" }

type JobOutputUserData struct {
	JobID      int64 `gorm:"primaryKey;column:job_id" json:"job_id"`
	UserDataID int64 `gorm:"primaryKey;column:user_data_id" json:"user_data_id"`
}

func (JobOutputUserData) TableName() string { return "job_output_user_data" }
