package types

type RemoteWorker struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkerID   string `gorm:"column:worker_id;not null;uniqueIndex:idx_remote_worker_pair" json:"worker_id"`
	WorkflowID int64  `gorm:"column:workflow_id;not null;uniqueIndex:idx_remote_worker_pair" json:"workflow_id"`
}

func (RemoteWorker) TableName() string { return "remote_worker" }
