package types

type ResourceRequirements struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkflowID  int64  `gorm:"column:workflow_id;not null;index" json:"workflow_id"`
	Name        string `gorm:"not null;index" json:"name"`
	NumCPUs     int    `gorm:"column:num_cpus;not null;default:1" json:"num_cpus"`
	NumGPUs     int    `gorm:"column:num_gpus;not null;default:0" json:"num_gpus"`
	NumNodes    int    `gorm:"column:num_nodes;not null;default:1" json:"num_nodes"`
	Memory      string `gorm:"column:memory;not null;default:1m" json:"memory"`
	MemoryBytes int64  `gorm:"column:memory_bytes;not null;default:0" json:"memory_bytes"`
	Runtime     string `gorm:"column:runtime;not null;default:PT1M" json:"runtime"`
	RuntimeS    int64  `gorm:"column:runtime_s;not null;default:0" json:"runtime_s"`
}

func (ResourceRequirements) TableName() string { return "resource_requirements" }
