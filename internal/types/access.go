package types

type AccessGroup struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"not null;uniqueIndex" json:"name"`
}

func (AccessGroup) TableName() string { return "access_group" }

type UserGroupMembership struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	User    string `gorm:"column:user;not null;uniqueIndex:idx_user_group" json:"user"`
	GroupID int64  `gorm:"column:group_id;not null;uniqueIndex:idx_user_group" json:"group_id"`
}

func (UserGroupMembership) TableName() string { return "user_group_membership" }

type WorkflowAccessGroup struct {
	ID         int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkflowID int64 `gorm:"column:workflow_id;not null;uniqueIndex:idx_workflow_group" json:"workflow_id"`
	GroupID    int64 `gorm:"column:group_id;not null;uniqueIndex:idx_workflow_group" json:"group_id"`
}

func (WorkflowAccessGroup) TableName() string { return "workflow_access_group" }
