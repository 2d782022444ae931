package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/types"
)

type AccessRepo interface {
	CreateGroup(ctx context.Context, tx *gorm.DB, group *types.AccessGroup) error
	AddMember(ctx context.Context, tx *gorm.DB, member *types.UserGroupMembership) error
	GrantWorkflow(ctx context.Context, tx *gorm.DB, grant *types.WorkflowAccessGroup) error
	// UserHasAccess checks the join tables: true when the workflow has no
	// groups at all, or the user belongs to a granted group.
	UserHasAccess(ctx context.Context, tx *gorm.DB, user string, workflowID int64) (bool, error)
}

type accessRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAccessRepo(db *gorm.DB, baseLog *logger.Logger) AccessRepo {
	return &accessRepo{db: db, log: baseLog.With("repo", "AccessRepo")}
}

func (r *accessRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *accessRepo) CreateGroup(ctx context.Context, tx *gorm.DB, group *types.AccessGroup) error {
	return r.handle(tx).WithContext(ctx).Create(group).Error
}

func (r *accessRepo) AddMember(ctx context.Context, tx *gorm.DB, member *types.UserGroupMembership) error {
	return r.handle(tx).WithContext(ctx).Create(member).Error
}

func (r *accessRepo) GrantWorkflow(ctx context.Context, tx *gorm.DB, grant *types.WorkflowAccessGroup) error {
	return r.handle(tx).WithContext(ctx).Create(grant).Error
}

func (r *accessRepo) UserHasAccess(ctx context.Context, tx *gorm.DB, user string, workflowID int64) (bool, error) {
	var grantCount int64
	err := r.handle(tx).WithContext(ctx).
		Model(&types.WorkflowAccessGroup{}).
		Where("workflow_id = ?", workflowID).
		Count(&grantCount).Error
	if err != nil {
		return false, err
	}
	if grantCount == 0 {
		return true, nil
	}
	var memberCount int64
	err = r.handle(tx).WithContext(ctx).
		Model(&types.UserGroupMembership{}).
		Where(`"user" = ? AND group_id IN (?)`, user,
			r.handle(tx).Model(&types.WorkflowAccessGroup{}).Select("group_id").Where("workflow_id = ?", workflowID)).
		Count(&memberCount).Error
	if err != nil {
		return false, err
	}
	return memberCount > 0, nil
}
