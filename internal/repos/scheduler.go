package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/types"
)

type SchedulerRepo interface {
	CreateLocal(ctx context.Context, tx *gorm.DB, s *types.LocalScheduler) error
	GetLocal(ctx context.Context, tx *gorm.DB, id int64) (*types.LocalScheduler, error)
	ListLocal(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error)
	DeleteLocal(ctx context.Context, tx *gorm.DB, id int64) error

	CreateSlurm(ctx context.Context, tx *gorm.DB, s *types.SlurmScheduler) error
	GetSlurm(ctx context.Context, tx *gorm.DB, id int64) (*types.SlurmScheduler, error)
	ListSlurm(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error)
	DeleteSlurm(ctx context.Context, tx *gorm.DB, id int64) error

	CreateScheduledNode(ctx context.Context, tx *gorm.DB, n *types.ScheduledComputeNode) error
	GetScheduledNode(ctx context.Context, tx *gorm.DB, id int64) (*types.ScheduledComputeNode, error)
	ListScheduledNodes(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error)
	UpdateScheduledNodeStatus(ctx context.Context, tx *gorm.DB, id int64, status types.ScheduledComputeNodeStatus) error
	DeleteScheduledNode(ctx context.Context, tx *gorm.DB, id int64) error
}

type schedulerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSchedulerRepo(db *gorm.DB, baseLog *logger.Logger) SchedulerRepo {
	return &schedulerRepo{db: db, log: baseLog.With("repo", "SchedulerRepo")}
}

func (r *schedulerRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *schedulerRepo) CreateLocal(ctx context.Context, tx *gorm.DB, s *types.LocalScheduler) error {
	return r.handle(tx).WithContext(ctx).Create(s).Error
}

func (r *schedulerRepo) GetLocal(ctx context.Context, tx *gorm.DB, id int64) (*types.LocalScheduler, error) {
	var s types.LocalScheduler
	err := r.handle(tx).WithContext(ctx).First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *schedulerRepo) ListLocal(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error) {
	q := r.handle(tx).WithContext(ctx).Model(&types.LocalScheduler{}).Where("workflow_id = ?", workflowID)
	var items []types.LocalScheduler
	return Paginate(q, page, &items)
}

func (r *schedulerRepo) DeleteLocal(ctx context.Context, tx *gorm.DB, id int64) error {
	return r.handle(tx).WithContext(ctx).Delete(&types.LocalScheduler{}, "id = ?", id).Error
}

func (r *schedulerRepo) CreateSlurm(ctx context.Context, tx *gorm.DB, s *types.SlurmScheduler) error {
	return r.handle(tx).WithContext(ctx).Create(s).Error
}

func (r *schedulerRepo) GetSlurm(ctx context.Context, tx *gorm.DB, id int64) (*types.SlurmScheduler, error) {
	var s types.SlurmScheduler
	err := r.handle(tx).WithContext(ctx).First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *schedulerRepo) ListSlurm(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error) {
	q := r.handle(tx).WithContext(ctx).Model(&types.SlurmScheduler{}).Where("workflow_id = ?", workflowID)
	var items []types.SlurmScheduler
	return Paginate(q, page, &items)
}

func (r *schedulerRepo) DeleteSlurm(ctx context.Context, tx *gorm.DB, id int64) error {
	return r.handle(tx).WithContext(ctx).Delete(&types.SlurmScheduler{}, "id = ?", id).Error
}

func (r *schedulerRepo) CreateScheduledNode(ctx context.Context, tx *gorm.DB, n *types.ScheduledComputeNode) error {
	return r.handle(tx).WithContext(ctx).Create(n).Error
}

func (r *schedulerRepo) GetScheduledNode(ctx context.Context, tx *gorm.DB, id int64) (*types.ScheduledComputeNode, error) {
	var n types.ScheduledComputeNode
	err := r.handle(tx).WithContext(ctx).First(&n, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *schedulerRepo) ListScheduledNodes(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error) {
	q := r.handle(tx).WithContext(ctx).Model(&types.ScheduledComputeNode{}).Where("workflow_id = ?", workflowID)
	var items []types.ScheduledComputeNode
	return Paginate(q, page, &items)
}

func (r *schedulerRepo) UpdateScheduledNodeStatus(ctx context.Context, tx *gorm.DB, id int64, status types.ScheduledComputeNodeStatus) error {
	return r.handle(tx).WithContext(ctx).
		Model(&types.ScheduledComputeNode{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *schedulerRepo) DeleteScheduledNode(ctx context.Context, tx *gorm.DB, id int64) error {
	return r.handle(tx).WithContext(ctx).Delete(&types.ScheduledComputeNode{}, "id = ?", id).Error
}
