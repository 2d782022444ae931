package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/types"
)

type ComputeNodeRepo interface {
	Create(ctx context.Context, tx *gorm.DB, node *types.ComputeNode) error
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.ComputeNode, error)
	List(ctx context.Context, tx *gorm.DB, workflowID int64, activeOnly bool, page Page) (*Envelope, error)
	Update(ctx context.Context, tx *gorm.DB, node *types.ComputeNode) error
	Deactivate(ctx context.Context, tx *gorm.DB, id int64, duration string) (bool, error)
	Delete(ctx context.Context, tx *gorm.DB, id int64) error
}

type computeNodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewComputeNodeRepo(db *gorm.DB, baseLog *logger.Logger) ComputeNodeRepo {
	return &computeNodeRepo{db: db, log: baseLog.With("repo", "ComputeNodeRepo")}
}

func (r *computeNodeRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *computeNodeRepo) Create(ctx context.Context, tx *gorm.DB, node *types.ComputeNode) error {
	return r.handle(tx).WithContext(ctx).Create(node).Error
}

func (r *computeNodeRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.ComputeNode, error) {
	var node types.ComputeNode
	err := r.handle(tx).WithContext(ctx).First(&node, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (r *computeNodeRepo) List(ctx context.Context, tx *gorm.DB, workflowID int64, activeOnly bool, page Page) (*Envelope, error) {
	q := r.handle(tx).WithContext(ctx).Model(&types.ComputeNode{}).Where("workflow_id = ?", workflowID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var items []types.ComputeNode
	return Paginate(q, page, &items)
}

func (r *computeNodeRepo) Update(ctx context.Context, tx *gorm.DB, node *types.ComputeNode) error {
	return r.handle(tx).WithContext(ctx).Save(node).Error
}

// Deactivate marks a node inactive at worker shutdown and records how long
// it was up. Reports whether the row existed and was active.
func (r *computeNodeRepo) Deactivate(ctx context.Context, tx *gorm.DB, id int64, duration string) (bool, error) {
	res := r.handle(tx).WithContext(ctx).
		Model(&types.ComputeNode{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{"is_active": false, "duration": duration})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *computeNodeRepo) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	return r.handle(tx).WithContext(ctx).Delete(&types.ComputeNode{}, "id = ?", id).Error
}
