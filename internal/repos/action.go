package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/types"
)

type ActionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, action *types.WorkflowAction) error
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.WorkflowAction, error)
	List(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error)
	ListByTrigger(ctx context.Context, tx *gorm.DB, workflowID int64, trigger types.TriggerType) ([]types.WorkflowAction, error)
	ListPending(ctx context.Context, tx *gorm.DB, workflowID int64, triggerTypes []types.TriggerType) ([]types.WorkflowAction, error)
	Update(ctx context.Context, tx *gorm.DB, action *types.WorkflowAction) error
	UpdateColumns(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, id int64) error

	// MarkExecutedIf latches executed=1 iff it was still 0.
	MarkExecutedIf(ctx context.Context, tx *gorm.DB, id int64, executedBy *int64) (bool, error)
	TouchExecutedAt(ctx context.Context, tx *gorm.DB, id int64, executedBy *int64) error
	DeleteRecovery(ctx context.Context, tx *gorm.DB, workflowID int64) error
	ListForWorkflow(ctx context.Context, tx *gorm.DB, workflowID int64) ([]types.WorkflowAction, error)
}

type actionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActionRepo(db *gorm.DB, baseLog *logger.Logger) ActionRepo {
	return &actionRepo{db: db, log: baseLog.With("repo", "ActionRepo")}
}

func (r *actionRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *actionRepo) Create(ctx context.Context, tx *gorm.DB, action *types.WorkflowAction) error {
	return r.handle(tx).WithContext(ctx).Create(action).Error
}

func (r *actionRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.WorkflowAction, error) {
	var action types.WorkflowAction
	err := r.handle(tx).WithContext(ctx).First(&action, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}

func (r *actionRepo) List(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error) {
	q := r.handle(tx).WithContext(ctx).Model(&types.WorkflowAction{}).Where("workflow_id = ?", workflowID)
	var items []types.WorkflowAction
	return Paginate(q, page, &items)
}

func (r *actionRepo) ListByTrigger(ctx context.Context, tx *gorm.DB, workflowID int64, trigger types.TriggerType) ([]types.WorkflowAction, error) {
	var out []types.WorkflowAction
	err := r.handle(tx).WithContext(ctx).
		Where("workflow_id = ? AND trigger_type = ?", workflowID, trigger).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (r *actionRepo) ListPending(ctx context.Context, tx *gorm.DB, workflowID int64, triggerTypes []types.TriggerType) ([]types.WorkflowAction, error) {
	q := r.handle(tx).WithContext(ctx).
		Where("workflow_id = ? AND trigger_count >= required_triggers AND executed = ?", workflowID, false)
	if len(triggerTypes) > 0 {
		q = q.Where("trigger_type IN ?", triggerTypes)
	}
	var out []types.WorkflowAction
	err := q.Order("id ASC").Find(&out).Error
	return out, err
}

func (r *actionRepo) Update(ctx context.Context, tx *gorm.DB, action *types.WorkflowAction) error {
	return r.handle(tx).WithContext(ctx).Save(action).Error
}

func (r *actionRepo) UpdateColumns(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error {
	return r.handle(tx).WithContext(ctx).
		Model(&types.WorkflowAction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *actionRepo) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	return r.handle(tx).WithContext(ctx).Delete(&types.WorkflowAction{}, "id = ?", id).Error
}

func (r *actionRepo) MarkExecutedIf(ctx context.Context, tx *gorm.DB, id int64, executedBy *int64) (bool, error) {
	now := types.NewTimestamp(time.Now())
	res := r.handle(tx).WithContext(ctx).
		Model(&types.WorkflowAction{}).
		Where("id = ? AND executed = ?", id, false).
		Updates(map[string]interface{}{
			"executed":    true,
			"executed_at": now,
			"executed_by": executedBy,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// TouchExecutedAt refreshes the persistent-action timestamp without
// latching executed.
func (r *actionRepo) TouchExecutedAt(ctx context.Context, tx *gorm.DB, id int64, executedBy *int64) error {
	now := types.NewTimestamp(time.Now())
	return r.handle(tx).WithContext(ctx).
		Model(&types.WorkflowAction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"executed_at": now,
			"executed_by": executedBy,
		}).Error
}

func (r *actionRepo) DeleteRecovery(ctx context.Context, tx *gorm.DB, workflowID int64) error {
	return r.handle(tx).WithContext(ctx).
		Where("workflow_id = ? AND is_recovery = ?", workflowID, true).
		Delete(&types.WorkflowAction{}).Error
}

func (r *actionRepo) ListForWorkflow(ctx context.Context, tx *gorm.DB, workflowID int64) ([]types.WorkflowAction, error) {
	var out []types.WorkflowAction
	err := r.handle(tx).WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}
