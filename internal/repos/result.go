package repos

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/types"
)

type ResultRepo interface {
	// Insert appends the result row and repoints workflow_result at it.
	Insert(ctx context.Context, tx *gorm.DB, result *types.Result) error
	List(ctx context.Context, tx *gorm.DB, workflowID int64, jobID *int64, latestOnly bool, page Page) (*Envelope, error)
}

type resultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResultRepo(db *gorm.DB, baseLog *logger.Logger) ResultRepo {
	return &resultRepo{db: db, log: baseLog.With("repo", "ResultRepo")}
}

func (r *resultRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *resultRepo) Insert(ctx context.Context, tx *gorm.DB, result *types.Result) error {
	h := r.handle(tx).WithContext(ctx)
	if err := h.Create(result).Error; err != nil {
		return err
	}
	pointer := &types.WorkflowResult{
		WorkflowID: result.WorkflowID,
		JobID:      result.JobID,
		ResultID:   result.ID,
	}
	return r.handle(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workflow_id"}, {Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"result_id"}),
		}).
		Create(pointer).Error
}

func (r *resultRepo) List(ctx context.Context, tx *gorm.DB, workflowID int64, jobID *int64, latestOnly bool, page Page) (*Envelope, error) {
	q := r.handle(tx).WithContext(ctx).Model(&types.Result{}).Where("result.workflow_id = ?", workflowID)
	if jobID != nil {
		q = q.Where("result.job_id = ?", *jobID)
	}
	if latestOnly {
		q = q.Joins("JOIN workflow_result ON workflow_result.result_id = result.id")
	}
	var items []types.Result
	return Paginate(q, page, &items)
}
