package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/types"
)

type WorkflowFilter struct {
	User       string
	IsArchived *bool
}

type WorkflowRepo interface {
	Create(ctx context.Context, tx *gorm.DB, wf *types.Workflow) error
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Workflow, error)
	List(ctx context.Context, tx *gorm.DB, filter WorkflowFilter, page Page) (*Envelope, error)
	Update(ctx context.Context, tx *gorm.DB, wf *types.Workflow) error
	UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, status string) error
	Delete(ctx context.Context, tx *gorm.DB, id int64) error
	JobStatusCounts(ctx context.Context, tx *gorm.DB, id int64) (map[types.JobStatus]int64, error)
}

type workflowRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkflowRepo(db *gorm.DB, baseLog *logger.Logger) WorkflowRepo {
	return &workflowRepo{db: db, log: baseLog.With("repo", "WorkflowRepo")}
}

func (r *workflowRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *workflowRepo) Create(ctx context.Context, tx *gorm.DB, wf *types.Workflow) error {
	return r.handle(tx).WithContext(ctx).Create(wf).Error
}

func (r *workflowRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Workflow, error) {
	var wf types.Workflow
	err := r.handle(tx).WithContext(ctx).First(&wf, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wf, nil
}

func (r *workflowRepo) List(ctx context.Context, tx *gorm.DB, filter WorkflowFilter, page Page) (*Envelope, error) {
	q := r.handle(tx).WithContext(ctx).Model(&types.Workflow{})
	if filter.User != "" {
		q = q.Where(`"user" = ?`, filter.User)
	}
	if filter.IsArchived != nil {
		q = q.Where("is_archived = ?", *filter.IsArchived)
	}
	var items []types.Workflow
	return Paginate(q, page, &items)
}

func (r *workflowRepo) Update(ctx context.Context, tx *gorm.DB, wf *types.Workflow) error {
	return r.handle(tx).WithContext(ctx).Save(wf).Error
}

func (r *workflowRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, status string) error {
	return r.handle(tx).WithContext(ctx).
		Model(&types.Workflow{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// Delete removes the workflow and everything it owns. Callers wrap this in
// a transaction together with any bookkeeping of their own.
func (r *workflowRepo) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	h := func() *gorm.DB { return r.handle(tx).WithContext(ctx) }
	for _, model := range []interface{}{
		&types.JobDependency{},
		&types.JobInputFile{},
		&types.JobOutputFile{},
		&types.JobInputUserData{},
		&types.JobOutputUserData{},
	} {
		jobIDs := h().Model(&types.Job{}).Select("id").Where("workflow_id = ?", id)
		if err := h().Where("job_id IN (?)", jobIDs).Delete(model).Error; err != nil {
			return err
		}
	}
	for _, model := range []interface{}{
		&types.JobInternal{},
		&types.Job{},
		&types.File{},
		&types.UserData{},
		&types.ResourceRequirements{},
		&types.ComputeNode{},
		&types.LocalScheduler{},
		&types.SlurmScheduler{},
		&types.ScheduledComputeNode{},
		&types.Result{},
		&types.WorkflowResult{},
		&types.Event{},
		&types.WorkflowAction{},
		&types.RemoteWorker{},
		&types.FailureHandler{},
		&types.WorkflowAccessGroup{},
	} {
		if err := h().Where("workflow_id = ?", id).Delete(model).Error; err != nil {
			return err
		}
	}
	return h().Delete(&types.Workflow{}, "id = ?", id).Error
}

func (r *workflowRepo) JobStatusCounts(ctx context.Context, tx *gorm.DB, id int64) (map[types.JobStatus]int64, error) {
	type row struct {
		Status types.JobStatus
		N      int64
	}
	var rows []row
	err := r.handle(tx).WithContext(ctx).
		Model(&types.Job{}).
		Select("status, count(*) as n").
		Where("workflow_id = ?", id).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[types.JobStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
