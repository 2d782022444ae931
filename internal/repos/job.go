package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/types"
)

type JobFilter struct {
	WorkflowID          int64
	Status              *types.JobStatus
	NeedsFileID         *int64
	UpstreamJobID       *int64
	ActiveComputeNodeID *int64
}

// JobWithRequirements is a claim-engine candidate row: the job joined with
// its declared resource requirements (zero values when it has none).
type JobWithRequirements struct {
	types.Job   `gorm:"embedded"`
	NumCPUs     int   `gorm:"column:num_cpus"`
	NumGPUs     int   `gorm:"column:num_gpus"`
	NumNodes    int   `gorm:"column:num_nodes"`
	MemoryBytes int64 `gorm:"column:memory_bytes"`
	RuntimeS    int64 `gorm:"column:runtime_s"`
}

type JobRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, jobs []*types.Job) error
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Job, error)
	List(ctx context.Context, tx *gorm.DB, filter JobFilter, page Page) (*Envelope, error)
	ListByWorkflow(ctx context.Context, tx *gorm.DB, workflowID int64, onlyStatuses ...types.JobStatus) ([]types.Job, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]types.Job, error)
	UpdateColumns(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, id int64) error

	// UpdateStatusIf performs the conditional transition that backs the
	// claim engine; it reports whether the row was actually moved.
	UpdateStatusIf(ctx context.Context, tx *gorm.DB, id int64, from, to types.JobStatus) (bool, error)
	SetStatus(ctx context.Context, tx *gorm.DB, ids []int64, status types.JobStatus) error

	LoadRelationships(ctx context.Context, tx *gorm.DB, job *types.Job) error
	ReplaceDependencies(ctx context.Context, tx *gorm.DB, jobID int64, dependsOn []int64) error
	Dependencies(ctx context.Context, tx *gorm.DB, jobID int64) ([]int64, error)
	DependenciesForWorkflow(ctx context.Context, tx *gorm.DB, workflowID int64) (map[int64][]int64, error)
	DependentsOf(ctx context.Context, tx *gorm.DB, upstreamIDs []int64) (map[int64][]int64, error)

	GetInternal(ctx context.Context, tx *gorm.DB, jobID int64) (*types.JobInternal, error)
	UpsertInternal(ctx context.Context, tx *gorm.DB, internal *types.JobInternal) error
	UpdateInternalColumns(ctx context.Context, tx *gorm.DB, jobID int64, updates map[string]interface{}) error
	ClearActiveComputeNodes(ctx context.Context, tx *gorm.DB, workflowID int64, jobIDs []int64) error

	ReadyWithRequirements(ctx context.Context, tx *gorm.DB, workflowID int64, orderBy string) ([]JobWithRequirements, error)
	StatusesByID(ctx context.Context, tx *gorm.DB, ids []int64) (map[int64]types.JobStatus, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{db: db, log: baseLog.With("repo", "JobRepo")}
}

func (r *jobRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *jobRepo) CreateBatch(ctx context.Context, tx *gorm.DB, jobs []*types.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	h := r.handle(tx).WithContext(ctx)
	if err := h.Create(&jobs).Error; err != nil {
		return err
	}
	for _, job := range jobs {
		if err := r.createRelations(ctx, tx, job); err != nil {
			return err
		}
		internal := &types.JobInternal{JobID: job.ID, WorkflowID: job.WorkflowID}
		if err := r.handle(tx).WithContext(ctx).Create(internal).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *jobRepo) createRelations(ctx context.Context, tx *gorm.DB, job *types.Job) error {
	h := func() *gorm.DB { return r.handle(tx).WithContext(ctx) }
	for _, dep := range job.DependsOn {
		if err := h().Create(&types.JobDependency{JobID: job.ID, DependsOnID: dep}).Error; err != nil {
			return err
		}
	}
	for _, id := range job.InputFileIDs {
		if err := h().Create(&types.JobInputFile{JobID: job.ID, FileID: id}).Error; err != nil {
			return err
		}
	}
	for _, id := range job.OutputFileIDs {
		if err := h().Create(&types.JobOutputFile{JobID: job.ID, FileID: id}).Error; err != nil {
			return err
		}
	}
	for _, id := range job.InputUserDataIDs {
		if err := h().Create(&types.JobInputUserData{JobID: job.ID, UserDataID: id}).Error; err != nil {
			return err
		}
	}
	for _, id := range job.OutputUserDataIDs {
		if err := h().Create(&types.JobOutputUserData{JobID: job.ID, UserDataID: id}).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *jobRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Job, error) {
	var job types.Job
	err := r.handle(tx).WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]types.Job, error) {
	var out []types.Job
	if len(ids) == 0 {
		return out, nil
	}
	err := r.handle(tx).WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&out).Error
	return out, err
}

func (r *jobRepo) List(ctx context.Context, tx *gorm.DB, filter JobFilter, page Page) (*Envelope, error) {
	q := r.handle(tx).WithContext(ctx).Model(&types.Job{}).Where("job.workflow_id = ?", filter.WorkflowID)
	if filter.Status != nil {
		q = q.Where("job.status = ?", *filter.Status)
	}
	if filter.NeedsFileID != nil {
		q = q.Where("job.id IN (?)",
			r.handle(tx).Model(&types.JobInputFile{}).Select("job_id").Where("file_id = ?", *filter.NeedsFileID))
	}
	if filter.UpstreamJobID != nil {
		q = q.Where("job.id IN (?)",
			r.handle(tx).Model(&types.JobDependency{}).Select("job_id").Where("depends_on_id = ?", *filter.UpstreamJobID))
	}
	if filter.ActiveComputeNodeID != nil {
		q = q.Where("job.id IN (?)",
			r.handle(tx).Model(&types.JobInternal{}).Select("job_id").Where("active_compute_node_id = ?", *filter.ActiveComputeNodeID))
	}
	var items []types.Job
	return Paginate(q, page, &items)
}

func (r *jobRepo) ListByWorkflow(ctx context.Context, tx *gorm.DB, workflowID int64, onlyStatuses ...types.JobStatus) ([]types.Job, error) {
	q := r.handle(tx).WithContext(ctx).Where("workflow_id = ?", workflowID)
	if len(onlyStatuses) > 0 {
		q = q.Where("status IN ?", onlyStatuses)
	}
	var out []types.Job
	err := q.Order("id ASC").Find(&out).Error
	return out, err
}

func (r *jobRepo) UpdateColumns(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.handle(tx).WithContext(ctx).
		Model(&types.Job{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *jobRepo) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	h := func() *gorm.DB { return r.handle(tx).WithContext(ctx) }
	for _, model := range []interface{}{
		&types.JobDependency{},
		&types.JobInputFile{},
		&types.JobOutputFile{},
		&types.JobInputUserData{},
		&types.JobOutputUserData{},
	} {
		if err := h().Where("job_id = ?", id).Delete(model).Error; err != nil {
			return err
		}
	}
	if err := h().Where("depends_on_id = ?", id).Delete(&types.JobDependency{}).Error; err != nil {
		return err
	}
	if err := h().Where("job_id = ?", id).Delete(&types.JobInternal{}).Error; err != nil {
		return err
	}
	return h().Delete(&types.Job{}, "id = ?", id).Error
}

func (r *jobRepo) UpdateStatusIf(ctx context.Context, tx *gorm.DB, id int64, from, to types.JobStatus) (bool, error) {
	res := r.handle(tx).WithContext(ctx).
		Model(&types.Job{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *jobRepo) SetStatus(ctx context.Context, tx *gorm.DB, ids []int64, status types.JobStatus) error {
	if len(ids) == 0 {
		return nil
	}
	return r.handle(tx).WithContext(ctx).
		Model(&types.Job{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
}

func (r *jobRepo) LoadRelationships(ctx context.Context, tx *gorm.DB, job *types.Job) error {
	h := func() *gorm.DB { return r.handle(tx).WithContext(ctx) }
	deps, err := r.Dependencies(ctx, tx, job.ID)
	if err != nil {
		return err
	}
	job.DependsOn = deps
	if err := h().Model(&types.JobInputFile{}).Where("job_id = ?", job.ID).
		Order("file_id ASC").Pluck("file_id", &job.InputFileIDs).Error; err != nil {
		return err
	}
	if err := h().Model(&types.JobOutputFile{}).Where("job_id = ?", job.ID).
		Order("file_id ASC").Pluck("file_id", &job.OutputFileIDs).Error; err != nil {
		return err
	}
	if err := h().Model(&types.JobInputUserData{}).Where("job_id = ?", job.ID).
		Order("user_data_id ASC").Pluck("user_data_id", &job.InputUserDataIDs).Error; err != nil {
		return err
	}
	if err := h().Model(&types.JobOutputUserData{}).Where("job_id = ?", job.ID).
		Order("user_data_id ASC").Pluck("user_data_id", &job.OutputUserDataIDs).Error; err != nil {
		return err
	}
	return nil
}

func (r *jobRepo) ReplaceDependencies(ctx context.Context, tx *gorm.DB, jobID int64, dependsOn []int64) error {
	h := func() *gorm.DB { return r.handle(tx).WithContext(ctx) }
	if err := h().Where("job_id = ?", jobID).Delete(&types.JobDependency{}).Error; err != nil {
		return err
	}
	for _, dep := range dependsOn {
		if err := h().Create(&types.JobDependency{JobID: jobID, DependsOnID: dep}).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *jobRepo) Dependencies(ctx context.Context, tx *gorm.DB, jobID int64) ([]int64, error) {
	var deps []int64
	err := r.handle(tx).WithContext(ctx).
		Model(&types.JobDependency{}).
		Where("job_id = ?", jobID).
		Order("depends_on_id ASC").
		Pluck("depends_on_id", &deps).Error
	return deps, err
}

func (r *jobRepo) DependenciesForWorkflow(ctx context.Context, tx *gorm.DB, workflowID int64) (map[int64][]int64, error) {
	var rows []types.JobDependency
	err := r.handle(tx).WithContext(ctx).
		Where("job_id IN (?)",
			r.handle(tx).Model(&types.Job{}).Select("id").Where("workflow_id = ?", workflowID)).
		Order("job_id ASC, depends_on_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]int64, len(rows))
	for _, row := range rows {
		out[row.JobID] = append(out[row.JobID], row.DependsOnID)
	}
	return out, nil
}

// DependentsOf maps each upstream id to the jobs that depend on it.
func (r *jobRepo) DependentsOf(ctx context.Context, tx *gorm.DB, upstreamIDs []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64)
	if len(upstreamIDs) == 0 {
		return out, nil
	}
	var rows []types.JobDependency
	err := r.handle(tx).WithContext(ctx).
		Where("depends_on_id IN ?", upstreamIDs).
		Order("job_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.DependsOnID] = append(out[row.DependsOnID], row.JobID)
	}
	return out, nil
}

func (r *jobRepo) GetInternal(ctx context.Context, tx *gorm.DB, jobID int64) (*types.JobInternal, error) {
	var internal types.JobInternal
	err := r.handle(tx).WithContext(ctx).First(&internal, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &internal, nil
}

func (r *jobRepo) UpsertInternal(ctx context.Context, tx *gorm.DB, internal *types.JobInternal) error {
	return r.handle(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}},
			UpdateAll: true,
		}).
		Create(internal).Error
}

func (r *jobRepo) UpdateInternalColumns(ctx context.Context, tx *gorm.DB, jobID int64, updates map[string]interface{}) error {
	return r.handle(tx).WithContext(ctx).
		Model(&types.JobInternal{}).
		Where("job_id = ?", jobID).
		Updates(updates).Error
}

// ClearActiveComputeNodes clears active-node pointers for the given jobs,
// or for every job in the workflow when jobIDs is empty.
func (r *jobRepo) ClearActiveComputeNodes(ctx context.Context, tx *gorm.DB, workflowID int64, jobIDs []int64) error {
	q := r.handle(tx).WithContext(ctx).Model(&types.JobInternal{})
	if len(jobIDs) > 0 {
		q = q.Where("job_id IN ?", jobIDs)
	} else {
		q = q.Where("workflow_id = ?", workflowID)
	}
	return q.Update("active_compute_node_id", nil).Error
}

// ReadyWithRequirements returns the claim-engine candidate rows in the
// caller-supplied order. orderBy must come from the fixed sort-method set.
func (r *jobRepo) ReadyWithRequirements(ctx context.Context, tx *gorm.DB, workflowID int64, orderBy string) ([]JobWithRequirements, error) {
	var rows []JobWithRequirements
	err := r.handle(tx).WithContext(ctx).
		Table("job").
		Select(`job.*,
			COALESCE(resource_requirements.num_cpus, 1) AS num_cpus,
			COALESCE(resource_requirements.num_gpus, 0) AS num_gpus,
			COALESCE(resource_requirements.num_nodes, 1) AS num_nodes,
			COALESCE(resource_requirements.memory_bytes, 0) AS memory_bytes,
			COALESCE(resource_requirements.runtime_s, 0) AS runtime_s`).
		Joins("LEFT JOIN resource_requirements ON resource_requirements.id = job.resource_requirements_id").
		Where("job.workflow_id = ? AND job.status = ?", workflowID, types.JobReady).
		Order(orderBy).
		Find(&rows).Error
	return rows, err
}

func (r *jobRepo) StatusesByID(ctx context.Context, tx *gorm.DB, ids []int64) (map[int64]types.JobStatus, error) {
	out := make(map[int64]types.JobStatus)
	if len(ids) == 0 {
		return out, nil
	}
	var rows []types.Job
	err := r.handle(tx).WithContext(ctx).
		Select("id, status").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.Status
	}
	return out, nil
}
