package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/types"
)

type RemoteWorkerRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, worker *types.RemoteWorker) error
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.RemoteWorker, error)
	List(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error)
	Delete(ctx context.Context, tx *gorm.DB, id int64) error
}

type remoteWorkerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRemoteWorkerRepo(db *gorm.DB, baseLog *logger.Logger) RemoteWorkerRepo {
	return &remoteWorkerRepo{db: db, log: baseLog.With("repo", "RemoteWorkerRepo")}
}

func (r *remoteWorkerRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *remoteWorkerRepo) Upsert(ctx context.Context, tx *gorm.DB, worker *types.RemoteWorker) error {
	return r.handle(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "worker_id"}, {Name: "workflow_id"}},
			DoNothing: true,
		}).
		Create(worker).Error
}

func (r *remoteWorkerRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.RemoteWorker, error) {
	var worker types.RemoteWorker
	err := r.handle(tx).WithContext(ctx).First(&worker, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &worker, nil
}

func (r *remoteWorkerRepo) List(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error) {
	q := r.handle(tx).WithContext(ctx).Model(&types.RemoteWorker{}).Where("workflow_id = ?", workflowID)
	var items []types.RemoteWorker
	return Paginate(q, page, &items)
}

func (r *remoteWorkerRepo) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	return r.handle(tx).WithContext(ctx).Delete(&types.RemoteWorker{}, "id = ?", id).Error
}
