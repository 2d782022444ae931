package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/types"
)

type FailureHandlerRepo interface {
	Create(ctx context.Context, tx *gorm.DB, fh *types.FailureHandler) error
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.FailureHandler, error)
	List(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error)
	Update(ctx context.Context, tx *gorm.DB, fh *types.FailureHandler) error
	Delete(ctx context.Context, tx *gorm.DB, id int64) error
}

type failureHandlerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFailureHandlerRepo(db *gorm.DB, baseLog *logger.Logger) FailureHandlerRepo {
	return &failureHandlerRepo{db: db, log: baseLog.With("repo", "FailureHandlerRepo")}
}

func (r *failureHandlerRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *failureHandlerRepo) Create(ctx context.Context, tx *gorm.DB, fh *types.FailureHandler) error {
	return r.handle(tx).WithContext(ctx).Create(fh).Error
}

func (r *failureHandlerRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.FailureHandler, error) {
	var fh types.FailureHandler
	err := r.handle(tx).WithContext(ctx).First(&fh, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fh, nil
}

func (r *failureHandlerRepo) List(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error) {
	q := r.handle(tx).WithContext(ctx).Model(&types.FailureHandler{}).Where("workflow_id = ?", workflowID)
	var items []types.FailureHandler
	return Paginate(q, page, &items)
}

func (r *failureHandlerRepo) Update(ctx context.Context, tx *gorm.DB, fh *types.FailureHandler) error {
	return r.handle(tx).WithContext(ctx).Save(fh).Error
}

func (r *failureHandlerRepo) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	return r.handle(tx).WithContext(ctx).Delete(&types.FailureHandler{}, "id = ?", id).Error
}
