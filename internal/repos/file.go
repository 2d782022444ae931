package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/types"
)

type FileRepo interface {
	Create(ctx context.Context, tx *gorm.DB, f *types.File) error
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.File, error)
	List(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error)
	Update(ctx context.Context, tx *gorm.DB, f *types.File) error
	Delete(ctx context.Context, tx *gorm.DB, id int64) error
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]types.File, error)
}

type fileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFileRepo(db *gorm.DB, baseLog *logger.Logger) FileRepo {
	return &fileRepo{db: db, log: baseLog.With("repo", "FileRepo")}
}

func (r *fileRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *fileRepo) Create(ctx context.Context, tx *gorm.DB, f *types.File) error {
	return r.handle(tx).WithContext(ctx).Create(f).Error
}

func (r *fileRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.File, error) {
	var f types.File
	err := r.handle(tx).WithContext(ctx).First(&f, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fileRepo) List(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error) {
	q := r.handle(tx).WithContext(ctx).Model(&types.File{}).Where("workflow_id = ?", workflowID)
	var items []types.File
	return Paginate(q, page, &items)
}

func (r *fileRepo) Update(ctx context.Context, tx *gorm.DB, f *types.File) error {
	return r.handle(tx).WithContext(ctx).Save(f).Error
}

func (r *fileRepo) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	return r.handle(tx).WithContext(ctx).Delete(&types.File{}, "id = ?", id).Error
}

func (r *fileRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]types.File, error) {
	var out []types.File
	if len(ids) == 0 {
		return out, nil
	}
	err := r.handle(tx).WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&out).Error
	return out, err
}
