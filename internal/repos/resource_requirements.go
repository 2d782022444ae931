package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/types"
)

type ResourceRequirementsRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rr *types.ResourceRequirements) error
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.ResourceRequirements, error)
	List(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error)
	Update(ctx context.Context, tx *gorm.DB, rr *types.ResourceRequirements) error
	Delete(ctx context.Context, tx *gorm.DB, id int64) error
}

type resourceRequirementsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResourceRequirementsRepo(db *gorm.DB, baseLog *logger.Logger) ResourceRequirementsRepo {
	return &resourceRequirementsRepo{db: db, log: baseLog.With("repo", "ResourceRequirementsRepo")}
}

func (r *resourceRequirementsRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *resourceRequirementsRepo) Create(ctx context.Context, tx *gorm.DB, rr *types.ResourceRequirements) error {
	return r.handle(tx).WithContext(ctx).Create(rr).Error
}

func (r *resourceRequirementsRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.ResourceRequirements, error) {
	var rr types.ResourceRequirements
	err := r.handle(tx).WithContext(ctx).First(&rr, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rr, nil
}

func (r *resourceRequirementsRepo) List(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error) {
	q := r.handle(tx).WithContext(ctx).Model(&types.ResourceRequirements{}).Where("workflow_id = ?", workflowID)
	var items []types.ResourceRequirements
	return Paginate(q, page, &items)
}

func (r *resourceRequirementsRepo) Update(ctx context.Context, tx *gorm.DB, rr *types.ResourceRequirements) error {
	return r.handle(tx).WithContext(ctx).Save(rr).Error
}

func (r *resourceRequirementsRepo) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	return r.handle(tx).WithContext(ctx).Delete(&types.ResourceRequirements{}, "id = ?", id).Error
}
