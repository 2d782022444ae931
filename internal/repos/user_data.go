package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/types"
)

type UserDataRepo interface {
	Create(ctx context.Context, tx *gorm.DB, ud *types.UserData) error
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.UserData, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]types.UserData, error)
	List(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error)
	Update(ctx context.Context, tx *gorm.DB, ud *types.UserData) error
	Delete(ctx context.Context, tx *gorm.DB, id int64) error
	ClearEphemeralData(ctx context.Context, tx *gorm.DB, workflowID int64) error
}

type userDataRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserDataRepo(db *gorm.DB, baseLog *logger.Logger) UserDataRepo {
	return &userDataRepo{db: db, log: baseLog.With("repo", "UserDataRepo")}
}

func (r *userDataRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *userDataRepo) Create(ctx context.Context, tx *gorm.DB, ud *types.UserData) error {
	return r.handle(tx).WithContext(ctx).Create(ud).Error
}

func (r *userDataRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.UserData, error) {
	var ud types.UserData
	err := r.handle(tx).WithContext(ctx).First(&ud, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ud, nil
}

func (r *userDataRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]types.UserData, error) {
	var out []types.UserData
	if len(ids) == 0 {
		return out, nil
	}
	err := r.handle(tx).WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&out).Error
	return out, err
}

func (r *userDataRepo) List(ctx context.Context, tx *gorm.DB, workflowID int64, page Page) (*Envelope, error) {
	q := r.handle(tx).WithContext(ctx).Model(&types.UserData{}).Where("workflow_id = ?", workflowID)
	var items []types.UserData
	return Paginate(q, page, &items)
}

func (r *userDataRepo) Update(ctx context.Context, tx *gorm.DB, ud *types.UserData) error {
	return r.handle(tx).WithContext(ctx).Save(ud).Error
}

func (r *userDataRepo) Delete(ctx context.Context, tx *gorm.DB, id int64) error {
	return r.handle(tx).WithContext(ctx).Delete(&types.UserData{}, "id = ?", id).Error
}

func (r *userDataRepo) ClearEphemeralData(ctx context.Context, tx *gorm.DB, workflowID int64) error {
	return r.handle(tx).WithContext(ctx).
		Model(&types.UserData{}).
		Where("workflow_id = ? AND is_ephemeral = ?", workflowID, true).
		Update("data", nil).Error
}
