package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/NREL/torc-sub002/internal/logger"
	"github.com/NREL/torc-sub002/internal/types"
)

// EventRepo is append-only: events are never updated or deleted outside a
// workflow cascade.
type EventRepo interface {
	Append(ctx context.Context, tx *gorm.DB, ev *types.Event) error
	List(ctx context.Context, tx *gorm.DB, workflowID int64, afterID *int64, page Page) (*Envelope, error)
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return &eventRepo{db: db, log: baseLog.With("repo", "EventRepo")}
}

func (r *eventRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *eventRepo) Append(ctx context.Context, tx *gorm.DB, ev *types.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = types.Now()
	}
	return r.handle(tx).WithContext(ctx).Create(ev).Error
}

func (r *eventRepo) List(ctx context.Context, tx *gorm.DB, workflowID int64, afterID *int64, page Page) (*Envelope, error) {
	q := r.handle(tx).WithContext(ctx).Model(&types.Event{}).Where("workflow_id = ?", workflowID)
	if afterID != nil {
		q = q.Where("id > ?", *afterID)
	}
	var items []types.Event
	return Paginate(q, page, &items)
}
