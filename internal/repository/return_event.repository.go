package repository

import (
	"context"

	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/nimasrn/rental-gateway/pkg/pg"
	"github.com/pkg/errors"
)

type ReturnEventRepository struct {
	*pg.DB
}

func NewReturnEventRepository(db *pg.DB) *ReturnEventRepository {
	return &ReturnEventRepository{
		db,
	}
}

// Create appends an event. Events are never updated.
func (r *ReturnEventRepository) Create(ctx context.Context, ev *model.ReturnEvent) (*model.ReturnEvent, error) {
	entity, err := toReturnEventEntity(ev)
	if err != nil {
		return nil, errors.Wrap(err, "encode return items")
	}
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, errors.Wrap(err, "create return event")
	}
	return toReturnEventModel(entity), nil
}

func (r *ReturnEventRepository) ListByTransaction(ctx context.Context, transactionID int64) ([]*model.ReturnEvent, error) {
	var entities []*ReturnEventEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("event_date ASC, id ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, errors.Wrapf(err, "list return events of transaction %d", transactionID)
	}

	events := make([]*model.ReturnEvent, len(entities))
	for i, e := range entities {
		events[i] = toReturnEventModel(e)
	}
	return events, nil
}
