package repository

import (
	"context"

	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/nimasrn/rental-gateway/pkg/pg"
	"github.com/pkg/errors"
)

type StatusLogRepository struct {
	*pg.DB
}

func NewStatusLogRepository(db *pg.DB) *StatusLogRepository {
	return &StatusLogRepository{
		db,
	}
}

// CreateBatch inserts all logs of one status update in a single statement.
func (r *StatusLogRepository) CreateBatch(ctx context.Context, logs []*model.StatusLog) error {
	if len(logs) == 0 {
		return nil
	}

	entities := make([]*StatusLogEntity, 0, len(logs))
	for _, l := range logs {
		e, err := toStatusLogEntity(l)
		if err != nil {
			return errors.Wrap(err, "encode status log metadata")
		}
		entities = append(entities, e)
	}

	if err := r.Write(ctx).WithContext(ctx).Create(&entities).Error; err != nil {
		return errors.Wrap(err, "insert status logs")
	}
	for i, e := range entities {
		logs[i].ID = e.ID
	}
	return nil
}

// ListByTransaction returns the audit trail of a transaction, oldest first.
func (r *StatusLogRepository) ListByTransaction(ctx context.Context, transactionID int64) ([]*model.StatusLog, error) {
	var entities []*StatusLogEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("changed_at ASC, id ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, errors.Wrapf(err, "list status logs of transaction %d", transactionID)
	}
	return toStatusLogModels(entities), nil
}

func (r *StatusLogRepository) ListByBatch(ctx context.Context, batchID string) ([]*model.StatusLog, error) {
	var entities []*StatusLogEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("id ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, errors.Wrapf(err, "list status logs of batch %s", batchID)
	}
	return toStatusLogModels(entities), nil
}
