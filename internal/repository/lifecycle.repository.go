package repository

import (
	"context"
	"time"

	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/nimasrn/rental-gateway/pkg/pg"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrLifecycleNotFound = errors.New("rental lifecycle not found")

type LifecycleRepository struct {
	*pg.DB
}

func NewLifecycleRepository(db *pg.DB) *LifecycleRepository {
	return &LifecycleRepository{
		db,
	}
}

func (r *LifecycleRepository) Create(ctx context.Context, lc *model.RentalLifecycle) (*model.RentalLifecycle, error) {
	entity := toLifecycleEntity(lc)
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, errors.Wrap(err, "create lifecycle")
	}
	return toLifecycleModel(entity), nil
}

func (r *LifecycleRepository) GetByTransaction(ctx context.Context, transactionID int64) (*model.RentalLifecycle, error) {
	var entity RentalLifecycleEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLifecycleNotFound
		}
		return nil, errors.Wrapf(err, "get lifecycle of transaction %d", transactionID)
	}
	return toLifecycleModel(&entity), nil
}

// UpdateStatus mirrors a header transition onto the lifecycle row. Rentals
// created before lifecycles existed get their row here, expecting the header end date.
func (r *LifecycleRepository) UpdateStatus(ctx context.Context, transactionID int64, status model.RentalStatus, changedBy *string, at time.Time) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&RentalLifecycleEntity{}).
		Where("transaction_id = ?", transactionID).
		Updates(map[string]any{
			"current_status":     string(status),
			"last_status_change": at,
			"status_changed_by":  changedBy,
		})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update lifecycle of transaction %d", transactionID)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var header TransactionEntity
	err := r.Write(ctx).WithContext(ctx).
		Select("id", "rental_end_date").
		Where("id = ?", transactionID).
		First(&header).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrapf(ErrLifecycleNotFound, "transaction %d", transactionID)
		}
		return errors.Wrapf(err, "load transaction %d for lifecycle", transactionID)
	}

	_, err = r.Create(ctx, &model.RentalLifecycle{
		TransactionID:      transactionID,
		CurrentStatus:      status,
		LastStatusChange:   at,
		StatusChangedBy:    changedBy,
		ExpectedReturnDate: header.RentalEndDate,
	})
	return err
}

// AddFees accumulates charged fees on the lifecycle.
func (r *LifecycleRepository) AddFees(ctx context.Context, lifecycleID int64, late, damage, other decimal.Decimal) error {
	err := r.Write(ctx).WithContext(ctx).
		Model(&RentalLifecycleEntity{}).
		Where("id = ?", lifecycleID).
		Updates(map[string]any{
			"total_late_fees":   gorm.Expr("total_late_fees + ?", late),
			"total_damage_fees": gorm.Expr("total_damage_fees + ?", damage),
			"total_other_fees":  gorm.Expr("total_other_fees + ?", other),
		}).
		Error
	if err != nil {
		return errors.Wrapf(err, "add fees to lifecycle %d", lifecycleID)
	}
	return nil
}

func (r *LifecycleRepository) UpdateExpectedReturnDate(ctx context.Context, lifecycleID int64, date time.Time) error {
	err := r.Write(ctx).WithContext(ctx).
		Model(&RentalLifecycleEntity{}).
		Where("id = ?", lifecycleID).
		Update("expected_return_date", date).
		Error
	if err != nil {
		return errors.Wrapf(err, "update expected return date of lifecycle %d", lifecycleID)
	}
	return nil
}
