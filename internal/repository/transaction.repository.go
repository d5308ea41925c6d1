package repository

import (
	"context"
	"time"

	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/nimasrn/rental-gateway/pkg/pg"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

// Create inserts the header together with its lines.
func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errors.Wrapf(model.ErrConflict, "transaction number %s", txn.Number)
		}
		return nil, errors.Wrap(err, "create transaction")
	}

	return toTransactionModel(entity), nil
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("line_number ASC, id ASC")
}

func (r *TransactionRepository) GetWithLines(ctx context.Context, id int64) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(model.ErrNotFound, "transaction %d", id)
		}
		return nil, errors.Wrapf(err, "get transaction %d", id)
	}
	return toTransactionModel(&entity), nil
}

// GetWithLinesForUpdate locks the header row for the rest of the surrounding storage
// transaction. Every writer of a rental goes through this lock first.
func (r *TransactionRepository) GetWithLinesForUpdate(ctx context.Context, id int64) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Write(ctx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(model.ErrNotFound, "transaction %d", id)
		}
		return nil, errors.Wrapf(err, "lock transaction %d", id)
	}

	var lines []*LineItemEntity
	err = orderedLines(r.Write(ctx).WithContext(ctx)).
		Where("transaction_id = ?", id).
		Find(&lines).
		Error
	if err != nil {
		return nil, errors.Wrapf(err, "load lines of transaction %d", id)
	}
	entity.Lines = lines

	return toTransactionModel(&entity), nil
}

// ListReconcilable returns rentals whose stored header status is still open.
// A non-empty ids restricts the result to those transactions.
func (r *TransactionRepository) ListReconcilable(ctx context.Context, ids []int64) ([]*model.Transaction, error) {
	statuses := make([]string, len(model.ReconcilableStatuses))
	for i, s := range model.ReconcilableStatuses {
		statuses[i] = string(s)
	}

	q := r.Read(ctx).WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("kind = ?", string(model.TransactionKindRental)).
		Where("current_rental_status IN ?", statuses)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}

	var entities []*TransactionEntity
	if err := q.Order("id ASC").Find(&entities).Error; err != nil {
		return nil, errors.Wrap(err, "list reconcilable rentals")
	}
	return toTransactionModels(entities), nil
}

func (r *TransactionRepository) UpdateHeaderStatus(ctx context.Context, id int64, status model.RentalStatus) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("id = ?", id).
		Update("current_rental_status", string(status))
	if result.Error != nil {
		return errors.Wrapf(result.Error, "update status of transaction %d", id)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(model.ErrNotFound, "transaction %d", id)
	}
	return nil
}

func (r *TransactionRepository) UpdateLineStatus(ctx context.Context, lineID int64, status model.RentalStatus) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&LineItemEntity{}).
		Where("id = ?", lineID).
		Update("current_rental_status", string(status))
	if result.Error != nil {
		return errors.Wrapf(result.Error, "update status of line %d", lineID)
	}
	if result.RowsAffected == 0 {
		return errors.Errorf("line %d not found", lineID)
	}
	return nil
}

// AddReturnedQuantity increments returned_quantity, refusing to go past quantity.
func (r *TransactionRepository) AddReturnedQuantity(ctx context.Context, lineID int64, qty int) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&LineItemEntity{}).
		Where("id = ? AND returned_quantity + ? <= quantity", lineID, qty).
		Update("returned_quantity", gorm.Expr("returned_quantity + ?", qty))
	if result.Error != nil {
		return errors.Wrapf(result.Error, "return %d units of line %d", qty, lineID)
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(model.ErrValidation, "line %d cannot take %d more returned units", lineID, qty)
	}
	return nil
}

// UpdateEndDates moves the due date of the given lines, and of the header when header is true.
func (r *TransactionRepository) UpdateEndDates(ctx context.Context, id int64, lineIDs []int64, end time.Time, header bool) error {
	if header {
		err := r.Write(ctx).WithContext(ctx).
			Model(&TransactionEntity{}).
			Where("id = ?", id).
			Update("rental_end_date", end).
			Error
		if err != nil {
			return errors.Wrapf(err, "extend transaction %d", id)
		}
	}
	if len(lineIDs) == 0 {
		return nil
	}
	err := r.Write(ctx).WithContext(ctx).
		Model(&LineItemEntity{}).
		Where("transaction_id = ? AND id IN ?", id, lineIDs).
		Update("rental_end_date", end).
		Error
	if err != nil {
		return errors.Wrapf(err, "extend lines of transaction %d", id)
	}
	return nil
}
