package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/shopspring/decimal"
)

type RentalRepository interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type LifecycleCreator interface {
	Create(ctx context.Context, lc *model.RentalLifecycle) (*model.RentalLifecycle, error)
}

type RentalService struct {
	rentalRepo    RentalRepository
	lifecycleRepo LifecycleCreator
	clock         Clock
}

func NewRentalService(rentalRepo RentalRepository, lifecycleRepo LifecycleCreator) *RentalService {
	return &RentalService{
		rentalRepo:    rentalRepo,
		lifecycleRepo: lifecycleRepo,
		clock:         realClock{},
	}
}

func (s *RentalService) WithClock(c Clock) *RentalService {
	s.clock = c
	return s
}

// Create stores a new rental, its lines and its lifecycle record atomically.
// Lines without their own dates inherit the header's.
func (s *RentalService) Create(ctx context.Context, req model.CreateRentalRequest) (*model.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	txnDate := req.TransactionDate
	if txnDate.IsZero() {
		txnDate = now
	}
	start, end := req.RentalStartDate, req.RentalEndDate

	txn := &model.Transaction{
		TenantID:            req.TenantID,
		Number:              req.Number,
		Kind:                model.TransactionKindRental,
		TransactionDate:     txnDate,
		RentalStartDate:     &start,
		RentalEndDate:       &end,
		CurrentRentalStatus: model.StatusPtr(model.RentalStatusActive),
		TotalAmount:         decimal.Zero,
		PaidAmount:          req.PaidAmount,
	}
	for i, l := range req.Lines {
		line := &model.LineItem{
			LineNumber:          i + 1,
			SKU:                 l.SKU,
			Description:         l.Description,
			Quantity:            l.Quantity,
			UnitPrice:           l.UnitPrice,
			RentalStartDate:     l.RentalStartDate,
			RentalEndDate:       l.RentalEndDate,
			CurrentRentalStatus: model.StatusPtr(model.RentalStatusActive),
		}
		if line.RentalStartDate == nil {
			line.RentalStartDate = &start
		}
		if line.RentalEndDate == nil {
			line.RentalEndDate = &end
		}
		txn.TotalAmount = txn.TotalAmount.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		txn.Lines = append(txn.Lines, line)
	}

	var created *model.Transaction
	err := s.rentalRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.rentalRepo.Create(ctx, txn)
		if err != nil {
			return err
		}
		_, err = s.lifecycleRepo.Create(ctx, &model.RentalLifecycle{
			TransactionID:      created.ID,
			CurrentStatus:      model.RentalStatusActive,
			LastStatusChange:   now,
			ExpectedReturnDate: &end,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: create rental %s: %w", model.ErrPersistence, req.Number, err)
	}
	return created, nil
}
