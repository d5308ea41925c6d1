package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/nimasrn/rental-gateway/internal/repository"
	"github.com/nimasrn/rental-gateway/internal/status"
	"github.com/nimasrn/rental-gateway/pkg/logger"
	"github.com/shopspring/decimal"
)

type ReturnTransactionRepository interface {
	GetWithLinesForUpdate(ctx context.Context, id int64) (*model.Transaction, error)
	AddReturnedQuantity(ctx context.Context, lineID int64, qty int) error
	UpdateEndDates(ctx context.Context, id int64, lineIDs []int64, end time.Time, header bool) error
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type LifecycleRepository interface {
	Create(ctx context.Context, lc *model.RentalLifecycle) (*model.RentalLifecycle, error)
	GetByTransaction(ctx context.Context, transactionID int64) (*model.RentalLifecycle, error)
	AddFees(ctx context.Context, lifecycleID int64, late, damage, other decimal.Decimal) error
	UpdateExpectedReturnDate(ctx context.Context, lifecycleID int64, date time.Time) error
}

type ReturnEventRepository interface {
	Create(ctx context.Context, ev *model.ReturnEvent) (*model.ReturnEvent, error)
	ListByTransaction(ctx context.Context, transactionID int64) ([]*model.ReturnEvent, error)
}

// StatusEngine is the part of StatusService return processing re-enters through.
type StatusEngine interface {
	UpdateTransactionStatus(ctx context.Context, req model.UpdateStatusRequest) (*model.StatusUpdateResult, error)
	OnReturnRecorded(ctx context.Context, transactionID int64, returnEventID string, changedBy *string, notes string) (*model.StatusUpdateResult, error)
}

type ReturnService struct {
	txnRepo       ReturnTransactionRepository
	lifecycleRepo LifecycleRepository
	eventRepo     ReturnEventRepository
	engine        StatusEngine
	clock         Clock
	ids           IDGen
}

func NewReturnService(txnRepo ReturnTransactionRepository, lifecycleRepo LifecycleRepository, eventRepo ReturnEventRepository, engine StatusEngine) *ReturnService {
	return &ReturnService{
		txnRepo:       txnRepo,
		lifecycleRepo: lifecycleRepo,
		eventRepo:     eventRepo,
		engine:        engine,
		clock:         realClock{},
		ids:           ulidGen{},
	}
}

func (s *ReturnService) WithClock(c Clock) *ReturnService {
	s.clock = c
	return s
}

func (s *ReturnService) WithIDGen(g IDGen) *ReturnService {
	s.ids = g
	return s
}

// lockRental locks the rental and returns it with its lifecycle, creating the
// lifecycle for rentals that predate it.
func (s *ReturnService) lockRental(ctx context.Context, id int64) (*model.Transaction, *model.RentalLifecycle, error) {
	txn, err := s.txnRepo.GetWithLinesForUpdate(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !txn.IsRental() {
		return nil, nil, fmt.Errorf("transaction %d: %w", id, model.ErrNotRental)
	}

	lc, err := s.lifecycleRepo.GetByTransaction(ctx, id)
	if errors.Is(err, repository.ErrLifecycleNotFound) {
		current := model.RentalStatusActive
		if txn.CurrentRentalStatus != nil {
			current = *txn.CurrentRentalStatus
		}
		lc, err = s.lifecycleRepo.Create(ctx, &model.RentalLifecycle{
			TransactionID:      id,
			CurrentStatus:      current,
			LastStatusChange:   s.clock.Now(),
			ExpectedReturnDate: txn.RentalEndDate,
		})
	}
	if err != nil {
		return nil, nil, err
	}
	return txn, lc, nil
}

func passThrough(err error) bool {
	return errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrValidation)
}

// RecordReturn books returned quantities, appends the return event and then
// recomputes the rental status through OnReturnRecorded. The event is kept even
// when the status recomputation fails; a later reconcile run repairs the status.
func (s *ReturnService) RecordReturn(ctx context.Context, req model.RecordReturnRequest) (*model.ReturnResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	returnDate := req.ReturnDate
	if returnDate.IsZero() {
		returnDate = s.clock.Now()
	}
	ref, err := s.ids.New()
	if err != nil {
		return nil, fmt.Errorf("generate return reference: %w", err)
	}

	var event *model.ReturnEvent
	err = s.txnRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		txn, lc, err := s.lockRental(ctx, req.TransactionID)
		if err != nil {
			return err
		}

		daysLate, total := 0, 0
		for _, it := range req.Items {
			line := txn.Line(it.LineID)
			if line == nil {
				return fmt.Errorf("%w: line %d does not belong to transaction %d", model.ErrValidation, it.LineID, txn.ID)
			}
			if it.Quantity > line.Outstanding() {
				return fmt.Errorf("%w: line %d has %d outstanding, %d returned", model.ErrValidation, line.ID, line.Outstanding(), it.Quantity)
			}
			if err := s.txnRepo.AddReturnedQuantity(ctx, line.ID, it.Quantity); err != nil {
				return err
			}
			daysLate = max(daysLate, status.DaysOverdue(status.EffectiveEndDate(txn, line), returnDate))
			line.ReturnedQuantity += it.Quantity
			total += it.Quantity
		}

		eventType := model.ReturnEventFull
		for _, line := range txn.Lines {
			if line.Outstanding() > 0 {
				eventType = model.ReturnEventPartial
				break
			}
		}

		event, err = s.eventRepo.Create(ctx, &model.ReturnEvent{
			LifecycleID:           lc.ID,
			TransactionID:         txn.ID,
			Reference:             ref,
			EventType:             eventType,
			EventDate:             returnDate,
			ProcessedBy:           req.ProcessedBy,
			Items:                 req.Items,
			TotalQuantityReturned: total,
			DaysLate:              daysLate,
			LateFeeCharged:        req.LateFee,
			DamageFeeCharged:      req.DamageFee,
			OtherFeeCharged:       req.OtherFee,
			PaymentCollected:      req.PaymentCollected,
			RefundIssued:          req.RefundIssued,
			Notes:                 req.Notes,
		})
		if err != nil {
			return err
		}

		if req.LateFee.IsZero() && req.DamageFee.IsZero() && req.OtherFee.IsZero() {
			return nil
		}
		return s.lifecycleRepo.AddFees(ctx, lc.ID, req.LateFee, req.DamageFee, req.OtherFee)
	})
	if err != nil {
		if passThrough(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: record return on transaction %d: %w", model.ErrPersistence, req.TransactionID, err)
	}

	logger.Info("return recorded",
		"transaction_id", req.TransactionID,
		"reference", event.Reference,
		"type", event.EventType,
		"quantity", event.TotalQuantityReturned,
		"days_late", event.DaysLate)

	res, err := s.engine.OnReturnRecorded(ctx, req.TransactionID, event.Reference, req.ProcessedBy, req.Notes)
	if err != nil {
		return &model.ReturnResult{Event: event}, fmt.Errorf("return %s stored, status update failed: %w", event.Reference, err)
	}
	return &model.ReturnResult{Event: event, Status: res}, nil
}

// ExtendRental moves the due date of the rental (or of some of its lines) forward,
// appends an EXTENSION event and recomputes the status.
func (s *ReturnService) ExtendRental(ctx context.Context, req model.ExtendRentalRequest) (*model.ReturnResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ref, err := s.ids.New()
	if err != nil {
		return nil, fmt.Errorf("generate extension reference: %w", err)
	}
	newEnd := status.DateOf(req.NewEndDate)

	var event *model.ReturnEvent
	err = s.txnRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		txn, lc, err := s.lockRental(ctx, req.TransactionID)
		if err != nil {
			return err
		}

		var targets []*model.LineItem
		if len(req.LineIDs) == 0 {
			for _, line := range txn.Lines {
				if line.Outstanding() > 0 {
					targets = append(targets, line)
				}
			}
		} else {
			for _, id := range req.LineIDs {
				line := txn.Line(id)
				if line == nil {
					return fmt.Errorf("%w: line %d does not belong to transaction %d", model.ErrValidation, id, txn.ID)
				}
				targets = append(targets, line)
			}
		}
		if len(targets) == 0 {
			return fmt.Errorf("%w: nothing outstanding to extend", model.ErrValidation)
		}

		lineIDs := make([]int64, 0, len(targets))
		for _, line := range targets {
			if end := status.EffectiveEndDate(txn, line); end != nil && !newEnd.After(status.DateOf(*end)) {
				return fmt.Errorf("%w: new_end_date must be after %s for line %d", model.ErrValidation, end.Format(time.DateOnly), line.ID)
			}
			lineIDs = append(lineIDs, line.ID)
		}

		header := txn.RentalEndDate == nil || newEnd.After(status.DateOf(*txn.RentalEndDate))
		if err := s.txnRepo.UpdateEndDates(ctx, txn.ID, lineIDs, newEnd, header); err != nil {
			return err
		}
		if header {
			if err := s.lifecycleRepo.UpdateExpectedReturnDate(ctx, lc.ID, newEnd); err != nil {
				return err
			}
		}
		if !req.ExtensionFee.IsZero() {
			if err := s.lifecycleRepo.AddFees(ctx, lc.ID, decimal.Zero, decimal.Zero, req.ExtensionFee); err != nil {
				return err
			}
		}

		items := make([]model.ReturnedItem, 0, len(targets))
		for _, line := range targets {
			items = append(items, model.ReturnedItem{LineID: line.ID})
		}
		event, err = s.eventRepo.Create(ctx, &model.ReturnEvent{
			LifecycleID:     lc.ID,
			TransactionID:   txn.ID,
			Reference:       ref,
			EventType:       model.ReturnEventExtension,
			EventDate:       s.clock.Now(),
			ProcessedBy:     req.ProcessedBy,
			Items:           items,
			OtherFeeCharged: req.ExtensionFee,
			NewReturnDate:   &newEnd,
			Notes:           req.Notes,
		})
		return err
	})
	if err != nil {
		if passThrough(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: extend transaction %d: %w", model.ErrPersistence, req.TransactionID, err)
	}

	res, err := s.engine.UpdateTransactionStatus(ctx, model.UpdateStatusRequest{
		TransactionID: req.TransactionID,
		ChangedBy:     req.ProcessedBy,
		Reason:        model.ReasonExtension,
		Trigger:       event.Reference,
		Notes:         req.Notes,
	})
	if err != nil {
		return &model.ReturnResult{Event: event}, fmt.Errorf("extension %s stored, status update failed: %w", event.Reference, err)
	}
	return &model.ReturnResult{Event: event, Status: res}, nil
}

// Events lists the return and extension events of a rental.
func (s *ReturnService) Events(ctx context.Context, transactionID int64) ([]*model.ReturnEvent, error) {
	return s.eventRepo.ListByTransaction(ctx, transactionID)
}
