package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/nimasrn/rental-gateway/internal/status"
	"github.com/nimasrn/rental-gateway/pkg/logger"
	"github.com/nimasrn/rental-gateway/pkg/prom"
)

type TransactionRepository interface {
	GetWithLines(ctx context.Context, id int64) (*model.Transaction, error)
	GetWithLinesForUpdate(ctx context.Context, id int64) (*model.Transaction, error)
	UpdateHeaderStatus(ctx context.Context, id int64, s model.RentalStatus) error
	UpdateLineStatus(ctx context.Context, lineID int64, s model.RentalStatus) error
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type LifecycleStatusRepository interface {
	UpdateStatus(ctx context.Context, transactionID int64, s model.RentalStatus, changedBy *string, at time.Time) error
}

type StatusLogRepository interface {
	CreateBatch(ctx context.Context, logs []*model.StatusLog) error
	ListByTransaction(ctx context.Context, transactionID int64) ([]*model.StatusLog, error)
}

// Notifier receives delinquency events once the status change is committed.
type Notifier interface {
	Notify(ctx context.Context, ev model.TransitionEvent) error
}

// StatusService persists evaluator results. All writes of one call share a single
// storage transaction that starts with a row lock on the transaction header.
type StatusService struct {
	txnRepo       TransactionRepository
	lifecycleRepo LifecycleStatusRepository
	logRepo       StatusLogRepository
	notifier      Notifier
	clock         Clock
}

func NewStatusService(txnRepo TransactionRepository, lifecycleRepo LifecycleStatusRepository, logRepo StatusLogRepository, notifier Notifier) *StatusService {
	return &StatusService{
		txnRepo:       txnRepo,
		lifecycleRepo: lifecycleRepo,
		logRepo:       logRepo,
		notifier:      notifier,
		clock:         realClock{},
	}
}

// WithClock replaces the wall clock, mostly for tests.
func (s *StatusService) WithClock(c Clock) *StatusService {
	s.clock = c
	return s
}

// UpdateTransactionStatus recomputes the statuses of one rental and writes every
// difference together with its status log rows. Nothing is written when stored and
// computed statuses already agree.
func (s *StatusService) UpdateTransactionStatus(ctx context.Context, req model.UpdateStatusRequest) (*model.StatusUpdateResult, error) {
	if !req.Reason.Valid() {
		return nil, fmt.Errorf("%w: unknown change reason %q", model.ErrValidation, req.Reason)
	}

	now := s.clock.Now()
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = now
	}

	var result *model.StatusUpdateResult
	err := s.txnRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		txn, err := s.txnRepo.GetWithLinesForUpdate(ctx, req.TransactionID)
		if err != nil {
			return err
		}
		if !txn.IsRental() {
			return fmt.Errorf("transaction %d: %w", req.TransactionID, model.ErrNotRental)
		}

		ev := status.Evaluate(txn, asOf)
		result = &model.StatusUpdateResult{
			TransactionID: txn.ID,
			OldStatus:     txn.CurrentRentalStatus,
			NewStatus:     ev.HeaderStatus,
			LineChanges:   []model.LineStatusChange{},
			Evaluation:    ev,
		}

		var logs []*model.StatusLog
		for _, le := range ev.Lines {
			line := txn.Line(le.LineID)
			if !status.NeedsChange(line.CurrentRentalStatus, le.Status) {
				continue
			}
			if err := s.txnRepo.UpdateLineStatus(ctx, line.ID, le.Status); err != nil {
				return err
			}
			result.LineChanges = append(result.LineChanges, model.LineStatusChange{
				LineID:    line.ID,
				OldStatus: line.CurrentRentalStatus,
				NewStatus: le.Status,
			})
			lineID := line.ID
			logs = append(logs, newStatusLog(req, txn.ID, &lineID, line.CurrentRentalStatus, le.Status, le.Metadata(ev.AsOf), now))
		}

		if status.NeedsChange(txn.CurrentRentalStatus, ev.HeaderStatus) {
			if err := s.txnRepo.UpdateHeaderStatus(ctx, txn.ID, ev.HeaderStatus); err != nil {
				return err
			}
			if err := s.lifecycleRepo.UpdateStatus(ctx, txn.ID, ev.HeaderStatus, req.ChangedBy, now); err != nil {
				return err
			}
			result.HeaderChanged = true
			logs = append(logs, newStatusLog(req, txn.ID, nil, txn.CurrentRentalStatus, ev.HeaderStatus, ev.HeaderMetadata(), now))
		}

		result.TotalChanges = len(logs)
		if len(logs) == 0 {
			return nil
		}
		return s.logRepo.CreateBatch(ctx, logs)
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: transaction %d: %w", model.ErrPersistence, req.TransactionID, err)
	}

	s.afterCommit(ctx, req, result, now)
	return result, nil
}

func newStatusLog(req model.UpdateStatusRequest, txnID int64, lineID *int64, old *model.RentalStatus, next model.RentalStatus, meta map[string]any, at time.Time) *model.StatusLog {
	return &model.StatusLog{
		TransactionID:   txnID,
		LineItemID:      lineID,
		OldStatus:       old,
		NewStatus:       next,
		Reason:          req.Reason,
		Trigger:         req.Trigger,
		ChangedBy:       req.ChangedBy,
		SystemGenerated: req.ChangedBy == nil,
		BatchID:         req.BatchID,
		Notes:           req.Notes,
		Metadata:        meta,
		ChangedAt:       at,
	}
}

func statusLabel(s *model.RentalStatus) string {
	if s == nil {
		return "NONE"
	}
	return string(*s)
}

func (s *StatusService) afterCommit(ctx context.Context, req model.UpdateStatusRequest, res *model.StatusUpdateResult, at time.Time) {
	for _, c := range res.LineChanges {
		prom.AddStatusTransition("line", statusLabel(c.OldStatus), string(c.NewStatus), string(req.Reason))
	}
	if !res.HeaderChanged {
		return
	}
	prom.AddStatusTransition("header", statusLabel(res.OldStatus), string(res.NewStatus), string(req.Reason))
	logger.Info("rental status changed",
		"transaction_id", res.TransactionID,
		"old_status", statusLabel(res.OldStatus),
		"new_status", res.NewStatus,
		"reason", req.Reason,
		"trigger", req.Trigger,
		"line_changes", len(res.LineChanges))

	wasLate := res.OldStatus != nil && res.OldStatus.IsLate()
	if s.notifier == nil || !res.NewStatus.IsLate() || wasLate {
		return
	}
	ev := model.TransitionEvent{
		Type:           model.EventRentalDelinquent,
		TransactionID:  res.TransactionID,
		OldStatus:      res.OldStatus,
		NewStatus:      res.NewStatus,
		Reason:         req.Reason,
		Trigger:        req.Trigger,
		BatchID:        req.BatchID,
		OverdueLines:   res.Evaluation.Summary.OverdueLines,
		MaxDaysOverdue: res.Evaluation.Summary.MaxDaysOverdue,
		OccurredAt:     at,
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		logger.Warn("delinquency notification failed", "transaction_id", res.TransactionID, "error", err)
	}
}

// OnReturnRecorded is the entry point for return processing: it recomputes the
// statuses of the rental the return event belongs to.
func (s *StatusService) OnReturnRecorded(ctx context.Context, transactionID int64, returnEventID string, changedBy *string, notes string) (*model.StatusUpdateResult, error) {
	return s.UpdateTransactionStatus(ctx, model.UpdateStatusRequest{
		TransactionID: transactionID,
		ChangedBy:     changedBy,
		Reason:        model.ReasonReturnEvent,
		Trigger:       returnEventID,
		Notes:         notes,
	})
}

// EvaluateTransaction previews the statuses as of asOf without writing anything.
func (s *StatusService) EvaluateTransaction(ctx context.Context, transactionID int64, asOf time.Time) (*model.Evaluation, error) {
	txn, err := s.txnRepo.GetWithLines(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !txn.IsRental() {
		return nil, fmt.Errorf("transaction %d: %w", transactionID, model.ErrNotRental)
	}
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	return status.Evaluate(txn, asOf), nil
}

// History returns the status log of a rental, oldest first.
func (s *StatusService) History(ctx context.Context, transactionID int64) ([]*model.StatusLog, error) {
	txn, err := s.txnRepo.GetWithLines(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !txn.IsRental() {
		return nil, fmt.Errorf("transaction %d: %w", transactionID, model.ErrNotRental)
	}
	return s.logRepo.ListByTransaction(ctx, transactionID)
}
