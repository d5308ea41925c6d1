package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/nimasrn/rental-gateway/internal/status"
	"github.com/nimasrn/rental-gateway/pkg/logger"
	"github.com/nimasrn/rental-gateway/pkg/prom"
	"github.com/nimasrn/rental-gateway/pkg/worker"
)

type ReconcileRepository interface {
	ListReconcilable(ctx context.Context, ids []int64) ([]*model.Transaction, error)
}

type StatusUpdater interface {
	UpdateTransactionStatus(ctx context.Context, req model.UpdateStatusRequest) (*model.StatusUpdateResult, error)
}

type ReconcileService struct {
	repo        ReconcileRepository
	updater     StatusUpdater
	clock       Clock
	newBatchID  func() string
	concurrency int
}

// NewReconcileService builds the batch reconciler. concurrency <= 1 applies
// updates one after the other.
func NewReconcileService(repo ReconcileRepository, updater StatusUpdater, concurrency int) *ReconcileService {
	return &ReconcileService{
		repo:        repo,
		updater:     updater,
		clock:       realClock{},
		newBatchID:  uuid.NewString,
		concurrency: concurrency,
	}
}

func (s *ReconcileService) WithClock(c Clock) *ReconcileService {
	s.clock = c
	return s
}

type pendingUpdate struct {
	txn      *model.Transaction
	next     model.RentalStatus
	priority int
}

// Reconcile finds every open rental whose computed header status differs from the
// stored one and applies the difference, most urgent first. A failing item is
// recorded in the report and does not stop the run; only the initial listing can
// fail the whole call.
func (s *ReconcileService) Reconcile(ctx context.Context, req model.ReconcileRequest) (*model.BatchReport, error) {
	startedAt := s.clock.Now()
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = startedAt
	}
	asOf = status.DateOf(asOf)

	txns, err := s.repo.ListReconcilable(ctx, req.TransactionIDs)
	if err != nil {
		return nil, fmt.Errorf("list reconcilable rentals: %w", err)
	}

	report := &model.BatchReport{
		BatchID:       s.newBatchID(),
		AsOf:          asOf,
		TotalChecked:  len(txns),
		Results:       []model.BatchItemResult{},
		StatusChanges: make(map[string]int),
		StartedAt:     startedAt,
	}

	var queue []pendingUpdate
	for _, txn := range txns {
		desired := status.Evaluate(txn, asOf).HeaderStatus
		if !status.NeedsChange(txn.CurrentRentalStatus, desired) {
			continue
		}
		queue = append(queue, pendingUpdate{
			txn:      txn,
			next:     desired,
			priority: status.Priority(txn.CurrentRentalStatus, desired),
		})
	}
	slices.SortStableFunc(queue, func(a, b pendingUpdate) int {
		return cmp.Compare(b.priority, a.priority)
	})
	report.UpdatesNeeded = len(queue)

	results := make([]model.BatchItemResult, len(queue))
	if s.concurrency <= 1 || len(queue) <= 1 {
		for i, p := range queue {
			results[i] = s.apply(ctx, p, report.BatchID, asOf)
		}
	} else {
		// each job writes only its own slot
		pool := worker.NewWorkerManager(len(queue), min(s.concurrency, len(queue)))
		pool.SetWorker(func(_ int, job any) {
			i := job.(int)
			results[i] = s.apply(ctx, queue[i], report.BatchID, asOf)
		})
		pool.Start()
		for i := range queue {
			pool.Enqueue(i)
		}
		pool.Close()
		pool.Wait()
	}

	for _, r := range results {
		if r.Success {
			report.Successful++
			if r.Changes > 0 && status.NeedsChange(r.OldStatus, r.NewStatus) {
				report.StatusChanges[model.TransitionKey(r.OldStatus, r.NewStatus)]++
			}
			continue
		}
		report.Failed++
	}
	report.Results = results
	report.Duration = s.clock.Now().Sub(startedAt)

	prom.AddReconcileDuration(report.Duration.Seconds())
	logger.Info("reconcile finished",
		"batch_id", report.BatchID,
		"as_of", asOf.Format(time.DateOnly),
		"checked", report.TotalChecked,
		"needed", report.UpdatesNeeded,
		"successful", report.Successful,
		"failed", report.Failed,
		"duration", report.Duration)

	return report, nil
}

func (s *ReconcileService) apply(ctx context.Context, p pendingUpdate, batchID string, asOf time.Time) model.BatchItemResult {
	item := model.BatchItemResult{
		TransactionID: p.txn.ID,
		OldStatus:     p.txn.CurrentRentalStatus,
		NewStatus:     p.next,
		Priority:      p.priority,
	}

	res, err := s.updater.UpdateTransactionStatus(ctx, model.UpdateStatusRequest{
		TransactionID: p.txn.ID,
		AsOf:          asOf,
		Reason:        model.ReasonScheduledUpdate,
		Trigger:       "batch:" + batchID,
		BatchID:       &batchID,
	})
	if err != nil {
		item.Error = err.Error()
		prom.IncReconcileItem("failure")
		logger.Warn("reconcile item failed", "batch_id", batchID, "transaction_id", p.txn.ID, "error", err)
		return item
	}

	item.Success = true
	item.OldStatus = res.OldStatus
	item.NewStatus = res.NewStatus
	item.Changes = res.TotalChanges
	prom.IncReconcileItem("success")
	return item
}
