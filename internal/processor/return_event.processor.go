package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/nimasrn/rental-gateway/internal/queue"
	"github.com/nimasrn/rental-gateway/pkg/logger"
	"github.com/nimasrn/rental-gateway/pkg/prom"
)

const (
	resultProcessed = "processed"
	resultDuplicate = "duplicate"
	resultRejected  = "rejected"
	resultDropped   = "dropped"
	resultFailed    = "failed"
	resultInvalid   = "invalid"
)

// ReturnHook recomputes the status of a rental after a return was recorded.
type ReturnHook interface {
	OnReturnRecorded(ctx context.Context, transactionID int64, returnEventID string, changedBy *string, notes string) (*model.StatusUpdateResult, error)
}

// ReturnEventProcessor applies return_recorded messages published by other
// services. Each return event is applied at most once across consumers.
type ReturnEventProcessor struct {
	hook        ReturnHook
	idempotency *IdempotencyService
}

func NewReturnEventProcessor(hook ReturnHook, idempotency *IdempotencyService) *ReturnEventProcessor {
	return &ReturnEventProcessor{
		hook:        hook,
		idempotency: idempotency,
	}
}

func (p *ReturnEventProcessor) GetType() string {
	return "return_recorded"
}

// Process returns nil to ack the message and an error to leave it pending for a retry.
func (p *ReturnEventProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var ev model.ReturnRecorded
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		// stays pending until the queue moves it to the dead letter stream
		logger.Error("invalid return event payload", "message_id", msg.ID, "error", err)
		prom.IncReturnEvent(resultInvalid)
		return fmt.Errorf("decode return event %s: %w", msg.ID, err)
	}
	if ev.TransactionID <= 0 {
		logger.Warn("return event without transaction id", "message_id", msg.ID)
		prom.IncReturnEvent(resultRejected)
		return nil
	}

	eventID := ev.ReturnEventID
	if eventID == "" {
		eventID = msg.ID
	}

	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, eventID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyProcessed):
			logger.Info("return event already processed, skipping", "event_id", eventID)
			prom.IncReturnEvent(resultDuplicate)
			return nil
		case errors.Is(err, ErrMaxRetriesExceeded):
			logger.Error("return event dropped after max retries", "event_id", eventID, "transaction_id", ev.TransactionID)
			prom.IncReturnEvent(resultDropped)
			return nil
		case errors.Is(err, ErrLockAcquireFailed):
			logger.Info("return event locked by another consumer", "event_id", eventID)
			return err
		}
		logger.Error("failed to acquire return event lock", "event_id", eventID, "error", err)
		return err
	}
	defer func() {
		if procCtx.lockAcquired {
			_ = p.idempotency.ReleaseLock(ctx, procCtx)
		}
	}()

	res, err := p.hook.OnReturnRecorded(ctx, ev.TransactionID, eventID, ev.ChangedBy, ev.Notes)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrValidation) {
			// retrying cannot fix these
			logger.Warn("return event rejected", "event_id", eventID, "transaction_id", ev.TransactionID, "error", err)
			if markErr := p.idempotency.MarkSuccess(ctx, procCtx); markErr != nil {
				logger.Error("failed to mark return event", "event_id", eventID, "error", markErr)
			}
			prom.IncReturnEvent(resultRejected)
			return nil
		}
		if markErr := p.idempotency.MarkFailure(ctx, procCtx, err); markErr != nil {
			logger.Error("failed to mark return event failure", "event_id", eventID, "error", markErr)
		}
		prom.IncReturnEvent(resultFailed)
		return err
	}

	logger.Info("return event applied",
		"event_id", eventID,
		"transaction_id", ev.TransactionID,
		"changes", res.TotalChanges,
		"retry_count", procCtx.RetryCount)

	if markErr := p.idempotency.MarkSuccess(ctx, procCtx); markErr != nil {
		logger.Error("failed to mark return event processed", "event_id", eventID, "error", markErr)
	}
	prom.IncReturnEvent(resultProcessed)
	return nil
}
