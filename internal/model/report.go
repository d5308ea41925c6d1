package model

import (
	"fmt"
	"time"
)

// UpdateStatusRequest drives one status recomputation of a single transaction.
// A nil ChangedBy marks the resulting logs as system generated.
type UpdateStatusRequest struct {
	TransactionID int64
	AsOf          time.Time
	ChangedBy     *string
	Reason        StatusChangeReason
	Trigger       string
	BatchID       *string
	Notes         string
}

type LineStatusChange struct {
	LineID    int64         `json:"line_id"`
	OldStatus *RentalStatus `json:"old_status,omitempty"`
	NewStatus RentalStatus  `json:"new_status"`
}

// StatusUpdateResult is the transition report of UpdateTransactionStatus.
type StatusUpdateResult struct {
	TransactionID int64              `json:"transaction_id"`
	OldStatus     *RentalStatus      `json:"old_status,omitempty"`
	NewStatus     RentalStatus       `json:"new_status"`
	HeaderChanged bool               `json:"header_changed"`
	LineChanges   []LineStatusChange `json:"line_changes"`
	TotalChanges  int                `json:"total_changes"`
	Evaluation    *Evaluation        `json:"evaluation"`
}

type ReconcileRequest struct {
	// TransactionIDs restricts the run; empty means every eligible rental.
	TransactionIDs []int64   `json:"transaction_ids,omitempty"`
	AsOf           time.Time `json:"as_of"`
}

type BatchItemResult struct {
	TransactionID int64         `json:"transaction_id"`
	OldStatus     *RentalStatus `json:"old_status,omitempty"`
	NewStatus     RentalStatus  `json:"new_status"`
	Priority      int           `json:"priority"`
	Success       bool          `json:"success"`
	Changes       int           `json:"changes"`
	Error         string        `json:"error,omitempty"`
}

// BatchReport summarizes one reconciliation run.
type BatchReport struct {
	BatchID       string            `json:"batch_id"`
	AsOf          time.Time         `json:"as_of"`
	TotalChecked  int               `json:"total_checked"`
	UpdatesNeeded int               `json:"updates_needed"`
	Successful    int               `json:"successful"`
	Failed        int               `json:"failed"`
	Results       []BatchItemResult `json:"results"`
	StatusChanges map[string]int    `json:"status_changes"`
	StartedAt     time.Time         `json:"started_at"`
	Duration      time.Duration     `json:"duration"`
}

// TransitionKey renders an old/new pair the way StatusChanges is keyed.
func TransitionKey(old *RentalStatus, next RentalStatus) string {
	from := "NONE"
	if old != nil {
		from = string(*old)
	}
	return fmt.Sprintf("%s->%s", from, next)
}
