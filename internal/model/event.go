package model

import "time"

const EventRentalDelinquent = "rental.delinquent"

// TransitionEvent is posted to the notification webhook after commit.
type TransitionEvent struct {
	Type           string             `json:"type"`
	TransactionID  int64              `json:"transaction_id"`
	OldStatus      *RentalStatus      `json:"old_status,omitempty"`
	NewStatus      RentalStatus       `json:"new_status"`
	Reason         StatusChangeReason `json:"reason"`
	Trigger        string             `json:"trigger,omitempty"`
	BatchID        *string            `json:"batch_id,omitempty"`
	OverdueLines   int                `json:"overdue_lines"`
	MaxDaysOverdue int                `json:"max_days_overdue"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

// ReturnRecorded is the queue message other services publish after storing a return event.
type ReturnRecorded struct {
	TransactionID int64   `json:"transaction_id"`
	ReturnEventID string  `json:"return_event_id"`
	ChangedBy     *string `json:"changed_by,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}
