package model

import "time"

// StatusLog is the immutable audit row written for every status transition.
// LineItemID is nil for header-level transitions.
type StatusLog struct {
	ID              int64              `json:"id"`
	TransactionID   int64              `json:"transaction_id"`
	LineItemID      *int64             `json:"line_item_id,omitempty"`
	OldStatus       *RentalStatus      `json:"old_status,omitempty"`
	NewStatus       RentalStatus       `json:"new_status"`
	Reason          StatusChangeReason `json:"change_reason"`
	Trigger         string             `json:"change_trigger,omitempty"`
	ChangedBy       *string            `json:"changed_by,omitempty"`
	SystemGenerated bool               `json:"system_generated"`
	BatchID         *string            `json:"batch_id,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	Metadata        map[string]any     `json:"metadata,omitempty"`
	ChangedAt       time.Time          `json:"changed_at"`
}

func (l *StatusLog) IsHeader() bool { return l.LineItemID == nil }
