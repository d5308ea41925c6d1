package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RentalLifecycle is the denormalized operational record kept 1:1 with a rental transaction.
type RentalLifecycle struct {
	ID                 int64           `json:"id"`
	TransactionID      int64           `json:"transaction_id"`
	CurrentStatus      RentalStatus    `json:"current_status"`
	LastStatusChange   time.Time       `json:"last_status_change"`
	StatusChangedBy    *string         `json:"status_changed_by,omitempty"`
	ExpectedReturnDate *time.Time      `json:"expected_return_date,omitempty"`
	TotalLateFees      decimal.Decimal `json:"total_late_fees"`
	TotalDamageFees    decimal.Decimal `json:"total_damage_fees"`
	TotalOtherFees     decimal.Decimal `json:"total_other_fees"`
}

func (l *RentalLifecycle) TotalFees() decimal.Decimal {
	return l.TotalLateFees.Add(l.TotalDamageFees).Add(l.TotalOtherFees)
}

type ReturnEventType string

const (
	ReturnEventPartial   ReturnEventType = "PARTIAL_RETURN"
	ReturnEventFull      ReturnEventType = "FULL_RETURN"
	ReturnEventExtension ReturnEventType = "EXTENSION"
)

type ReturnedItem struct {
	LineID    int64  `json:"line_id"`
	Quantity  int    `json:"quantity"`
	Condition string `json:"condition,omitempty"`
}

// ReturnEvent is an append-only record of one return or extension action.
type ReturnEvent struct {
	ID                    int64           `json:"id"`
	LifecycleID           int64           `json:"lifecycle_id"`
	TransactionID         int64           `json:"transaction_id"`
	Reference             string          `json:"reference"`
	EventType             ReturnEventType `json:"event_type"`
	EventDate             time.Time       `json:"event_date"`
	ProcessedBy           *string         `json:"processed_by,omitempty"`
	Items                 []ReturnedItem  `json:"items"`
	TotalQuantityReturned int             `json:"total_quantity_returned"`
	// DaysLate is how far past the due date the returned lines were when they came back.
	DaysLate         int             `json:"days_late"`
	LateFeeCharged   decimal.Decimal `json:"late_fee_charged"`
	DamageFeeCharged decimal.Decimal `json:"damage_fee_charged"`
	OtherFeeCharged  decimal.Decimal `json:"other_fee_charged"`
	PaymentCollected decimal.Decimal `json:"payment_collected"`
	RefundIssued     decimal.Decimal `json:"refund_issued"`
	NewReturnDate    *time.Time      `json:"new_return_date,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type RecordReturnRequest struct {
	TransactionID    int64           `json:"transaction_id"`
	Items            []ReturnedItem  `json:"items"`
	ReturnDate       time.Time       `json:"return_date"`
	LateFee          decimal.Decimal `json:"late_fee"`
	DamageFee        decimal.Decimal `json:"damage_fee"`
	OtherFee         decimal.Decimal `json:"other_fee"`
	PaymentCollected decimal.Decimal `json:"payment_collected"`
	RefundIssued     decimal.Decimal `json:"refund_issued"`
	ProcessedBy      *string         `json:"processed_by,omitempty"`
	Notes            string          `json:"notes,omitempty"`
}

func (r RecordReturnRequest) Validate() error {
	if r.TransactionID == 0 {
		return fmt.Errorf("%w: transaction_id is required", ErrValidation)
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: at least one returned item is required", ErrValidation)
	}
	seen := make(map[int64]struct{}, len(r.Items))
	for _, it := range r.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: line %d return quantity must be > 0", ErrValidation, it.LineID)
		}
		if _, dup := seen[it.LineID]; dup {
			return fmt.Errorf("%w: line %d listed twice", ErrValidation, it.LineID)
		}
		seen[it.LineID] = struct{}{}
	}
	for name, v := range map[string]interface{ IsNegative() bool }{
		"late_fee": r.LateFee, "damage_fee": r.DamageFee, "other_fee": r.OtherFee,
		"payment_collected": r.PaymentCollected, "refund_issued": r.RefundIssued,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrValidation, name)
		}
	}
	return nil
}

type ExtendRentalRequest struct {
	TransactionID int64     `json:"transaction_id"`
	NewEndDate    time.Time `json:"new_end_date"`
	// LineIDs restricts the extension to some lines; empty means every outstanding line.
	LineIDs      []int64         `json:"line_ids,omitempty"`
	ExtensionFee decimal.Decimal `json:"extension_fee"`
	ProcessedBy  *string         `json:"processed_by,omitempty"`
	Notes        string          `json:"notes,omitempty"`
}

func (r ExtendRentalRequest) Validate() error {
	if r.TransactionID == 0 {
		return fmt.Errorf("%w: transaction_id is required", ErrValidation)
	}
	if r.NewEndDate.IsZero() {
		return fmt.Errorf("%w: new_end_date is required", ErrValidation)
	}
	if r.ExtensionFee.IsNegative() {
		return fmt.Errorf("%w: extension_fee must not be negative", ErrValidation)
	}
	return nil
}

// ReturnResult is what recording a return or an extension produced: the stored
// event and the status recomputation that followed it.
type ReturnResult struct {
	Event  *ReturnEvent        `json:"event"`
	Status *StatusUpdateResult `json:"status,omitempty"`
}
