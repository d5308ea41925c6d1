package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionKindSale     TransactionKind = "SALE"
	TransactionKindPurchase TransactionKind = "PURCHASE"
	TransactionKindRental   TransactionKind = "RENTAL"
	TransactionKindReturn   TransactionKind = "RETURN"
)

// Transaction is the financial header of a sale, purchase, rental or return.
// Rental fields are nil for the other kinds.
type Transaction struct {
	ID                  int64           `json:"id"`
	TenantID            int64           `json:"tenant_id"`
	Number              string          `json:"transaction_number"`
	Kind                TransactionKind `json:"kind"`
	TransactionDate     time.Time       `json:"transaction_date"`
	RentalStartDate     *time.Time      `json:"rental_start_date,omitempty"`
	RentalEndDate       *time.Time      `json:"rental_end_date,omitempty"`
	CurrentRentalStatus *RentalStatus   `json:"current_rental_status,omitempty"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	PaidAmount          decimal.Decimal `json:"paid_amount"`
	Lines               []*LineItem     `json:"lines"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (t *Transaction) IsRental() bool {
	return t != nil && t.Kind == TransactionKindRental
}

// Line returns the line with the given id or nil.
func (t *Transaction) Line(id int64) *LineItem {
	for _, l := range t.Lines {
		if l.ID == id {
			return l
		}
	}
	return nil
}

type LineItem struct {
	ID                  int64           `json:"id"`
	TransactionID       int64           `json:"transaction_id"`
	LineNumber          int             `json:"line_number"`
	SKU                 string          `json:"sku"`
	Description         string          `json:"description"`
	Quantity            int             `json:"quantity"`
	ReturnedQuantity    int             `json:"returned_quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	RentalStartDate     *time.Time      `json:"rental_start_date,omitempty"`
	RentalEndDate       *time.Time      `json:"rental_end_date,omitempty"`
	CurrentRentalStatus *RentalStatus   `json:"current_rental_status,omitempty"`
}

// Outstanding is the quantity still out with the customer.
func (l *LineItem) Outstanding() int {
	if l.ReturnedQuantity >= l.Quantity {
		return 0
	}
	return l.Quantity - l.ReturnedQuantity
}

type CreateRentalLine struct {
	SKU             string          `json:"sku"`
	Description     string          `json:"description"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	RentalStartDate *time.Time      `json:"rental_start_date,omitempty"`
	RentalEndDate   *time.Time      `json:"rental_end_date,omitempty"`
}

type CreateRentalRequest struct {
	TenantID        int64              `json:"tenant_id"`
	Number          string             `json:"transaction_number"`
	TransactionDate time.Time          `json:"transaction_date"`
	RentalStartDate time.Time          `json:"rental_start_date"`
	RentalEndDate   time.Time          `json:"rental_end_date"`
	PaidAmount      decimal.Decimal    `json:"paid_amount"`
	Lines           []CreateRentalLine `json:"lines"`
}

func (r CreateRentalRequest) Validate() error {
	if r.TenantID == 0 {
		return fmt.Errorf("%w: tenant_id is required", ErrValidation)
	}
	if r.Number == "" {
		return fmt.Errorf("%w: transaction_number is required", ErrValidation)
	}
	if r.RentalStartDate.IsZero() || r.RentalEndDate.IsZero() {
		return fmt.Errorf("%w: rental_start_date and rental_end_date are required", ErrValidation)
	}
	if r.RentalEndDate.Before(r.RentalStartDate) {
		return fmt.Errorf("%w: rental_end_date is before rental_start_date", ErrValidation)
	}
	if len(r.Lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrValidation)
	}
	for i, l := range r.Lines {
		if l.Quantity <= 0 {
			return fmt.Errorf("%w: line %d quantity must be > 0", ErrValidation, i+1)
		}
		if l.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %d unit_price must not be negative", ErrValidation, i+1)
		}
		if l.RentalStartDate != nil && l.RentalEndDate != nil && l.RentalEndDate.Before(*l.RentalStartDate) {
			return fmt.Errorf("%w: line %d rental_end_date is before rental_start_date", ErrValidation, i+1)
		}
	}
	return nil
}
