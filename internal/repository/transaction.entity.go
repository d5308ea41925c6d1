package repository

import (
	"time"

	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/shopspring/decimal"
)

type TransactionEntity struct {
	ID                  int64           `db:"id"                    gorm:"primaryKey;autoIncrement;column:id"`
	TenantID            int64           `db:"tenant_id"             gorm:"column:tenant_id;not null;uniqueIndex:idx_transactions_tenant_number"`
	Number              string          `db:"transaction_number"    gorm:"column:transaction_number;not null;uniqueIndex:idx_transactions_tenant_number"`
	Kind                string          `db:"kind"                  gorm:"column:kind;not null;index:idx_transactions_kind_status"`
	TransactionDate     time.Time       `db:"transaction_date"      gorm:"column:transaction_date;not null"`
	RentalStartDate     *time.Time      `db:"rental_start_date"     gorm:"column:rental_start_date"`
	RentalEndDate       *time.Time      `db:"rental_end_date"       gorm:"column:rental_end_date"`
	CurrentRentalStatus *string         `db:"current_rental_status" gorm:"column:current_rental_status;index:idx_transactions_kind_status"`
	TotalAmount         decimal.Decimal `db:"total_amount"          gorm:"column:total_amount;type:numeric(14,2);not null;default:0"`
	PaidAmount          decimal.Decimal `db:"paid_amount"           gorm:"column:paid_amount;type:numeric(14,2);not null;default:0"`
	CreatedAt           time.Time       `db:"created_at"            gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time       `db:"updated_at"            gorm:"column:updated_at;autoUpdateTime"`

	Lines []*LineItemEntity `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

type LineItemEntity struct {
	ID                  int64           `db:"id"                    gorm:"primaryKey;autoIncrement;column:id"`
	TransactionID       int64           `db:"transaction_id"        gorm:"column:transaction_id;not null;index"`
	LineNumber          int             `db:"line_number"           gorm:"column:line_number;not null"`
	SKU                 string          `db:"sku"                   gorm:"column:sku;not null"`
	Description         string          `db:"description"           gorm:"column:description"`
	Quantity            int             `db:"quantity"              gorm:"column:quantity;not null"`
	ReturnedQuantity    int             `db:"returned_quantity"     gorm:"column:returned_quantity;not null;default:0"`
	UnitPrice           decimal.Decimal `db:"unit_price"            gorm:"column:unit_price;type:numeric(14,2);not null;default:0"`
	RentalStartDate     *time.Time      `db:"rental_start_date"     gorm:"column:rental_start_date"`
	RentalEndDate       *time.Time      `db:"rental_end_date"       gorm:"column:rental_end_date"`
	CurrentRentalStatus *string         `db:"current_rental_status" gorm:"column:current_rental_status"`
}

func (LineItemEntity) TableName() string {
	return "transaction_lines"
}

func statusToColumn(s *model.RentalStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func columnToStatus(s *string) *model.RentalStatus {
	if s == nil {
		return nil
	}
	return model.StatusPtr(model.RentalStatus(*s))
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	e := &TransactionEntity{
		ID:                  m.ID,
		TenantID:            m.TenantID,
		Number:              m.Number,
		Kind:                string(m.Kind),
		TransactionDate:     m.TransactionDate,
		RentalStartDate:     m.RentalStartDate,
		RentalEndDate:       m.RentalEndDate,
		CurrentRentalStatus: statusToColumn(m.CurrentRentalStatus),
		TotalAmount:         m.TotalAmount,
		PaidAmount:          m.PaidAmount,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
	for _, l := range m.Lines {
		e.Lines = append(e.Lines, toLineItemEntity(l))
	}
	return e
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	m := &model.Transaction{
		ID:                  e.ID,
		TenantID:            e.TenantID,
		Number:              e.Number,
		Kind:                model.TransactionKind(e.Kind),
		TransactionDate:     e.TransactionDate,
		RentalStartDate:     e.RentalStartDate,
		RentalEndDate:       e.RentalEndDate,
		CurrentRentalStatus: columnToStatus(e.CurrentRentalStatus),
		TotalAmount:         e.TotalAmount,
		PaidAmount:          e.PaidAmount,
		Lines:               make([]*model.LineItem, 0, len(e.Lines)),
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
	for _, l := range e.Lines {
		m.Lines = append(m.Lines, toLineItemModel(l))
	}
	return m
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}

func toLineItemEntity(m *model.LineItem) *LineItemEntity {
	if m == nil {
		return nil
	}
	return &LineItemEntity{
		ID:                  m.ID,
		TransactionID:       m.TransactionID,
		LineNumber:          m.LineNumber,
		SKU:                 m.SKU,
		Description:         m.Description,
		Quantity:            m.Quantity,
		ReturnedQuantity:    m.ReturnedQuantity,
		UnitPrice:           m.UnitPrice,
		RentalStartDate:     m.RentalStartDate,
		RentalEndDate:       m.RentalEndDate,
		CurrentRentalStatus: statusToColumn(m.CurrentRentalStatus),
	}
}

func toLineItemModel(e *LineItemEntity) *model.LineItem {
	if e == nil {
		return nil
	}
	return &model.LineItem{
		ID:                  e.ID,
		TransactionID:       e.TransactionID,
		LineNumber:          e.LineNumber,
		SKU:                 e.SKU,
		Description:         e.Description,
		Quantity:            e.Quantity,
		ReturnedQuantity:    e.ReturnedQuantity,
		UnitPrice:           e.UnitPrice,
		RentalStartDate:     e.RentalStartDate,
		RentalEndDate:       e.RentalEndDate,
		CurrentRentalStatus: columnToStatus(e.CurrentRentalStatus),
	}
}
