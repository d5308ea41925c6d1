package repository

import (
	"encoding/json"
	"time"

	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type RentalLifecycleEntity struct {
	ID                 int64           `db:"id"                   gorm:"primaryKey;autoIncrement;column:id"`
	TransactionID      int64           `db:"transaction_id"       gorm:"column:transaction_id;not null;uniqueIndex"`
	CurrentStatus      string          `db:"current_status"       gorm:"column:current_status;not null"`
	LastStatusChange   time.Time       `db:"last_status_change"   gorm:"column:last_status_change;not null"`
	StatusChangedBy    *string         `db:"status_changed_by"    gorm:"column:status_changed_by"`
	ExpectedReturnDate *time.Time      `db:"expected_return_date" gorm:"column:expected_return_date"`
	TotalLateFees      decimal.Decimal `db:"total_late_fees"      gorm:"column:total_late_fees;type:numeric(14,2);not null;default:0"`
	TotalDamageFees    decimal.Decimal `db:"total_damage_fees"    gorm:"column:total_damage_fees;type:numeric(14,2);not null;default:0"`
	TotalOtherFees     decimal.Decimal `db:"total_other_fees"     gorm:"column:total_other_fees;type:numeric(14,2);not null;default:0"`
	CreatedAt          time.Time       `db:"created_at"           gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `db:"updated_at"           gorm:"column:updated_at;autoUpdateTime"`
}

func (RentalLifecycleEntity) TableName() string {
	return "rental_lifecycles"
}

func toLifecycleEntity(m *model.RentalLifecycle) *RentalLifecycleEntity {
	if m == nil {
		return nil
	}
	return &RentalLifecycleEntity{
		ID:                 m.ID,
		TransactionID:      m.TransactionID,
		CurrentStatus:      string(m.CurrentStatus),
		LastStatusChange:   m.LastStatusChange,
		StatusChangedBy:    m.StatusChangedBy,
		ExpectedReturnDate: m.ExpectedReturnDate,
		TotalLateFees:      m.TotalLateFees,
		TotalDamageFees:    m.TotalDamageFees,
		TotalOtherFees:     m.TotalOtherFees,
	}
}

func toLifecycleModel(e *RentalLifecycleEntity) *model.RentalLifecycle {
	if e == nil {
		return nil
	}
	return &model.RentalLifecycle{
		ID:                 e.ID,
		TransactionID:      e.TransactionID,
		CurrentStatus:      model.RentalStatus(e.CurrentStatus),
		LastStatusChange:   e.LastStatusChange,
		StatusChangedBy:    e.StatusChangedBy,
		ExpectedReturnDate: e.ExpectedReturnDate,
		TotalLateFees:      e.TotalLateFees,
		TotalDamageFees:    e.TotalDamageFees,
		TotalOtherFees:     e.TotalOtherFees,
	}
}

type ReturnEventEntity struct {
	ID                    int64           `db:"id"                      gorm:"primaryKey;autoIncrement;column:id"`
	LifecycleID           int64           `db:"lifecycle_id"            gorm:"column:lifecycle_id;not null;index"`
	TransactionID         int64           `db:"transaction_id"          gorm:"column:transaction_id;not null;index"`
	Reference             string          `db:"reference"               gorm:"column:reference;not null;uniqueIndex"`
	EventType             string          `db:"event_type"              gorm:"column:event_type;not null"`
	EventDate             time.Time       `db:"event_date"              gorm:"column:event_date;not null"`
	ProcessedBy           *string         `db:"processed_by"            gorm:"column:processed_by"`
	Items                 datatypes.JSON  `db:"items"                   gorm:"column:items"`
	TotalQuantityReturned int             `db:"total_quantity_returned" gorm:"column:total_quantity_returned;not null;default:0"`
	DaysLate              int             `db:"days_late"               gorm:"column:days_late;not null;default:0"`
	LateFeeCharged        decimal.Decimal `db:"late_fee_charged"        gorm:"column:late_fee_charged;type:numeric(14,2);not null;default:0"`
	DamageFeeCharged      decimal.Decimal `db:"damage_fee_charged"      gorm:"column:damage_fee_charged;type:numeric(14,2);not null;default:0"`
	OtherFeeCharged       decimal.Decimal `db:"other_fee_charged"       gorm:"column:other_fee_charged;type:numeric(14,2);not null;default:0"`
	PaymentCollected      decimal.Decimal `db:"payment_collected"       gorm:"column:payment_collected;type:numeric(14,2);not null;default:0"`
	RefundIssued          decimal.Decimal `db:"refund_issued"           gorm:"column:refund_issued;type:numeric(14,2);not null;default:0"`
	NewReturnDate         *time.Time      `db:"new_return_date"         gorm:"column:new_return_date"`
	Notes                 string          `db:"notes"                   gorm:"column:notes"`
	CreatedAt             time.Time       `db:"created_at"              gorm:"column:created_at;autoCreateTime"`
}

func (ReturnEventEntity) TableName() string {
	return "rental_return_events"
}

func toReturnEventEntity(m *model.ReturnEvent) (*ReturnEventEntity, error) {
	if m == nil {
		return nil, nil
	}
	items, err := json.Marshal(m.Items)
	if err != nil {
		return nil, err
	}
	return &ReturnEventEntity{
		ID:                    m.ID,
		LifecycleID:           m.LifecycleID,
		TransactionID:         m.TransactionID,
		Reference:             m.Reference,
		EventType:             string(m.EventType),
		EventDate:             m.EventDate,
		ProcessedBy:           m.ProcessedBy,
		Items:                 datatypes.JSON(items),
		TotalQuantityReturned: m.TotalQuantityReturned,
		DaysLate:              m.DaysLate,
		LateFeeCharged:        m.LateFeeCharged,
		DamageFeeCharged:      m.DamageFeeCharged,
		OtherFeeCharged:       m.OtherFeeCharged,
		PaymentCollected:      m.PaymentCollected,
		RefundIssued:          m.RefundIssued,
		NewReturnDate:         m.NewReturnDate,
		Notes:                 m.Notes,
		CreatedAt:             m.CreatedAt,
	}, nil
}

func toReturnEventModel(e *ReturnEventEntity) *model.ReturnEvent {
	if e == nil {
		return nil
	}
	m := &model.ReturnEvent{
		ID:                    e.ID,
		LifecycleID:           e.LifecycleID,
		TransactionID:         e.TransactionID,
		Reference:             e.Reference,
		EventType:             model.ReturnEventType(e.EventType),
		EventDate:             e.EventDate,
		ProcessedBy:           e.ProcessedBy,
		TotalQuantityReturned: e.TotalQuantityReturned,
		DaysLate:              e.DaysLate,
		LateFeeCharged:        e.LateFeeCharged,
		DamageFeeCharged:      e.DamageFeeCharged,
		OtherFeeCharged:       e.OtherFeeCharged,
		PaymentCollected:      e.PaymentCollected,
		RefundIssued:          e.RefundIssued,
		NewReturnDate:         e.NewReturnDate,
		Notes:                 e.Notes,
		CreatedAt:             e.CreatedAt,
	}
	if len(e.Items) > 0 {
		if err := json.Unmarshal(e.Items, &m.Items); err != nil {
			m.Items = []model.ReturnedItem{}
		}
	}
	return m
}
