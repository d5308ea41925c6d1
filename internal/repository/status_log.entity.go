package repository

import (
	"encoding/json"
	"time"

	"github.com/nimasrn/rental-gateway/internal/model"
	"gorm.io/datatypes"
)

type StatusLogEntity struct {
	ID              int64          `db:"id"               gorm:"primaryKey;autoIncrement;column:id"`
	TransactionID   int64          `db:"transaction_id"   gorm:"column:transaction_id;not null;index:idx_status_logs_txn_changed"`
	LineItemID      *int64         `db:"line_item_id"     gorm:"column:line_item_id;index"`
	OldStatus       *string        `db:"old_status"       gorm:"column:old_status"`
	NewStatus       string         `db:"new_status"       gorm:"column:new_status;not null"`
	Reason          string         `db:"change_reason"    gorm:"column:change_reason;not null"`
	Trigger         string         `db:"change_trigger"   gorm:"column:change_trigger"`
	ChangedBy       *string        `db:"changed_by"       gorm:"column:changed_by"`
	SystemGenerated bool           `db:"system_generated" gorm:"column:system_generated;not null;default:false"`
	BatchID         *string        `db:"batch_id"         gorm:"column:batch_id;index"`
	Notes           string         `db:"notes"            gorm:"column:notes"`
	Metadata        datatypes.JSON `db:"metadata"         gorm:"column:metadata"`
	ChangedAt       time.Time      `db:"changed_at"       gorm:"column:changed_at;not null;index:idx_status_logs_txn_changed"`
}

func (StatusLogEntity) TableName() string {
	return "rental_status_logs"
}

func toStatusLogEntity(m *model.StatusLog) (*StatusLogEntity, error) {
	if m == nil {
		return nil, nil
	}
	e := &StatusLogEntity{
		ID:              m.ID,
		TransactionID:   m.TransactionID,
		LineItemID:      m.LineItemID,
		OldStatus:       statusToColumn(m.OldStatus),
		NewStatus:       string(m.NewStatus),
		Reason:          string(m.Reason),
		Trigger:         m.Trigger,
		ChangedBy:       m.ChangedBy,
		SystemGenerated: m.SystemGenerated,
		BatchID:         m.BatchID,
		Notes:           m.Notes,
		ChangedAt:       m.ChangedAt,
	}
	if m.Metadata != nil {
		raw, err := json.Marshal(m.Metadata)
		if err != nil {
			return nil, err
		}
		e.Metadata = datatypes.JSON(raw)
	}
	return e, nil
}

func toStatusLogModel(e *StatusLogEntity) *model.StatusLog {
	if e == nil {
		return nil
	}
	m := &model.StatusLog{
		ID:              e.ID,
		TransactionID:   e.TransactionID,
		LineItemID:      e.LineItemID,
		OldStatus:       columnToStatus(e.OldStatus),
		NewStatus:       model.RentalStatus(e.NewStatus),
		Reason:          model.StatusChangeReason(e.Reason),
		Trigger:         e.Trigger,
		ChangedBy:       e.ChangedBy,
		SystemGenerated: e.SystemGenerated,
		BatchID:         e.BatchID,
		Notes:           e.Notes,
		ChangedAt:       e.ChangedAt,
	}
	if len(e.Metadata) > 0 {
		// metadata is informational; a bad blob must not hide the log row
		_ = json.Unmarshal(e.Metadata, &m.Metadata)
	}
	return m
}

func toStatusLogModels(entities []*StatusLogEntity) []*model.StatusLog {
	if entities == nil {
		return nil
	}
	models := make([]*model.StatusLog, len(entities))
	for i, e := range entities {
		models[i] = toStatusLogModel(e)
	}
	return models
}
