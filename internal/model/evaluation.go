package model

import "time"

// Evaluation is the computed (not stored) rental status of a transaction as of a date.
type Evaluation struct {
	TransactionID int64             `json:"transaction_id"`
	AsOf          time.Time         `json:"as_of"`
	HeaderStatus  RentalStatus      `json:"header_status"`
	Lines         []*LineEvaluation `json:"lines"`
	Summary       EvaluationSummary `json:"summary"`
}

type LineEvaluation struct {
	LineID              int64        `json:"line_id"`
	Status              RentalStatus `json:"status"`
	Quantity            int          `json:"quantity"`
	ReturnedQuantity    int          `json:"returned_quantity"`
	OutstandingQuantity int          `json:"outstanding_quantity"`
	DaysOverdue         int          `json:"days_overdue"`
	RentalEndDate       *time.Time   `json:"rental_end_date,omitempty"`
}

type EvaluationSummary struct {
	LineCount        int                  `json:"line_count"`
	TotalQuantity    int                  `json:"total_quantity"`
	TotalReturned    int                  `json:"total_returned"`
	ReturnPercentage float64              `json:"return_percentage"`
	OverdueLines     int                  `json:"overdue_lines"`
	MaxDaysOverdue   int                  `json:"max_days_overdue"`
	StatusCounts     map[RentalStatus]int `json:"status_counts"`
}

// Line returns the evaluation of one line or nil.
func (e *Evaluation) Line(lineID int64) *LineEvaluation {
	for _, l := range e.Lines {
		if l.LineID == lineID {
			return l
		}
	}
	return nil
}

// HeaderMetadata is the loosely-typed blob stored on header status logs.
func (e *Evaluation) HeaderMetadata() map[string]any {
	return map[string]any{
		"line_count":        e.Summary.LineCount,
		"total_quantity":    e.Summary.TotalQuantity,
		"total_returned":    e.Summary.TotalReturned,
		"return_percentage": e.Summary.ReturnPercentage,
		"overdue_lines":     e.Summary.OverdueLines,
		"max_days_overdue":  e.Summary.MaxDaysOverdue,
		"as_of":             e.AsOf.Format(time.DateOnly),
	}
}

// Metadata is the loosely-typed blob stored on line status logs.
func (l *LineEvaluation) Metadata(asOf time.Time) map[string]any {
	m := map[string]any{
		"quantity":             l.Quantity,
		"returned_quantity":    l.ReturnedQuantity,
		"outstanding_quantity": l.OutstandingQuantity,
		"days_overdue":         l.DaysOverdue,
		"as_of":                asOf.Format(time.DateOnly),
	}
	if l.RentalEndDate != nil {
		m["rental_end_date"] = l.RentalEndDate.Format(time.DateOnly)
	}
	return m
}
