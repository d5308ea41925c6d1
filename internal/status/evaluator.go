// Package status derives rental statuses from quantities and due dates.
// Everything here is pure: callers load the transaction, this package only computes.
package status

import (
	"math"
	"time"

	"github.com/nimasrn/rental-gateway/internal/model"
)

// DateOf truncates t to its UTC calendar day. Due dates are compared per day, not per instant.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isPastDue(endDate *time.Time, asOf time.Time) bool {
	return endDate != nil && DateOf(*endDate).Before(DateOf(asOf))
}

// LineStatus applies the per-line rule. Fully returned wins over any date.
func LineStatus(quantity, returned int, endDate *time.Time, asOf time.Time) model.RentalStatus {
	late := isPastDue(endDate, asOf)
	switch {
	case returned >= quantity:
		return model.RentalStatusReturned
	case returned > 0 && late:
		return model.RentalStatusLatePartialReturn
	case returned > 0:
		return model.RentalStatusPartialReturn
	case late:
		return model.RentalStatusLate
	default:
		return model.RentalStatusActive
	}
}

// HeaderStatus aggregates line statuses. No lines means ACTIVE.
func HeaderStatus(lines []model.RentalStatus) model.RentalStatus {
	if len(lines) == 0 {
		return model.RentalStatusActive
	}

	var returned, late, activity int
	for _, s := range lines {
		if s == model.RentalStatusReturned {
			returned++
		}
		if s.IsLate() {
			late++
		}
		if s.HasReturnActivity() {
			activity++
		}
	}

	switch {
	case returned == len(lines):
		return model.RentalStatusCompleted
	case late > 0 && activity > 0:
		return model.RentalStatusLatePartialReturn
	case late > 0:
		return model.RentalStatusLate
	case activity > 0:
		return model.RentalStatusPartialReturn
	default:
		return model.RentalStatusActive
	}
}

// DaysOverdue is the number of whole days between the due date and asOf, 0 when not past due.
func DaysOverdue(endDate *time.Time, asOf time.Time) int {
	if !isPastDue(endDate, asOf) {
		return 0
	}
	return int(DateOf(asOf).Sub(DateOf(*endDate)).Hours() / 24)
}

// EffectiveEndDate falls back to the header end date for lines without their own.
func EffectiveEndDate(txn *model.Transaction, line *model.LineItem) *time.Time {
	if line.RentalEndDate != nil {
		return line.RentalEndDate
	}
	return txn.RentalEndDate
}

// Evaluate computes header and line statuses of txn as of asOf.
func Evaluate(txn *model.Transaction, asOf time.Time) *model.Evaluation {
	asOf = DateOf(asOf)
	ev := &model.Evaluation{
		TransactionID: txn.ID,
		AsOf:          asOf,
		Lines:         make([]*model.LineEvaluation, 0, len(txn.Lines)),
		Summary: model.EvaluationSummary{
			StatusCounts: make(map[model.RentalStatus]int),
		},
	}

	statuses := make([]model.RentalStatus, 0, len(txn.Lines))
	for _, line := range txn.Lines {
		end := EffectiveEndDate(txn, line)
		st := LineStatus(line.Quantity, line.ReturnedQuantity, end, asOf)

		le := &model.LineEvaluation{
			LineID:              line.ID,
			Status:              st,
			Quantity:            line.Quantity,
			ReturnedQuantity:    line.ReturnedQuantity,
			OutstandingQuantity: line.Outstanding(),
			RentalEndDate:       end,
		}
		if st.IsLate() {
			le.DaysOverdue = DaysOverdue(end, asOf)
		}

		ev.Lines = append(ev.Lines, le)
		statuses = append(statuses, st)

		ev.Summary.StatusCounts[st]++
		ev.Summary.TotalQuantity += line.Quantity
		ev.Summary.TotalReturned += min(line.ReturnedQuantity, line.Quantity)
		if le.DaysOverdue > 0 {
			ev.Summary.OverdueLines++
			ev.Summary.MaxDaysOverdue = max(ev.Summary.MaxDaysOverdue, le.DaysOverdue)
		}
	}

	ev.Summary.LineCount = len(txn.Lines)
	if ev.Summary.TotalQuantity > 0 {
		pct := float64(ev.Summary.TotalReturned) / float64(ev.Summary.TotalQuantity) * 100
		ev.Summary.ReturnPercentage = math.Round(pct*100) / 100
	}
	ev.HeaderStatus = HeaderStatus(statuses)
	return ev
}
