package status

import (
	"testing"
	"time"

	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)

func day(offset int) *time.Time {
	d := today.AddDate(0, 0, offset)
	return &d
}

func TestLineStatus(t *testing.T) {
	tests := []struct {
		name     string
		quantity int
		returned int
		end      *time.Time
		want     model.RentalStatus
	}{
		{"nothing returned, due in future", 2, 0, day(5), model.RentalStatusActive},
		{"nothing returned, past due", 2, 0, day(-2), model.RentalStatusLate},
		{"partially returned, due in future", 3, 1, day(5), model.RentalStatusPartialReturn},
		{"partially returned, past due", 3, 1, day(-2), model.RentalStatusLatePartialReturn},
		{"fully returned, due in future", 2, 2, day(5), model.RentalStatusReturned},
		{"fully returned, past due", 2, 2, day(-30), model.RentalStatusReturned},
		{"over returned counts as returned", 2, 3, day(-1), model.RentalStatusReturned},
		{"due today is not late", 1, 0, day(0), model.RentalStatusActive},
		{"no end date never late", 4, 0, nil, model.RentalStatusActive},
		{"no end date with partial return", 4, 1, nil, model.RentalStatusPartialReturn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LineStatus(tt.quantity, tt.returned, tt.end, today))
		})
	}
}

func TestLineStatus_DueEarlierSameDayIsNotLate(t *testing.T) {
	end := time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, model.RentalStatusActive, LineStatus(1, 0, &end, today))
}

func TestLineStatus_DayBoundaryIsUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	end := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC).In(est)
	asOf := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), DateOf(end))
	assert.Equal(t, model.RentalStatusActive, LineStatus(1, 0, &end, asOf))
	assert.Equal(t, 0, DaysOverdue(&end, asOf))

	asOf = asOf.AddDate(0, 0, 1).In(est)
	assert.Equal(t, model.RentalStatusLate, LineStatus(1, 0, &end, asOf))
	assert.Equal(t, 1, DaysOverdue(&end, asOf))
}

func TestLineStatus_Invariants(t *testing.T) {
	for offset := -10; offset <= 10; offset++ {
		for quantity := 1; quantity <= 4; quantity++ {
			end := day(offset)

			t.Run("full return always RETURNED", func(t *testing.T) {
				assert.Equal(t, model.RentalStatusReturned, LineStatus(quantity, quantity, end, today))
			})

			t.Run("no returns is ACTIVE or LATE", func(t *testing.T) {
				st := LineStatus(quantity, 0, end, today)
				assert.Contains(t, []model.RentalStatus{model.RentalStatusActive, model.RentalStatusLate}, st)
				assert.False(t, st.HasReturnActivity())
			})
		}
	}
}

func TestHeaderStatus(t *testing.T) {
	const (
		active  = model.RentalStatusActive
		late    = model.RentalStatusLate
		partial = model.RentalStatusPartialReturn
		latePR  = model.RentalStatusLatePartialReturn
		ret     = model.RentalStatusReturned
	)

	tests := []struct {
		name  string
		lines []model.RentalStatus
		want  model.RentalStatus
	}{
		{"no lines", nil, model.RentalStatusActive},
		{"all active", []model.RentalStatus{active, active}, active},
		{"active and late", []model.RentalStatus{active, late}, late},
		{"partial and late", []model.RentalStatus{partial, late}, latePR},
		{"all returned", []model.RentalStatus{ret, ret}, model.RentalStatusCompleted},
		{"returned and late", []model.RentalStatus{ret, late}, latePR},
		{"returned and active", []model.RentalStatus{ret, active}, partial},
		{"single late partial", []model.RentalStatus{latePR}, latePR},
		{"partial only", []model.RentalStatus{partial, active}, partial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HeaderStatus(tt.lines))
		})
	}
}

func TestHeaderStatus_CompletedOnlyWhenEveryLineReturned(t *testing.T) {
	all := []model.RentalStatus{
		model.RentalStatusActive,
		model.RentalStatusLate,
		model.RentalStatusPartialReturn,
		model.RentalStatusLatePartialReturn,
		model.RentalStatusReturned,
	}
	for _, a := range all {
		for _, b := range all {
			got := HeaderStatus([]model.RentalStatus{a, b})
			bothReturned := a == model.RentalStatusReturned && b == model.RentalStatusReturned
			assert.Equal(t, bothReturned, got == model.RentalStatusCompleted, "%s + %s -> %s", a, b, got)
		}
	}
}

func TestEvaluate(t *testing.T) {
	t.Run("mixed lines", func(t *testing.T) {
		txn := &model.Transaction{
			ID:            7,
			Kind:          model.TransactionKindRental,
			RentalEndDate: day(5),
			Lines: []*model.LineItem{
				{ID: 1, Quantity: 3, ReturnedQuantity: 1, RentalEndDate: day(5)},
				{ID: 2, Quantity: 2, ReturnedQuantity: 0, RentalEndDate: day(-4)},
				{ID: 3, Quantity: 5, ReturnedQuantity: 0, RentalEndDate: day(-1)},
			},
		}

		ev := Evaluate(txn, today)
		require.Len(t, ev.Lines, 3)

		assert.Equal(t, int64(7), ev.TransactionID)
		assert.Equal(t, model.RentalStatusLatePartialReturn, ev.HeaderStatus)
		assert.Equal(t, model.RentalStatusPartialReturn, ev.Line(1).Status)
		assert.Equal(t, model.RentalStatusLate, ev.Line(2).Status)
		assert.Equal(t, 4, ev.Line(2).DaysOverdue)
		assert.Equal(t, 1, ev.Line(3).DaysOverdue)
		assert.Equal(t, 0, ev.Line(1).DaysOverdue)
		assert.Equal(t, 2, ev.Line(1).OutstandingQuantity)

		assert.Equal(t, 3, ev.Summary.LineCount)
		assert.Equal(t, 10, ev.Summary.TotalQuantity)
		assert.Equal(t, 1, ev.Summary.TotalReturned)
		assert.Equal(t, 10.0, ev.Summary.ReturnPercentage)
		assert.Equal(t, 2, ev.Summary.OverdueLines)
		assert.Equal(t, 4, ev.Summary.MaxDaysOverdue)
		assert.Equal(t, 2, ev.Summary.StatusCounts[model.RentalStatusLate])
		assert.Equal(t, DateOf(today), ev.AsOf)
	})

	t.Run("fully returned late line reports zero days overdue", func(t *testing.T) {
		txn := &model.Transaction{
			Kind:  model.TransactionKindRental,
			Lines: []*model.LineItem{{ID: 1, Quantity: 2, ReturnedQuantity: 2, RentalEndDate: day(-10)}},
		}
		ev := Evaluate(txn, today)
		assert.Equal(t, model.RentalStatusCompleted, ev.HeaderStatus)
		assert.Equal(t, 0, ev.Line(1).DaysOverdue)
		assert.Equal(t, 100.0, ev.Summary.ReturnPercentage)
	})

	t.Run("line without end date inherits header end date", func(t *testing.T) {
		txn := &model.Transaction{
			Kind:          model.TransactionKindRental,
			RentalEndDate: day(-3),
			Lines:         []*model.LineItem{{ID: 1, Quantity: 1}},
		}
		ev := Evaluate(txn, today)
		assert.Equal(t, model.RentalStatusLate, ev.HeaderStatus)
		assert.Equal(t, 3, ev.Line(1).DaysOverdue)
	})

	t.Run("zero lines", func(t *testing.T) {
		ev := Evaluate(&model.Transaction{Kind: model.TransactionKindRental}, today)
		assert.Equal(t, model.RentalStatusActive, ev.HeaderStatus)
		assert.Empty(t, ev.Lines)
		assert.Zero(t, ev.Summary.ReturnPercentage)
	})
}

func TestEvaluate_Metadata(t *testing.T) {
	txn := &model.Transaction{
		Kind:  model.TransactionKindRental,
		Lines: []*model.LineItem{{ID: 9, Quantity: 2, RentalEndDate: day(-2)}},
	}
	ev := Evaluate(txn, today)

	header := ev.HeaderMetadata()
	assert.Equal(t, 1, header["overdue_lines"])
	assert.Equal(t, "2026-03-15", header["as_of"])

	line := ev.Line(9).Metadata(ev.AsOf)
	assert.Equal(t, 2, line["days_overdue"])
	assert.Equal(t, "2026-03-13", line["rental_end_date"])
}

func TestPriority(t *testing.T) {
	tests := []struct {
		name string
		old  *model.RentalStatus
		next model.RentalStatus
		want int
	}{
		{"active to late", model.StatusPtr(model.RentalStatusActive), model.RentalStatusLate, PriorityDelinquency},
		{"active to late partial", model.StatusPtr(model.RentalStatusActive), model.RentalStatusLatePartialReturn, PriorityDelinquency},
		{"partial to late partial", model.StatusPtr(model.RentalStatusPartialReturn), model.RentalStatusLatePartialReturn, PriorityDelinquency},
		{"extended to late", model.StatusPtr(model.RentalStatusExtended), model.RentalStatusLate, PriorityDelinquency},
		{"late to late partial", model.StatusPtr(model.RentalStatusLate), model.RentalStatusLatePartialReturn, PriorityReturn},
		{"late to completed", model.StatusPtr(model.RentalStatusLate), model.RentalStatusCompleted, PriorityReturn},
		{"active to partial", model.StatusPtr(model.RentalStatusActive), model.RentalStatusPartialReturn, PriorityReturn},
		{"late to active", model.StatusPtr(model.RentalStatusLate), model.RentalStatusActive, PriorityDefault},
		{"extended to active", model.StatusPtr(model.RentalStatusExtended), model.RentalStatusActive, PriorityDefault},
		{"unset to late", nil, model.RentalStatusLate, PriorityDelinquency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Priority(tt.old, tt.next))
		})
	}
}

func TestNeedsChange(t *testing.T) {
	assert.True(t, NeedsChange(nil, model.RentalStatusActive))
	assert.True(t, NeedsChange(model.StatusPtr(model.RentalStatusActive), model.RentalStatusLate))
	assert.False(t, NeedsChange(model.StatusPtr(model.RentalStatusLate), model.RentalStatusLate))
}
