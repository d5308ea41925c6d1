package status

import "github.com/nimasrn/rental-gateway/internal/model"

const (
	// PriorityDelinquency: a rental just went past due.
	PriorityDelinquency = 10
	// PriorityReturn: a rental moved into a return related state.
	PriorityReturn  = 5
	PriorityDefault = 1
)

// Priority ranks a pending header transition for the batch reconciler.
func Priority(old *model.RentalStatus, next model.RentalStatus) int {
	wasLate := old != nil && old.IsLate()
	switch {
	case next.IsLate() && !wasLate:
		return PriorityDelinquency
	case next.HasReturnActivity():
		return PriorityReturn
	default:
		return PriorityDefault
	}
}

// NeedsChange reports whether stored differs from desired. A missing stored value always differs.
func NeedsChange(stored *model.RentalStatus, desired model.RentalStatus) bool {
	return stored == nil || *stored != desired
}
