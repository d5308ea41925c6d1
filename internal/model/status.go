package model

// RentalStatus is the rental state of a transaction header or of one line item.
type RentalStatus string

const (
	RentalStatusActive            RentalStatus = "ACTIVE"
	RentalStatusLate              RentalStatus = "LATE"
	RentalStatusExtended          RentalStatus = "EXTENDED"
	RentalStatusPartialReturn     RentalStatus = "PARTIAL_RETURN"
	RentalStatusLatePartialReturn RentalStatus = "LATE_PARTIAL_RETURN"
	// RentalStatusReturned is used on line items.
	RentalStatusReturned RentalStatus = "RETURNED"
	// RentalStatusCompleted is the header-level status once every line is returned.
	RentalStatusCompleted RentalStatus = "COMPLETED"
)

// ReconcilableStatuses are the stored header statuses the batch reconciler looks at.
var ReconcilableStatuses = []RentalStatus{
	RentalStatusActive,
	RentalStatusLate,
	RentalStatusExtended,
	RentalStatusPartialReturn,
	RentalStatusLatePartialReturn,
}

func (s RentalStatus) Valid() bool {
	switch s {
	case RentalStatusActive,
		RentalStatusLate,
		RentalStatusExtended,
		RentalStatusPartialReturn,
		RentalStatusLatePartialReturn,
		RentalStatusReturned,
		RentalStatusCompleted:
		return true
	}
	return false
}

// IsLate reports whether the status means something is past due.
func (s RentalStatus) IsLate() bool {
	return s == RentalStatusLate || s == RentalStatusLatePartialReturn
}

// HasReturnActivity reports whether at least part of the rental came back.
func (s RentalStatus) HasReturnActivity() bool {
	switch s {
	case RentalStatusPartialReturn, RentalStatusLatePartialReturn, RentalStatusReturned, RentalStatusCompleted:
		return true
	}
	return false
}

// IsFinal reports whether nothing is outstanding any more.
func (s RentalStatus) IsFinal() bool {
	return s == RentalStatusReturned || s == RentalStatusCompleted
}

func (s RentalStatus) String() string { return string(s) }

// StatusPtr is a small helper for the nullable status columns.
func StatusPtr(s RentalStatus) *RentalStatus { return &s }

type StatusChangeReason string

const (
	ReasonScheduledUpdate  StatusChangeReason = "SCHEDULED_UPDATE"
	ReasonReturnEvent      StatusChangeReason = "RETURN_EVENT"
	ReasonManualUpdate     StatusChangeReason = "MANUAL_UPDATE"
	ReasonExtension        StatusChangeReason = "EXTENSION"
	ReasonSystemCorrection StatusChangeReason = "SYSTEM_CORRECTION"
)

func (r StatusChangeReason) Valid() bool {
	switch r {
	case ReasonScheduledUpdate, ReasonReturnEvent, ReasonManualUpdate, ReasonExtension, ReasonSystemCorrection:
		return true
	}
	return false
}
