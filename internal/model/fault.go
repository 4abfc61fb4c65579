package model

import "errors"

// FaultKind classifies business-rule rejections surfaced by the reconciliation
// engine. These are outcomes, not failures: each maps to a specific reply
// script, the transaction rolls back cleanly and nothing is retried.
type FaultKind string

const (
	FaultPastDate     FaultKind = "past_date"
	FaultNoEnrollment FaultKind = "no_enrollment_for_weekday"
	FaultAmbiguousDay FaultKind = "ambiguous_day_requires_time"
	FaultAlreadyAbs   FaultKind = "already_absent"
	FaultNoCredit     FaultKind = "no_credit"
	FaultSlotGone     FaultKind = "slot_unavailable"
	FaultNotOwner     FaultKind = "not_owner"
	// FaultException covers unexpected storage errors; callers see it only as
	// a generic failure, detail stays in the logs.
	FaultException FaultKind = "exception"
)

type Fault struct {
	Kind   FaultKind
	Detail string
}

func (f *Fault) Error() string {
	if f.Detail == "" {
		return string(f.Kind)
	}
	return string(f.Kind) + ": " + f.Detail
}

func NewFault(kind FaultKind, detail string) *Fault {
	return &Fault{Kind: kind, Detail: detail}
}

// KindOf extracts the fault kind from an error chain, or FaultException for
// anything that is not a business fault.
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return FaultException
}

func IsFault(err error, kind FaultKind) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == kind
}
