package scheduling

import "errors"

// ErrForbidden: the acting identity is not allowed to touch the target
// resource. Identity and role come from the upstream auth layer; this
// package only compares them against row ownership.
var ErrForbidden = errors.New("forbidden")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// AvailabilityReason distinguishes "pick another day" from "pick another
// time" for callers building UIs.
type AvailabilityReason string

const (
	AvailabilityReasonClosed       AvailabilityReason = "provider_closed"
	AvailabilityReasonOutsideHours AvailabilityReason = "outside_working_hours"
)

// AvailabilityError rejects a booking because the provider is not open for
// the requested slot. Distinct from store.ErrConflict, which means the
// provider is open but the slot is already taken.
type AvailabilityError struct {
	Reason AvailabilityReason
	msg    string
}

func (e *AvailabilityError) Error() string {
	return e.msg
}

func availabilityError(reason AvailabilityReason, msg string) error {
	return &AvailabilityError{Reason: reason, msg: msg}
}
