package store

import "errors"

var (
	// ErrConflict: an overlapping booked appointment already holds the slot.
	ErrConflict = errors.New("conflict")
	// ErrNotFound: the referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition: the appointment is not in a state that permits
	// the requested status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrLockNotAcquired: the provider-scoped booking lock could not be
	// taken within the configured wait. Retryable, unlike ErrConflict.
	ErrLockNotAcquired = errors.New("booking lock not acquired")
)
