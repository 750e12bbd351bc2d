package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError through errors.Is.
	ErrValidation = errors.New("invalid input")

	ErrSessionExpired   = errors.New("session expired")
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrAlreadyReplied   = errors.New("ticket already replied")
	ErrLockedByOther    = errors.New("ticket is being handled by another operator")
	ErrNotLocked        = errors.New("ticket is not locked")
	ErrWrongOwner       = errors.New("ticket is locked by another operator")
	ErrDeliveryFailed   = errors.New("reply delivery failed")
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrReplyNotRecorded means the requester got the answer but the ticket row was not
	// updated. Resending would deliver it twice.
	ErrReplyNotRecorded = errors.New("reply delivered but ticket not updated")
)

// ValidationError is bad user input; the caller re-prompts and keeps its state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsLockViolation reports errors the lock protocol returns without mutating the ticket.
func IsLockViolation(err error) bool {
	return errors.Is(err, ErrAlreadyReplied) ||
		errors.Is(err, ErrLockedByOther) ||
		errors.Is(err, ErrNotLocked) ||
		errors.Is(err, ErrWrongOwner)
}
