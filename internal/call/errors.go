package call

import "errors"

// Error strings double as user-facing API messages, so they keep the
// sentence casing the clients display.
var (
	ErrTodoNotFound = errors.New("Todo not found")
	ErrForbidden    = errors.New("Forbidden")

	// Invalid-state family: the request is well-formed but the todo/session
	// is not in a state that permits it. Callers may retry after the
	// precondition changes.
	ErrNotShared       = errors.New("Todo is not shared with another user")
	ErrNotEligible     = errors.New("Todo is not eligible for call start")
	ErrTooEarly        = errors.New("Call can only start when due date/time is reached")
	ErrNoActiveSession = errors.New("No active call session")

	ErrPayloadRequired = errors.New("Signal payload is required")
	ErrNotRecipient    = errors.New("Only the shared user (B) can stop this call")

	// Validation family: end-call reschedule input was rejected; the whole
	// end transaction rolls back.
	ErrRescheduleRequired  = errors.New("A new due date/time is required")
	ErrRescheduleNotFuture = errors.New("New due date/time must be in the future")
	ErrRescheduleNotLater  = errors.New("New due date/time must be later than current due date/time")
)

// IsInvalidState reports whether err belongs to the invalid-state family.
// ErrTooEarly is a member: it is the one legitimately retryable case
// (clients wait for the call window and try again).
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrNotShared) ||
		errors.Is(err, ErrNotEligible) ||
		errors.Is(err, ErrTooEarly) ||
		errors.Is(err, ErrNoActiveSession)
}

// IsValidationError reports whether err belongs to the reschedule-validation
// family.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrRescheduleRequired) ||
		errors.Is(err, ErrRescheduleNotFuture) ||
		errors.Is(err, ErrRescheduleNotLater)
}
