package scheduling

import (
	"errors"
	"fmt"
)

// Error categories. Callers branch on these with errors.Is; the specific
// sentinels below wrap a category so both checks work.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("not authorized")

	// ErrUnavailable marks transient persistence failures. It is the only
	// category eligible for caller-side retry; the engine never retries
	// internally.
	ErrUnavailable = errors.New("temporarily unavailable")
)

var (
	ErrTutorNotFound   = fmt.Errorf("tutor %w", ErrNotFound)
	ErrStudentNotFound = fmt.Errorf("student %w", ErrNotFound)
	ErrRuleNotFound    = fmt.Errorf("availability rule %w", ErrNotFound)
	ErrSlotNotFound    = fmt.Errorf("availability slot %w", ErrNotFound)
	ErrBookingNotFound = fmt.Errorf("booking %w", ErrNotFound)

	ErrRuleOverlap     = fmt.Errorf("%w: availability overlaps with an existing rule", ErrConflict)
	ErrRulesBusy       = fmt.Errorf("%w: availability is being updated, please retry", ErrConflict)
	ErrRuleHasBookings = fmt.Errorf("%w: rule has bookings attached", ErrConflict)
	ErrSlotUnavailable = fmt.Errorf("%w: slot no longer available", ErrConflict)
	ErrSlotBeingBooked = fmt.Errorf("%w: slot is currently being booked, please retry", ErrConflict)
	ErrBookedSlots     = fmt.Errorf("%w: rule has booked slots outside the new window", ErrConflict)
	ErrTerminalStatus  = fmt.Errorf("%w: booking is in a terminal status", ErrConflict)
	ErrBadTransition   = fmt.Errorf("%w: invalid status transition", ErrConflict)
	ErrReviewExists    = fmt.Errorf("%w: review already exists for this booking", ErrConflict)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
