package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the scheduling services.
//
// CreateBookingWithClaim and UpdateBookingStatus are conditional writes: they
// only take effect when the row still holds the expected prior state, which is
// what makes claims and transitions safe under concurrent callers.
type Repository interface {
	GetTutorByID(ctx context.Context, id uuid.UUID) (*Tutor, error)
	GetStudentByID(ctx context.Context, id uuid.UUID) (*Student, error)

	// Availability rules
	CreateRule(ctx context.Context, rule AvailabilityRule) (*AvailabilityRule, error)
	GetRuleByID(ctx context.Context, id uuid.UUID) (*AvailabilityRule, error)
	ListRulesByTutor(ctx context.Context, tutorID uuid.UUID) ([]AvailabilityRule, error)
	ListActiveRules(ctx context.Context, tutorID uuid.UUID, weekday Weekday) ([]AvailabilityRule, error)
	ListAllActiveRules(ctx context.Context) ([]AvailabilityRule, error)
	UpdateRule(ctx context.Context, rule AvailabilityRule) (*AvailabilityRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error

	// Slots
	//
	// InsertSlots skips rows whose (rule_id, date, start_minute) already
	// exists and reports how many were actually inserted, so generation can
	// be re-run at any time.
	InsertSlots(ctx context.Context, slots []AvailabilitySlot) (int, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error)
	ListAvailableSlotsByTutor(ctx context.Context, tutorID uuid.UUID, from time.Time) ([]AvailabilitySlot, error)
	ListFutureBookedSlots(ctx context.Context, ruleID uuid.UUID, from time.Time) ([]AvailabilitySlot, error)
	DeleteFutureAvailableSlots(ctx context.Context, ruleID uuid.UUID, from time.Time) error

	// Bookings
	//
	// CreateBookingWithClaim atomically flips the slot AVAILABLE -> BOOKED
	// and inserts the booking in PENDING. When the slot is no longer
	// AVAILABLE it fails with ErrSlotUnavailable and writes nothing.
	//
	// UpdateBookingStatus to CANCELLED and DeleteBooking release the slot in
	// the same transaction as the booking write; either both land or neither.
	CreateBookingWithClaim(ctx context.Context, booking Booking) (*Booking, error)
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus, cancelledBy *CancelActor) (*Booking, error)
	DeleteBooking(ctx context.Context, id uuid.UUID) error
	ListBookingsByStudent(ctx context.Context, studentID uuid.UUID, filter BookingFilter, now time.Time) ([]BookingDetail, error)
	ListBookingsByTutor(ctx context.Context, tutorID uuid.UUID) ([]BookingDetail, error)
	HasLiveBookingsForRule(ctx context.Context, ruleID uuid.UUID) (bool, error)

	// Reviews
	//
	// CreateReview fails with ErrReviewExists when the booking already has
	// one (unique constraint, not a pre-check).
	CreateReview(ctx context.Context, review Review) (*Review, error)
	ListReviewsByTutor(ctx context.Context, tutorID uuid.UUID) ([]Review, error)
}
