package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/tutorhive/scheduling/internal/redis"
)

// BookingService owns the booking lifecycle and keeps it consistent with slot
// occupancy: while a booking is PENDING or CONFIRMED its slot stays BOOKED,
// cancellation and deletion hand the slot back, completion keeps the
// historical BOOKED record.
type BookingService struct {
	repo   Repository
	locker redisclient.Locker
	logger *zap.Logger
	now    func() time.Time
}

func NewBookingService(repo Repository, locker redisclient.Locker, logger *zap.Logger) *BookingService {
	return &BookingService{
		repo:   repo,
		locker: locker,
		logger: logger,
		now:    time.Now,
	}
}

// transitions lists the reachable statuses from each non-terminal status.
var transitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingCompleted, BookingCancelled},
}

func canTransition(from, to BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateBooking reserves a slot for a student. The per-slot lock sheds
// concurrent attempts early; the conditional claim inside
// CreateBookingWithClaim is what actually guarantees at most one winner.
func (s *BookingService) CreateBooking(ctx context.Context, studentID, tutorID, slotID uuid.UUID, price float64) (*Booking, error) {
	if price <= 0 {
		return nil, validationf("price must be positive")
	}

	if _, err := s.repo.GetStudentByID(ctx, studentID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetTutorByID(ctx, tutorID); err != nil {
		return nil, err
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.TutorID != tutorID {
		return nil, validationf("slot does not belong to this tutor")
	}
	if slot.Status != SlotAvailable {
		return nil, ErrSlotUnavailable
	}

	var created *Booking

	err = s.locker.WithLock(ctx, redisclient.SlotLockKey(slotID), func(lockCtx context.Context) error {
		b, err := s.repo.CreateBookingWithClaim(lockCtx, Booking{
			StudentID: studentID,
			TutorID:   tutorID,
			SlotID:    slotID,
			Price:     price,
		})
		if err != nil {
			return err
		}

		created = b
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.logger.Info("booking created",
		zap.String("booking_id", created.ID.String()),
		zap.String("slot_id", slotID.String()),
		zap.String("student_id", studentID.String()),
	)

	return created, nil
}

// UpdateBookingStatus performs one lifecycle transition. Cancelling requires
// the cancelling actor and releases the slot; every other transition leaves
// the slot BOOKED.
func (s *BookingService) UpdateBookingStatus(ctx context.Context, bookingID uuid.UUID, status BookingStatus, cancelledBy *CancelActor) (*Booking, error) {
	switch status {
	case BookingPending, BookingConfirmed, BookingCompleted, BookingCancelled:
	default:
		return nil, validationf("unknown booking status %q", status)
	}

	if status == BookingCancelled {
		if cancelledBy == nil {
			return nil, validationf("cancelledBy is required when cancelling")
		}
		if !cancelledBy.Valid() {
			return nil, validationf("unknown cancel actor %q", *cancelledBy)
		}
	} else {
		cancelledBy = nil
	}

	booking, err := s.repo.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status.Terminal() {
		return nil, ErrTerminalStatus
	}
	if !canTransition(booking.Status, status) {
		return nil, ErrBadTransition
	}

	// Conditional on the status observed above, so a concurrent transition
	// loses here instead of overwriting. Cancelling releases the slot inside
	// the same repository transaction.
	updated, err := s.repo.UpdateBookingStatus(ctx, bookingID, booking.Status, status, cancelledBy)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, ErrBadTransition
		}
		return nil, fmt.Errorf("update booking status: %w", err)
	}

	s.logger.Info("booking status updated",
		zap.String("booking_id", bookingID.String()),
		zap.String("from", string(booking.Status)),
		zap.String("to", string(status)),
	)

	return updated, nil
}

// DeleteBooking removes the booking record and hands the slot back, whatever
// the booking's prior status. Both writes happen in one repository
// transaction.
func (s *BookingService) DeleteBooking(ctx context.Context, bookingID uuid.UUID) error {
	if err := s.repo.DeleteBooking(ctx, bookingID); err != nil {
		return err
	}

	s.logger.Info("booking deleted",
		zap.String("booking_id", bookingID.String()),
	)

	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID uuid.UUID) (*Booking, error) {
	return s.repo.GetBookingByID(ctx, bookingID)
}

// ListBookingsForStudent applies the temporal filter: "upcoming" keeps live
// bookings whose slot end is strictly in the future, "past" is the union of
// finished statuses and elapsed slots, "all" applies no filter.
func (s *BookingService) ListBookingsForStudent(ctx context.Context, studentID uuid.UUID, filter BookingFilter) ([]BookingDetail, error) {
	if filter == "" {
		filter = FilterAll
	}
	if !filter.Valid() {
		return nil, validationf("unknown booking filter %q", filter)
	}

	if _, err := s.repo.GetStudentByID(ctx, studentID); err != nil {
		return nil, err
	}

	return s.repo.ListBookingsByStudent(ctx, studentID, filter, s.now())
}

func (s *BookingService) ListBookingsForTutor(ctx context.Context, tutorID uuid.UUID) ([]BookingDetail, error) {
	if _, err := s.repo.GetTutorByID(ctx, tutorID); err != nil {
		return nil, err
	}
	return s.repo.ListBookingsByTutor(ctx, tutorID)
}
