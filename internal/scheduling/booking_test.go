package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBookingService(repo *fakeRepo) *BookingService {
	svc := NewBookingService(repo, newFakeLocker(), zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc
}

// bookingFixture is one tutor with one generated rule, plus a student ready
// to book.
type bookingFixture struct {
	repo      *fakeRepo
	bookings  *BookingService
	tutorID   uuid.UUID
	studentID uuid.UUID
	slots     []AvailabilitySlot
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	ctx := context.Background()

	repo := newFakeRepo()
	availability := newTestAvailabilityService(repo)
	tutorID := repo.addTutor()

	_, err := availability.CreateRule(ctx, tutorID, Wednesday, 540, 660)
	require.NoError(t, err)

	slots, err := availability.ListAvailableSlots(ctx, tutorID)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	return &bookingFixture{
		repo:      repo,
		bookings:  newTestBookingService(repo),
		tutorID:   tutorID,
		studentID: repo.addStudent(),
		slots:     slots,
	}
}

func TestCreateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("claims the slot and starts PENDING", func(t *testing.T) {
		f := newBookingFixture(t)
		slot := f.slots[0]

		booking, err := f.bookings.CreateBooking(ctx, f.studentID, f.tutorID, slot.ID, 30)
		require.NoError(t, err)
		assert.Equal(t, BookingPending, booking.Status)
		assert.Equal(t, slot.ID, booking.SlotID)
		assert.Nil(t, booking.CancelledBy)

		assert.Equal(t, SlotBooked, f.repo.slot(slot.ID).Status)
	})

	t.Run("non-positive price", func(t *testing.T) {
		f := newBookingFixture(t)
		_, err := f.bookings.CreateBooking(ctx, f.studentID, f.tutorID, f.slots[0].ID, 0)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown student", func(t *testing.T) {
		f := newBookingFixture(t)
		_, err := f.bookings.CreateBooking(ctx, uuid.New(), f.tutorID, f.slots[0].ID, 30)
		assert.ErrorIs(t, err, ErrStudentNotFound)
	})

	t.Run("unknown slot", func(t *testing.T) {
		f := newBookingFixture(t)
		_, err := f.bookings.CreateBooking(ctx, f.studentID, f.tutorID, uuid.New(), 30)
		assert.ErrorIs(t, err, ErrSlotNotFound)
	})

	t.Run("slot belongs to another tutor", func(t *testing.T) {
		f := newBookingFixture(t)
		other := f.repo.addTutor()
		_, err := f.bookings.CreateBooking(ctx, f.studentID, other, f.slots[0].ID, 30)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("already booked slot", func(t *testing.T) {
		f := newBookingFixture(t)
		slot := f.slots[0]

		_, err := f.bookings.CreateBooking(ctx, f.studentID, f.tutorID, slot.ID, 30)
		require.NoError(t, err)

		_, err = f.bookings.CreateBooking(ctx, f.repo.addStudent(), f.tutorID, slot.ID, 30)
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	})

	t.Run("failed insert does not keep the claim", func(t *testing.T) {
		f := newBookingFixture(t)
		slot := f.slots[0]
		f.repo.failBookingInsert = true

		_, err := f.bookings.CreateBooking(ctx, f.studentID, f.tutorID, slot.ID, 30)
		require.Error(t, err)
		assert.Equal(t, SlotAvailable, f.repo.slot(slot.ID).Status)

		f.repo.failBookingInsert = false
		_, err = f.bookings.CreateBooking(ctx, f.studentID, f.tutorID, slot.ID, 30)
		assert.NoError(t, err)
	})
}

func TestCreateBookingConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)
	slot := f.slots[0]

	const racers = 32

	students := make([]uuid.UUID, racers)
	for i := range students {
		students[i] = f.repo.addStudent()
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(studentID uuid.UUID) {
			defer wg.Done()
			_, err := f.bookings.CreateBooking(ctx, studentID, f.tutorID, slot.ID, 30)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			default:
				assert.ErrorIs(t, err, ErrConflict)
				conflicts++
			}
		}(students[i])
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one racer may claim the slot")
	assert.Equal(t, racers-1, conflicts)
	assert.Equal(t, SlotBooked, f.repo.slot(slot.ID).Status)
}

func TestUpdateBookingStatus(t *testing.T) {
	ctx := context.Background()
	actor := CancelledByStudent

	book := func(t *testing.T, f *bookingFixture) *Booking {
		t.Helper()
		b, err := f.bookings.CreateBooking(ctx, f.studentID, f.tutorID, f.slots[0].ID, 30)
		require.NoError(t, err)
		return b
	}

	t.Run("pending to confirmed to completed", func(t *testing.T) {
		f := newBookingFixture(t)
		b := book(t, f)

		b2, err := f.bookings.UpdateBookingStatus(ctx, b.ID, BookingConfirmed, nil)
		require.NoError(t, err)
		assert.Equal(t, BookingConfirmed, b2.Status)

		b3, err := f.bookings.UpdateBookingStatus(ctx, b.ID, BookingCompleted, nil)
		require.NoError(t, err)
		assert.Equal(t, BookingCompleted, b3.Status)

		// Completion keeps the historical claim.
		assert.Equal(t, SlotBooked, f.repo.slot(b.SlotID).Status)
	})

	t.Run("pending cannot complete directly", func(t *testing.T) {
		f := newBookingFixture(t)
		b := book(t, f)

		_, err := f.bookings.UpdateBookingStatus(ctx, b.ID, BookingCompleted, nil)
		assert.ErrorIs(t, err, ErrBadTransition)
	})

	t.Run("nothing transitions back to pending", func(t *testing.T) {
		f := newBookingFixture(t)
		b := book(t, f)

		_, err := f.bookings.UpdateBookingStatus(ctx, b.ID, BookingConfirmed, nil)
		require.NoError(t, err)

		_, err = f.bookings.UpdateBookingStatus(ctx, b.ID, BookingPending, nil)
		assert.ErrorIs(t, err, ErrBadTransition)
	})

	t.Run("cancel releases the slot and records the actor", func(t *testing.T) {
		f := newBookingFixture(t)
		b := book(t, f)

		cancelled, err := f.bookings.UpdateBookingStatus(ctx, b.ID, BookingCancelled, &actor)
		require.NoError(t, err)
		assert.Equal(t, BookingCancelled, cancelled.Status)
		require.NotNil(t, cancelled.CancelledBy)
		assert.Equal(t, CancelledByStudent, *cancelled.CancelledBy)

		assert.Equal(t, SlotAvailable, f.repo.slot(b.SlotID).Status)
	})

	t.Run("cancel requires a valid actor", func(t *testing.T) {
		f := newBookingFixture(t)
		b := book(t, f)

		_, err := f.bookings.UpdateBookingStatus(ctx, b.ID, BookingCancelled, nil)
		assert.ErrorIs(t, err, ErrValidation)

		bogus := CancelActor("SYSTEM")
		_, err = f.bookings.UpdateBookingStatus(ctx, b.ID, BookingCancelled, &bogus)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("terminal statuses reject every transition", func(t *testing.T) {
		f := newBookingFixture(t)
		b := book(t, f)

		_, err := f.bookings.UpdateBookingStatus(ctx, b.ID, BookingCancelled, &actor)
		require.NoError(t, err)

		for _, to := range []BookingStatus{BookingPending, BookingConfirmed, BookingCompleted, BookingCancelled} {
			_, err := f.bookings.UpdateBookingStatus(ctx, b.ID, to, &actor)
			assert.ErrorIs(t, err, ErrTerminalStatus, "to=%s", to)
		}
	})

	t.Run("unknown status value", func(t *testing.T) {
		f := newBookingFixture(t)
		b := book(t, f)

		_, err := f.bookings.UpdateBookingStatus(ctx, b.ID, BookingStatus("DONE"), nil)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown booking", func(t *testing.T) {
		f := newBookingFixture(t)
		_, err := f.bookings.UpdateBookingStatus(ctx, uuid.New(), BookingConfirmed, nil)
		assert.ErrorIs(t, err, ErrBookingNotFound)
	})
}

func TestDeleteBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the booking and releases the slot", func(t *testing.T) {
		f := newBookingFixture(t)
		b, err := f.bookings.CreateBooking(ctx, f.studentID, f.tutorID, f.slots[0].ID, 30)
		require.NoError(t, err)

		require.NoError(t, f.bookings.DeleteBooking(ctx, b.ID))

		_, err = f.bookings.GetBooking(ctx, b.ID)
		assert.ErrorIs(t, err, ErrBookingNotFound)
		assert.Equal(t, SlotAvailable, f.repo.slot(b.SlotID).Status)
	})

	t.Run("releases the slot even for a completed booking", func(t *testing.T) {
		f := newBookingFixture(t)
		b, err := f.bookings.CreateBooking(ctx, f.studentID, f.tutorID, f.slots[0].ID, 30)
		require.NoError(t, err)
		_, err = f.bookings.UpdateBookingStatus(ctx, b.ID, BookingConfirmed, nil)
		require.NoError(t, err)
		_, err = f.bookings.UpdateBookingStatus(ctx, b.ID, BookingCompleted, nil)
		require.NoError(t, err)

		require.NoError(t, f.bookings.DeleteBooking(ctx, b.ID))
		assert.Equal(t, SlotAvailable, f.repo.slot(b.SlotID).Status)
	})

	t.Run("unknown booking", func(t *testing.T) {
		f := newBookingFixture(t)
		err := f.bookings.DeleteBooking(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrBookingNotFound)
	})
}

func TestListBookingsForStudent(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)

	addDetail := func(status BookingStatus, date time.Time, endMinute int) uuid.UUID {
		slot := f.repo.addSlot(AvailabilitySlot{
			RuleID:      uuid.New(),
			TutorID:     f.tutorID,
			Date:        date,
			StartMinute: endMinute - 30,
			EndMinute:   endMinute,
			Status:      SlotBooked,
		})
		b := f.repo.addBooking(Booking{
			StudentID: f.studentID,
			TutorID:   f.tutorID,
			SlotID:    slot.ID,
			Price:     30,
			Status:    status,
		})
		return b.ID
	}

	tomorrow := dateOnly(testNow).AddDate(0, 0, 1)
	yesterday := dateOnly(testNow).AddDate(0, 0, -1)

	upcomingPending := addDetail(BookingPending, tomorrow, 600)
	upcomingToday := addDetail(BookingConfirmed, dateOnly(testNow), minuteOfDay(testNow)+30)
	elapsedConfirmed := addDetail(BookingConfirmed, yesterday, 600)
	completed := addDetail(BookingCompleted, yesterday, 600)

	ids := func(details []BookingDetail) map[uuid.UUID]bool {
		out := make(map[uuid.UUID]bool, len(details))
		for _, d := range details {
			out[d.Booking.ID] = true
		}
		return out
	}

	t.Run("upcoming keeps live future bookings only", func(t *testing.T) {
		got, err := f.bookings.ListBookingsForStudent(ctx, f.studentID, FilterUpcoming)
		require.NoError(t, err)
		set := ids(got)
		assert.True(t, set[upcomingPending])
		assert.True(t, set[upcomingToday])
		assert.False(t, set[elapsedConfirmed])
		assert.False(t, set[completed])
	})

	t.Run("past is finished or elapsed", func(t *testing.T) {
		got, err := f.bookings.ListBookingsForStudent(ctx, f.studentID, FilterPast)
		require.NoError(t, err)
		set := ids(got)
		assert.False(t, set[upcomingPending])
		assert.False(t, set[upcomingToday])
		assert.True(t, set[elapsedConfirmed])
		assert.True(t, set[completed])
	})

	t.Run("empty filter defaults to all", func(t *testing.T) {
		got, err := f.bookings.ListBookingsForStudent(ctx, f.studentID, "")
		require.NoError(t, err)
		assert.Len(t, got, 4)
		for _, d := range got {
			require.NotNil(t, d.Slot)
		}
	})

	t.Run("unknown filter", func(t *testing.T) {
		_, err := f.bookings.ListBookingsForStudent(ctx, f.studentID, BookingFilter("soon"))
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown student", func(t *testing.T) {
		_, err := f.bookings.ListBookingsForStudent(ctx, uuid.New(), FilterAll)
		assert.ErrorIs(t, err, ErrStudentNotFound)
	})
}

func TestListBookingsForStudentZonedClock(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)

	// 00:30+02:00 on Jan 7 is 22:30 UTC on Jan 6.
	f.bookings.now = func() time.Time {
		return time.Date(2026, time.January, 7, 0, 30, 0, 0, time.FixedZone("EET", 2*60*60))
	}

	// Slot on Jan 7 UTC ending 09:00: hours in the future, upcoming.
	slot := f.repo.addSlot(AvailabilitySlot{
		RuleID:      uuid.New(),
		TutorID:     f.tutorID,
		Date:        day(2026, time.January, 7),
		StartMinute: 510,
		EndMinute:   540,
		Status:      SlotBooked,
	})
	b := f.repo.addBooking(Booking{
		StudentID: f.studentID,
		TutorID:   f.tutorID,
		SlotID:    slot.ID,
		Price:     30,
		Status:    BookingPending,
	})

	upcoming, err := f.bookings.ListBookingsForStudent(ctx, f.studentID, FilterUpcoming)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, b.ID, upcoming[0].Booking.ID)

	past, err := f.bookings.ListBookingsForStudent(ctx, f.studentID, FilterPast)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestListBookingsForTutor(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)

	b, err := f.bookings.CreateBooking(ctx, f.studentID, f.tutorID, f.slots[0].ID, 30)
	require.NoError(t, err)

	got, err := f.bookings.ListBookingsForTutor(ctx, f.tutorID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].Booking.ID)
	require.NotNil(t, got[0].Slot)
	assert.Equal(t, b.SlotID, got[0].Slot.ID)
}
