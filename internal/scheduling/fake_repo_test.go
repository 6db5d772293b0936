package scheduling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory Repository with the same conditional-write
// semantics as the Postgres implementation: the slot claim and the status
// update only succeed against the expected prior state, and duplicate slot /
// review inserts are skipped or rejected the way the unique constraints
// would.
type fakeRepo struct {
	mu sync.Mutex

	tutors   map[uuid.UUID]Tutor
	students map[uuid.UUID]Student
	rules    map[uuid.UUID]AvailabilityRule
	slots    map[uuid.UUID]AvailabilitySlot
	bookings map[uuid.UUID]Booking
	reviews  map[uuid.UUID]Review

	// failBookingInsert simulates the booking insert failing after the
	// claim succeeded; the claim must then be rolled back, as the real
	// transaction would.
	failBookingInsert bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tutors:   make(map[uuid.UUID]Tutor),
		students: make(map[uuid.UUID]Student),
		rules:    make(map[uuid.UUID]AvailabilityRule),
		slots:    make(map[uuid.UUID]AvailabilitySlot),
		bookings: make(map[uuid.UUID]Booking),
		reviews:  make(map[uuid.UUID]Review),
	}
}

func (f *fakeRepo) addTutor() uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.tutors[id] = Tutor{ID: id, Name: "tutor", Email: id.String() + "@example.com"}
	return id
}

func (f *fakeRepo) addStudent() uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.students[id] = Student{ID: id, Name: "student", Email: id.String() + "@example.com"}
	return id
}

func (f *fakeRepo) addSlot(slot AvailabilitySlot) AvailabilitySlot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	if slot.Status == "" {
		slot.Status = SlotAvailable
	}
	f.slots[slot.ID] = slot
	return slot
}

func (f *fakeRepo) addBooking(b Booking) Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	f.bookings[b.ID] = b
	return b
}

func (f *fakeRepo) slot(id uuid.UUID) AvailabilitySlot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slots[id]
}

func (f *fakeRepo) GetTutorByID(_ context.Context, id uuid.UUID) (*Tutor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tutors[id]
	if !ok {
		return nil, ErrTutorNotFound
	}
	return &t, nil
}

func (f *fakeRepo) GetStudentByID(_ context.Context, id uuid.UUID) (*Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	if !ok {
		return nil, ErrStudentNotFound
	}
	return &s, nil
}

func (f *fakeRepo) CreateRule(_ context.Context, rule AvailabilityRule) (*AvailabilityRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule.ID = uuid.New()
	rule.IsActive = true
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	f.rules[rule.ID] = rule
	return &rule, nil
}

func (f *fakeRepo) GetRuleByID(_ context.Context, id uuid.UUID) (*AvailabilityRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return &r, nil
}

func (f *fakeRepo) ListRulesByTutor(_ context.Context, tutorID uuid.UUID) ([]AvailabilityRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AvailabilityRule
	for _, r := range f.rules {
		if r.TutorID == tutorID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListActiveRules(_ context.Context, tutorID uuid.UUID, weekday Weekday) ([]AvailabilityRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AvailabilityRule
	for _, r := range f.rules {
		if r.TutorID == tutorID && r.Weekday == weekday && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListAllActiveRules(_ context.Context) ([]AvailabilityRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AvailabilityRule
	for _, r := range f.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateRule(_ context.Context, rule AvailabilityRule) (*AvailabilityRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rules[rule.ID]; !ok {
		return nil, ErrRuleNotFound
	}
	rule.UpdatedAt = time.Now()
	f.rules[rule.ID] = rule
	return &rule, nil
}

func (f *fakeRepo) DeleteRule(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(f.rules, id)
	for sid, s := range f.slots {
		if s.RuleID == id {
			delete(f.slots, sid)
		}
	}
	return nil
}

func (f *fakeRepo) InsertSlots(_ context.Context, slots []AvailabilitySlot) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	inserted := 0
	for _, s := range slots {
		if f.slotExistsLocked(s.RuleID, s.Date, s.StartMinute) {
			continue
		}
		s.ID = uuid.New()
		s.Status = SlotAvailable
		f.slots[s.ID] = s
		inserted++
	}
	return inserted, nil
}

func (f *fakeRepo) slotExistsLocked(ruleID uuid.UUID, date time.Time, startMinute int) bool {
	for _, s := range f.slots {
		if s.RuleID == ruleID && s.Date.Equal(date) && s.StartMinute == startMinute {
			return true
		}
	}
	return false
}

func (f *fakeRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (f *fakeRepo) ListAvailableSlotsByTutor(_ context.Context, tutorID uuid.UUID, from time.Time) ([]AvailabilitySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	var out []AvailabilitySlot
	for _, s := range f.slots {
		rule, ok := f.rules[s.RuleID]
		if !ok || !rule.IsActive {
			continue
		}
		if s.TutorID == tutorID && s.Status == SlotAvailable && !s.Date.Before(day) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListFutureBookedSlots(_ context.Context, ruleID uuid.UUID, from time.Time) ([]AvailabilitySlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	var out []AvailabilitySlot
	for _, s := range f.slots {
		if s.RuleID == ruleID && s.Status == SlotBooked && !s.Date.Before(day) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteFutureAvailableSlots(_ context.Context, ruleID uuid.UUID, from time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	for id, s := range f.slots {
		if s.RuleID == ruleID && s.Status == SlotAvailable && !s.Date.Before(day) {
			delete(f.slots, id)
		}
	}
	return nil
}

func (f *fakeRepo) CreateBookingWithClaim(_ context.Context, booking Booking) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.slots[booking.SlotID]
	if !ok || s.Status != SlotAvailable {
		return nil, ErrSlotUnavailable
	}

	if f.failBookingInsert {
		// Transaction rolls back: the claim must not stick.
		return nil, errors.New("insert booking: injected failure")
	}

	s.Status = SlotBooked
	f.slots[booking.SlotID] = s

	booking.ID = uuid.New()
	booking.Status = BookingPending
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	f.bookings[booking.ID] = booking
	return &booking, nil
}

func (f *fakeRepo) GetBookingByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return &b, nil
}

func (f *fakeRepo) UpdateBookingStatus(_ context.Context, id uuid.UUID, from, to BookingStatus, cancelledBy *CancelActor) (*Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Status != from {
		return nil, ErrBookingNotFound
	}
	b.Status = to
	b.CancelledBy = cancelledBy
	b.UpdatedAt = time.Now()
	f.bookings[id] = b

	// Cancelling releases the slot within the same mutex hold, matching the
	// single-transaction semantics of the Postgres implementation.
	if to == BookingCancelled {
		f.releaseSlotLocked(b.SlotID)
	}
	return &b, nil
}

func (f *fakeRepo) DeleteBooking(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return ErrBookingNotFound
	}
	delete(f.bookings, id)
	f.releaseSlotLocked(b.SlotID)
	return nil
}

func (f *fakeRepo) releaseSlotLocked(slotID uuid.UUID) {
	if s, ok := f.slots[slotID]; ok {
		s.Status = SlotAvailable
		f.slots[slotID] = s
	}
}

func (f *fakeRepo) ListBookingsByStudent(_ context.Context, studentID uuid.UUID, filter BookingFilter, now time.Time) ([]BookingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []BookingDetail
	for _, b := range f.bookings {
		if b.StudentID != studentID {
			continue
		}
		slot, ok := f.slots[b.SlotID]
		if !ok {
			continue
		}

		ended := slotEnded(slot.Date, slot.EndMinute, now)
		live := b.Status == BookingPending || b.Status == BookingConfirmed

		switch filter {
		case FilterUpcoming:
			if !live || ended {
				continue
			}
		case FilterPast:
			if live && !ended {
				continue
			}
		}

		s := slot
		out = append(out, BookingDetail{Booking: b, Slot: &s})
	}
	return out, nil
}

func (f *fakeRepo) ListBookingsByTutor(_ context.Context, tutorID uuid.UUID) ([]BookingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []BookingDetail
	for _, b := range f.bookings {
		if b.TutorID != tutorID {
			continue
		}
		if slot, ok := f.slots[b.SlotID]; ok {
			s := slot
			out = append(out, BookingDetail{Booking: b, Slot: &s})
		}
	}
	return out, nil
}

func (f *fakeRepo) HasLiveBookingsForRule(_ context.Context, ruleID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.Status != BookingPending && b.Status != BookingConfirmed {
			continue
		}
		if s, ok := f.slots[b.SlotID]; ok && s.RuleID == ruleID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) CreateReview(_ context.Context, review Review) (*Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rv := range f.reviews {
		if rv.BookingID == review.BookingID {
			return nil, ErrReviewExists
		}
	}
	review.ID = uuid.New()
	review.CreatedAt = time.Now()
	f.reviews[review.ID] = review
	return &review, nil
}

func (f *fakeRepo) ListReviewsByTutor(_ context.Context, tutorID uuid.UUID) ([]Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Review
	for _, rv := range f.reviews {
		if rv.TutorID == tutorID {
			out = append(out, rv)
		}
	}
	return out, nil
}

// fakeLocker serializes callers per key with a plain mutex. Blocking instead
// of failing fast keeps concurrency tests deterministic: every caller reaches
// the conditional write and the write decides the winner.
type fakeLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
