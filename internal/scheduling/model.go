package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// SlotGranularityMinutes is the fixed length of a generated slot. Windows that do
// not divide evenly get a shorter final slot.
const SlotGranularityMinutes = 30

type Weekday string

const (
	Sunday    Weekday = "SUNDAY"
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
)

var weekdays = map[Weekday]time.Weekday{
	Sunday:    time.Sunday,
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
}

// Time returns the time package's weekday for w. The second result is false when
// w is not one of the seven enumerated values.
func (w Weekday) Time() (time.Weekday, bool) {
	d, ok := weekdays[w]
	return d, ok
}

func (w Weekday) Valid() bool {
	_, ok := weekdays[w]
	return ok
}

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBooked    SlotStatus = "BOOKED"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Terminal reports whether no transition may leave s.
func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

type CancelActor string

const (
	CancelledByStudent CancelActor = "STUDENT"
	CancelledByTutor   CancelActor = "TUTOR"
	CancelledByAdmin   CancelActor = "ADMIN"
)

func (a CancelActor) Valid() bool {
	switch a {
	case CancelledByStudent, CancelledByTutor, CancelledByAdmin:
		return true
	}
	return false
}

type Tutor struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Bio       *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Student struct {
	ID        uuid.UUID
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilityRule is a tutor's recurring weekly window: one weekday plus a
// half-open [StartMinute, EndMinute) range of the day.
type AvailabilityRule struct {
	ID          uuid.UUID
	TutorID     uuid.UUID
	Weekday     Weekday
	StartMinute int
	EndMinute   int
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RuleUpdate carries the partial fields of an UpdateRule call. Nil means
// "leave unchanged".
type RuleUpdate struct {
	Weekday     *Weekday
	StartMinute *int
	EndMinute   *int
	IsActive    *bool
}

// AvailabilitySlot is a concrete dated sub-interval generated from a rule.
type AvailabilitySlot struct {
	ID          uuid.UUID
	RuleID      uuid.UUID
	TutorID     uuid.UUID
	Date        time.Time // midnight UTC of the slot's calendar date
	StartMinute int
	EndMinute   int
	Status      SlotStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Booking struct {
	ID          uuid.UUID
	StudentID   uuid.UUID
	TutorID     uuid.UUID
	SlotID      uuid.UUID
	Price       float64
	Status      BookingStatus
	CancelledBy *CancelActor
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BookingDetail is a booking hydrated with its slot for list responses and the
// upcoming/past filter.
type BookingDetail struct {
	Booking
	Slot *AvailabilitySlot
}

type BookingFilter string

const (
	FilterUpcoming BookingFilter = "upcoming"
	FilterPast     BookingFilter = "past"
	FilterAll      BookingFilter = "all"
)

func (f BookingFilter) Valid() bool {
	switch f {
	case FilterUpcoming, FilterPast, FilterAll:
		return true
	}
	return false
}

// Review is created at most once per completed booking and is immutable after.
type Review struct {
	ID        uuid.UUID
	BookingID uuid.UUID
	StudentID uuid.UUID
	TutorID   uuid.UUID
	Rating    int
	Comment   string
	CreatedAt time.Time
}
