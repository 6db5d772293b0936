package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/tutorhive/scheduling/internal/scheduling"
)

type CreateRuleRequest struct {
	Weekday     string `json:"weekday"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
}

type UpdateRuleRequest struct {
	Weekday     *string `json:"weekday,omitempty"`
	StartMinute *int    `json:"start_minute,omitempty"`
	EndMinute   *int    `json:"end_minute,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

type ToggleRuleRequest struct {
	IsActive bool `json:"is_active"`
}

type RuleResponse struct {
	ID          uuid.UUID `json:"id"`
	TutorID     uuid.UUID `json:"tutor_id"`
	Weekday     string    `json:"weekday"`
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
	IsActive    bool      `json:"is_active"`
}

func toRuleResponse(r *scheduling.AvailabilityRule) RuleResponse {
	return RuleResponse{
		ID:          r.ID,
		TutorID:     r.TutorID,
		Weekday:     string(r.Weekday),
		StartMinute: r.StartMinute,
		EndMinute:   r.EndMinute,
		IsActive:    r.IsActive,
	}
}

type SlotResponse struct {
	ID          uuid.UUID `json:"id"`
	RuleID      uuid.UUID `json:"rule_id"`
	TutorID     uuid.UUID `json:"tutor_id"`
	Date        string    `json:"date"`
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
	Status      string    `json:"status"`
}

func toSlotResponse(s *scheduling.AvailabilitySlot) SlotResponse {
	return SlotResponse{
		ID:          s.ID,
		RuleID:      s.RuleID,
		TutorID:     s.TutorID,
		Date:        s.Date.Format("2006-01-02"),
		StartMinute: s.StartMinute,
		EndMinute:   s.EndMinute,
		Status:      string(s.Status),
	}
}

type CreateBookingRequest struct {
	TutorID string  `json:"tutor_id"`
	SlotID  string  `json:"slot_id"`
	Price   float64 `json:"price"`
}

type UpdateBookingStatusRequest struct {
	Status      string  `json:"status"`
	CancelledBy *string `json:"cancelled_by,omitempty"`
}

type BookingResponse struct {
	ID          uuid.UUID     `json:"id"`
	StudentID   uuid.UUID     `json:"student_id"`
	TutorID     uuid.UUID     `json:"tutor_id"`
	SlotID      uuid.UUID     `json:"slot_id"`
	Price       float64       `json:"price"`
	Status      string        `json:"status"`
	CancelledBy *string       `json:"cancelled_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	Slot        *SlotResponse `json:"slot,omitempty"`
}

func toBookingResponse(b *scheduling.Booking) BookingResponse {
	resp := BookingResponse{
		ID:        b.ID,
		StudentID: b.StudentID,
		TutorID:   b.TutorID,
		SlotID:    b.SlotID,
		Price:     b.Price,
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt,
	}
	if b.CancelledBy != nil {
		s := string(*b.CancelledBy)
		resp.CancelledBy = &s
	}
	return resp
}

func toBookingDetailResponse(d *scheduling.BookingDetail) BookingResponse {
	resp := toBookingResponse(&d.Booking)
	if d.Slot != nil {
		slot := toSlotResponse(d.Slot)
		resp.Slot = &slot
	}
	return resp
}

type CreateReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type ReviewResponse struct {
	ID        uuid.UUID `json:"id"`
	BookingID uuid.UUID `json:"booking_id"`
	StudentID uuid.UUID `json:"student_id"`
	TutorID   uuid.UUID `json:"tutor_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

func toReviewResponse(r *scheduling.Review) ReviewResponse {
	return ReviewResponse{
		ID:        r.ID,
		BookingID: r.BookingID,
		StudentID: r.StudentID,
		TutorID:   r.TutorID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
