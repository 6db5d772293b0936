package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/tutorhive/scheduling/internal/scheduling"
)

func createBookingHandler(svc *scheduling.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, ok := principalID(r)
		if !ok {
			writeError(w, http.StatusForbidden, "forbidden", "missing acting user")
			return
		}

		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		tutorID, err := uuid.Parse(req.TutorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_tutor_id", "tutor_id must be a valid UUID")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		booking, err := svc.CreateBooking(r.Context(), studentID, tutorID, slotID, req.Price)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse(booking))
	}
}

func getBookingHandler(svc *scheduling.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, ok := pathUUID(r, "bookingID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "bookingID must be a valid UUID")
			return
		}

		booking, err := svc.GetBooking(r.Context(), bookingID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(booking))
	}
}

func updateBookingStatusHandler(svc *scheduling.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, ok := pathUUID(r, "bookingID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "bookingID must be a valid UUID")
			return
		}

		var req UpdateBookingStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		var cancelledBy *scheduling.CancelActor
		if req.CancelledBy != nil {
			actor := scheduling.CancelActor(*req.CancelledBy)
			cancelledBy = &actor
		}

		booking, err := svc.UpdateBookingStatus(r.Context(), bookingID, scheduling.BookingStatus(req.Status), cancelledBy)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(booking))
	}
}

func deleteBookingHandler(svc *scheduling.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, ok := pathUUID(r, "bookingID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "bookingID must be a valid UUID")
			return
		}

		if err := svc.DeleteBooking(r.Context(), bookingID); err != nil {
			writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listStudentBookingsHandler(svc *scheduling.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, ok := pathUUID(r, "studentID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_student_id", "studentID must be a valid UUID")
			return
		}

		filter := scheduling.BookingFilter(r.URL.Query().Get("filter"))

		bookings, err := svc.ListBookingsForStudent(r.Context(), studentID, filter)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := make([]BookingResponse, 0, len(bookings))
		for i := range bookings {
			resp = append(resp, toBookingDetailResponse(&bookings[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listTutorBookingsHandler(svc *scheduling.BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tutorID, ok := pathUUID(r, "tutorID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_tutor_id", "tutorID must be a valid UUID")
			return
		}

		bookings, err := svc.ListBookingsForTutor(r.Context(), tutorID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := make([]BookingResponse, 0, len(bookings))
		for i := range bookings {
			resp = append(resp, toBookingDetailResponse(&bookings[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
