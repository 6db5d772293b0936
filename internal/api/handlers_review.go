package api

import (
	"encoding/json"
	"net/http"

	"github.com/tutorhive/scheduling/internal/scheduling"
)

func createReviewHandler(svc *scheduling.ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, ok := pathUUID(r, "bookingID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "bookingID must be a valid UUID")
			return
		}

		studentID, ok := principalID(r)
		if !ok {
			writeError(w, http.StatusForbidden, "forbidden", "missing acting user")
			return
		}

		var req CreateReviewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		review, err := svc.CreateReview(r.Context(), studentID, bookingID, req.Rating, req.Comment)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toReviewResponse(review))
	}
}

func listTutorReviewsHandler(svc *scheduling.ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tutorID, ok := pathUUID(r, "tutorID")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_tutor_id", "tutorID must be a valid UUID")
			return
		}

		reviews, err := svc.ListReviewsForTutor(r.Context(), tutorID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := make([]ReviewResponse, 0, len(reviews))
		for i := range reviews {
			resp = append(resp, toReviewResponse(&reviews[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
