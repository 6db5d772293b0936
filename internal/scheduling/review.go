package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReviewService creates at most one review per completed booking. Uniqueness
// is enforced by the insert itself (same claim-once shape as the slot claim),
// so two concurrent submissions cannot both land.
type ReviewService struct {
	repo   Repository
	logger *zap.Logger
}

func NewReviewService(repo Repository, logger *zap.Logger) *ReviewService {
	return &ReviewService{
		repo:   repo,
		logger: logger,
	}
}

func (s *ReviewService) CreateReview(ctx context.Context, studentID, bookingID uuid.UUID, rating int, comment string) (*Review, error) {
	if rating < 1 || rating > 5 {
		return nil, validationf("rating must be between 1 and 5")
	}

	booking, err := s.repo.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.StudentID != studentID {
		return nil, fmt.Errorf("%w: booking belongs to another student", ErrUnauthorized)
	}
	if booking.Status != BookingCompleted {
		return nil, validationf("only completed bookings can be reviewed")
	}

	review, err := s.repo.CreateReview(ctx, Review{
		BookingID: bookingID,
		StudentID: studentID,
		TutorID:   booking.TutorID,
		Rating:    rating,
		Comment:   comment,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("review created",
		zap.String("review_id", review.ID.String()),
		zap.String("booking_id", bookingID.String()),
	)

	return review, nil
}

func (s *ReviewService) ListReviewsForTutor(ctx context.Context, tutorID uuid.UUID) ([]Review, error) {
	if _, err := s.repo.GetTutorByID(ctx, tutorID); err != nil {
		return nil, err
	}
	return s.repo.ListReviewsByTutor(ctx, tutorID)
}
