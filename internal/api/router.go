package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tutorhive/scheduling/internal/scheduling"
)

type RouterConfig struct {
	Availability *scheduling.AvailabilityService
	Bookings     *scheduling.BookingService
	Reviews      *scheduling.ReviewService
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       *zap.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Availability
	r.Post("/tutors/{tutorID}/availability", createRuleHandler(cfg.Availability))
	r.Get("/tutors/{tutorID}/availability", listRulesHandler(cfg.Availability))
	r.Patch("/availability/{ruleID}", updateRuleHandler(cfg.Availability))
	r.Post("/availability/{ruleID}/toggle", toggleRuleHandler(cfg.Availability))
	r.Delete("/availability/{ruleID}", deleteRuleHandler(cfg.Availability))
	r.Get("/tutors/{tutorID}/slots", listSlotsHandler(cfg.Availability))

	// Bookings
	r.Post("/bookings", createBookingHandler(cfg.Bookings))
	r.Get("/bookings/{bookingID}", getBookingHandler(cfg.Bookings))
	r.Patch("/bookings/{bookingID}/status", updateBookingStatusHandler(cfg.Bookings))
	r.Delete("/bookings/{bookingID}", deleteBookingHandler(cfg.Bookings))
	r.Get("/students/{studentID}/bookings", listStudentBookingsHandler(cfg.Bookings))
	r.Get("/tutors/{tutorID}/bookings", listTutorBookingsHandler(cfg.Bookings))

	// Reviews
	r.Post("/bookings/{bookingID}/review", createReviewHandler(cfg.Reviews))
	r.Get("/tutors/{tutorID}/reviews", listTutorReviewsHandler(cfg.Reviews))

	return r
}
