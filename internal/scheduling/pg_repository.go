package scheduling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanTutor(row pgx.Row) (*Tutor, error) {
	var t Tutor
	var bio *string

	err := row.Scan(&t.ID, &t.Name, &t.Email, &bio, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTutorNotFound
		}
		return nil, classify(err)
	}

	t.Bio = bio
	return &t, nil
}

func scanStudent(row pgx.Row) (*Student, error) {
	var s Student

	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, classify(err)
	}

	return &s, nil
}

func scanRule(row pgx.Row) (*AvailabilityRule, error) {
	var r AvailabilityRule

	err := row.Scan(
		&r.ID,
		&r.TutorID,
		&r.Weekday,
		&r.StartMinute,
		&r.EndMinute,
		&r.IsActive,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, classify(err)
	}

	return &r, nil
}

func scanSlot(row pgx.Row) (*AvailabilitySlot, error) {
	var s AvailabilitySlot

	err := row.Scan(
		&s.ID,
		&s.RuleID,
		&s.TutorID,
		&s.Date,
		&s.StartMinute,
		&s.EndMinute,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, classify(err)
	}

	return &s, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var cancelledBy *CancelActor

	err := row.Scan(
		&b.ID,
		&b.StudentID,
		&b.TutorID,
		&b.SlotID,
		&b.Price,
		&b.Status,
		&cancelledBy,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, classify(err)
	}

	b.CancelledBy = cancelledBy
	return &b, nil
}

func scanReview(row pgx.Row) (*Review, error) {
	var rv Review

	err := row.Scan(
		&rv.ID,
		&rv.BookingID,
		&rv.StudentID,
		&rv.TutorID,
		&rv.Rating,
		&rv.Comment,
		&rv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classify(err)
	}

	return &rv, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// isTransient reports whether err is an infrastructure failure the caller may
// retry: timeouts, connection-level errors, resource exhaustion, shutdowns,
// serialization failures and deadlocks.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
			strings.HasPrefix(pgErr.Code, "57"), // operator intervention
			pgErr.Code == "40001",               // serialization failure
			pgErr.Code == "40P01":               // deadlock detected
			return true
		}
	}

	return false
}

// classify wraps transient driver failures in ErrUnavailable so callers can
// tell retryable infrastructure trouble from everything else. Non-transient
// errors pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// Tutors / students

func (r *PgRepository) GetTutorByID(ctx context.Context, id uuid.UUID) (*Tutor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, bio, created_at, updated_at
		FROM tutors
		WHERE id = $1
	`, id)
	return scanTutor(row)
}

func (r *PgRepository) GetStudentByID(ctx context.Context, id uuid.UUID) (*Student, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM students
		WHERE id = $1
	`, id)
	return scanStudent(row)
}

// Availability rules

const ruleColumns = `id, tutor_id, weekday, start_minute, end_minute, is_active, created_at, updated_at`

func (r *PgRepository) CreateRule(ctx context.Context, rule AvailabilityRule) (*AvailabilityRule, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_rules (id, tutor_id, weekday, start_minute, end_minute, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, true, now(), now())
		RETURNING `+ruleColumns+`
	`, uuid.New(), rule.TutorID, rule.Weekday, rule.StartMinute, rule.EndMinute)

	return scanRule(row)
}

func (r *PgRepository) GetRuleByID(ctx context.Context, id uuid.UUID) (*AvailabilityRule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE id = $1
	`, id)
	return scanRule(row)
}

func (r *PgRepository) ListRulesByTutor(ctx context.Context, tutorID uuid.UUID) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE tutor_id = $1
		ORDER BY weekday, start_minute
	`, tutorID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	return collectRules(rows)
}

func (r *PgRepository) ListActiveRules(ctx context.Context, tutorID uuid.UUID, weekday Weekday) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE tutor_id = $1 AND weekday = $2 AND is_active
		ORDER BY start_minute
	`, tutorID, weekday)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	return collectRules(rows)
}

func (r *PgRepository) ListAllActiveRules(ctx context.Context) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM availability_rules
		WHERE is_active
		ORDER BY tutor_id, weekday, start_minute
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	return collectRules(rows)
}

func collectRules(rows pgx.Rows) ([]AvailabilityRule, error) {
	var rules []AvailabilityRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return rules, nil
}

func (r *PgRepository) UpdateRule(ctx context.Context, rule AvailabilityRule) (*AvailabilityRule, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE availability_rules
		SET weekday = $2,
		    start_minute = $3,
		    end_minute = $4,
		    is_active = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+ruleColumns+`
	`, rule.ID, rule.Weekday, rule.StartMinute, rule.EndMinute, rule.IsActive)

	return scanRule(row)
}

func (r *PgRepository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Slots

const slotColumns = `id, rule_id, tutor_id, date, start_minute, end_minute, status, created_at, updated_at`

func (r *PgRepository) InsertSlots(ctx context.Context, slots []AvailabilitySlot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, s := range slots {
		batch.Queue(`
			INSERT INTO availability_slots (id, rule_id, tutor_id, date, start_minute, end_minute, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (rule_id, date, start_minute) DO NOTHING
		`, uuid.New(), s.RuleID, s.TutorID, s.Date, s.StartMinute, s.EndMinute, SlotAvailable)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range slots {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert slot: %w", classify(err))
		}
		inserted += int(tag.RowsAffected())
	}

	return inserted, nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListAvailableSlotsByTutor(ctx context.Context, tutorID uuid.UUID, from time.Time) ([]AvailabilitySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.rule_id, s.tutor_id, s.date, s.start_minute, s.end_minute, s.status, s.created_at, s.updated_at
		FROM availability_slots s
		JOIN availability_rules r ON r.id = s.rule_id
		WHERE s.tutor_id = $1
		  AND s.status = $2
		  AND r.is_active
		  AND s.date >= $3
		ORDER BY s.date, s.start_minute
	`, tutorID, SlotAvailable, dateOnly(from))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	return collectSlots(rows)
}

func (r *PgRepository) ListFutureBookedSlots(ctx context.Context, ruleID uuid.UUID, from time.Time) ([]AvailabilitySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE rule_id = $1
		  AND status = $2
		  AND date >= $3
		ORDER BY date, start_minute
	`, ruleID, SlotBooked, dateOnly(from))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	return collectSlots(rows)
}

func collectSlots(rows pgx.Rows) ([]AvailabilitySlot, error) {
	var slots []AvailabilitySlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *slot)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return slots, nil
}

func (r *PgRepository) DeleteFutureAvailableSlots(ctx context.Context, ruleID uuid.UUID, from time.Time) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM availability_slots
		WHERE rule_id = $1
		  AND status = $2
		  AND date >= $3
	`, ruleID, SlotAvailable, dateOnly(from))
	if err != nil {
		return fmt.Errorf("delete future available slots: %w", classify(err))
	}
	return nil
}

// Bookings

const bookingColumns = `id, student_id, tutor_id, slot_id, price, status, cancelled_by, created_at, updated_at`

// CreateBookingWithClaim runs the claim and the booking insert in one
// transaction. The conditional UPDATE is the at-most-one-claim guarantee:
// under concurrent callers exactly one sees a row flip, everyone else gets
// ErrSlotUnavailable and the transaction writes nothing.
func (r *PgRepository) CreateBookingWithClaim(ctx context.Context, booking Booking) (*Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE availability_slots
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, booking.SlotID, SlotBooked, SlotAvailable)
	if err != nil {
		return nil, fmt.Errorf("claim slot: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrSlotUnavailable
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO bookings (id, student_id, tutor_id, slot_id, price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+bookingColumns+`
	`, uuid.New(), booking.StudentID, booking.TutorID, booking.SlotID, booking.Price, BookingPending)

	created, err := scanBooking(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim transaction: %w", classify(err))
	}

	return created, nil
}

func (r *PgRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

// UpdateBookingStatus flips the booking conditionally on the expected prior
// status. Cancelling also hands the slot back, in the same transaction, so a
// CANCELLED booking can never be left sitting on a BOOKED slot.
func (r *PgRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus, cancelledBy *CancelActor) (*Booking, error) {
	const casUpdate = `
		UPDATE bookings
		SET status = $2,
		    cancelled_by = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
		RETURNING ` + bookingColumns

	if to != BookingCancelled {
		return scanBooking(r.pool.QueryRow(ctx, casUpdate, id, to, cancelledBy, from))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cancel transaction: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	cancelled, err := scanBooking(tx.QueryRow(ctx, casUpdate, id, to, cancelledBy, from))
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE availability_slots
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, cancelled.SlotID, SlotAvailable)
	if err != nil {
		return nil, fmt.Errorf("release slot: %w", classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel transaction: %w", classify(err))
	}

	return cancelled, nil
}

// DeleteBooking removes the booking and releases its slot in one transaction,
// so the slot cannot end up BOOKED with no booking behind it.
func (r *PgRepository) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	var slotID uuid.UUID
	err = tx.QueryRow(ctx, `DELETE FROM bookings WHERE id = $1 RETURNING slot_id`, id).Scan(&slotID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBookingNotFound
		}
		return fmt.Errorf("delete booking: %w", classify(err))
	}

	_, err = tx.Exec(ctx, `
		UPDATE availability_slots
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, slotID, SlotAvailable)
	if err != nil {
		return fmt.Errorf("release slot: %w", classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete transaction: %w", classify(err))
	}

	return nil
}

const bookingDetailQuery = `
	SELECT b.id, b.student_id, b.tutor_id, b.slot_id, b.price, b.status, b.cancelled_by, b.created_at, b.updated_at,
	       s.id, s.rule_id, s.tutor_id, s.date, s.start_minute, s.end_minute, s.status, s.created_at, s.updated_at
	FROM bookings b
	JOIN availability_slots s ON s.id = b.slot_id
`

func (r *PgRepository) ListBookingsByStudent(ctx context.Context, studentID uuid.UUID, filter BookingFilter, now time.Time) ([]BookingDetail, error) {
	now = now.UTC()
	today := dateOnly(now)
	curMinute := minuteOfDay(now)

	query := bookingDetailQuery + ` WHERE b.student_id = $1`
	args := []any{studentID}

	switch filter {
	case FilterUpcoming:
		query += `
		  AND b.status IN ($2, $3)
		  AND (s.date > $4 OR (s.date = $4 AND s.end_minute > $5))`
		args = append(args, BookingPending, BookingConfirmed, today, curMinute)
	case FilterPast:
		query += `
		  AND (b.status IN ($2, $3)
		       OR s.date < $4
		       OR (s.date = $4 AND s.end_minute <= $5))`
		args = append(args, BookingCompleted, BookingCancelled, today, curMinute)
	}

	query += ` ORDER BY s.date, s.start_minute`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	return collectBookingDetails(rows)
}

func (r *PgRepository) ListBookingsByTutor(ctx context.Context, tutorID uuid.UUID) ([]BookingDetail, error) {
	rows, err := r.pool.Query(ctx, bookingDetailQuery+`
		WHERE b.tutor_id = $1
		ORDER BY b.created_at DESC
	`, tutorID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	return collectBookingDetails(rows)
}

func collectBookingDetails(rows pgx.Rows) ([]BookingDetail, error) {
	var details []BookingDetail
	for rows.Next() {
		var d BookingDetail
		var slot AvailabilitySlot
		var cancelledBy *CancelActor

		err := rows.Scan(
			&d.ID, &d.StudentID, &d.TutorID, &d.SlotID, &d.Price, &d.Status, &cancelledBy, &d.CreatedAt, &d.UpdatedAt,
			&slot.ID, &slot.RuleID, &slot.TutorID, &slot.Date, &slot.StartMinute, &slot.EndMinute, &slot.Status, &slot.CreatedAt, &slot.UpdatedAt,
		)
		if err != nil {
			return nil, classify(err)
		}

		d.CancelledBy = cancelledBy
		d.Slot = &slot
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return details, nil
}

func (r *PgRepository) HasLiveBookingsForRule(ctx context.Context, ruleID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM bookings b
			JOIN availability_slots s ON s.id = b.slot_id
			WHERE s.rule_id = $1
			  AND b.status IN ($2, $3)
		)
	`, ruleID, BookingPending, BookingConfirmed).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check live bookings for rule: %w", classify(err))
	}
	return exists, nil
}

// Reviews

func (r *PgRepository) CreateReview(ctx context.Context, review Review) (*Review, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO reviews (id, booking_id, student_id, tutor_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, booking_id, student_id, tutor_id, rating, comment, created_at
	`, uuid.New(), review.BookingID, review.StudentID, review.TutorID, review.Rating, review.Comment)

	created, err := scanReview(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrReviewExists
		}
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) ListReviewsByTutor(ctx context.Context, tutorID uuid.UUID) ([]Review, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, booking_id, student_id, tutor_id, rating, comment, created_at
		FROM reviews
		WHERE tutor_id = $1
		ORDER BY created_at DESC
	`, tutorID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return reviews, nil
}
