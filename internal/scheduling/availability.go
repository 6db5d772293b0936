package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutorhive/scheduling/internal/config"
	redisclient "github.com/tutorhive/scheduling/internal/redis"
)

// AvailabilityService owns recurring rules and the slots generated from them.
//
// Rule writes for one tutor and weekday are serialized through the locker so
// that two concurrent creations cannot both pass the overlap check before
// either commits.
type AvailabilityService struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	logger *zap.Logger
	now    func() time.Time
}

func NewAvailabilityService(repo Repository, locker redisclient.Locker, cfg config.Config, logger *zap.Logger) *AvailabilityService {
	return &AvailabilityService{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func validateWindow(weekday Weekday, start, end int) error {
	if !weekday.Valid() {
		return validationf("unknown weekday %q", weekday)
	}
	if start < 0 || start >= 24*60 {
		return validationf("start minute %d out of range", start)
	}
	if end < 0 || end >= 24*60 {
		return validationf("end minute %d out of range", end)
	}
	if start >= end {
		return validationf("start minute must be before end minute")
	}
	return nil
}

// checkRuleOverlap rejects a candidate [start, end) that overlaps any of the
// tutor's active rules on the same weekday. Two half-open intervals [a,b) and
// [c,d) overlap iff a < d && c < b, so exactly touching windows pass.
func (s *AvailabilityService) checkRuleOverlap(ctx context.Context, tutorID uuid.UUID, weekday Weekday, start, end int, excludeRuleID uuid.UUID) error {
	rules, err := s.repo.ListActiveRules(ctx, tutorID, weekday)
	if err != nil {
		return fmt.Errorf("list active rules: %w", err)
	}

	for _, r := range rules {
		if r.ID == excludeRuleID {
			continue
		}
		if start < r.EndMinute && r.StartMinute < end {
			return ErrRuleOverlap
		}
	}
	return nil
}

// CreateRule validates and stores a new rule, then pre-generates its slots
// over the configured horizon.
func (s *AvailabilityService) CreateRule(ctx context.Context, tutorID uuid.UUID, weekday Weekday, startMinute, endMinute int) (*AvailabilityRule, error) {
	if err := validateWindow(weekday, startMinute, endMinute); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetTutorByID(ctx, tutorID); err != nil {
		return nil, err
	}

	var created *AvailabilityRule

	err := s.locker.WithLock(ctx, redisclient.RuleLockKey(tutorID, string(weekday)), func(lockCtx context.Context) error {
		if err := s.checkRuleOverlap(lockCtx, tutorID, weekday, startMinute, endMinute, uuid.Nil); err != nil {
			return err
		}

		rule, err := s.repo.CreateRule(lockCtx, AvailabilityRule{
			TutorID:     tutorID,
			Weekday:     weekday,
			StartMinute: startMinute,
			EndMinute:   endMinute,
		})
		if err != nil {
			return fmt.Errorf("create rule: %w", err)
		}

		created = rule
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrRulesBusy
		}
		return nil, err
	}

	if _, err := s.GenerateSlotsForRule(ctx, *created); err != nil {
		return nil, fmt.Errorf("generate slots: %w", err)
	}

	return created, nil
}

// UpdateRule applies partial changes to a rule. When the time window or
// weekday changes, the future AVAILABLE slots of the old window are dropped
// and the new window regenerated; future BOOKED slots that the new window
// would strand make the update fail instead.
func (s *AvailabilityService) UpdateRule(ctx context.Context, tutorID, ruleID uuid.UUID, update RuleUpdate) (*AvailabilityRule, error) {
	rule, err := s.repo.GetRuleByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule.TutorID != tutorID {
		return nil, fmt.Errorf("%w: rule belongs to another tutor", ErrUnauthorized)
	}

	next := *rule
	if update.Weekday != nil {
		next.Weekday = *update.Weekday
	}
	if update.StartMinute != nil {
		next.StartMinute = *update.StartMinute
	}
	if update.EndMinute != nil {
		next.EndMinute = *update.EndMinute
	}
	if update.IsActive != nil {
		next.IsActive = *update.IsActive
	}

	if err := validateWindow(next.Weekday, next.StartMinute, next.EndMinute); err != nil {
		return nil, err
	}

	windowChanged := next.Weekday != rule.Weekday ||
		next.StartMinute != rule.StartMinute ||
		next.EndMinute != rule.EndMinute

	var updated *AvailabilityRule

	err = s.locker.WithLock(ctx, redisclient.RuleLockKey(tutorID, string(next.Weekday)), func(lockCtx context.Context) error {
		if err := s.checkRuleOverlap(lockCtx, tutorID, next.Weekday, next.StartMinute, next.EndMinute, rule.ID); err != nil {
			return err
		}

		if windowChanged {
			if err := s.checkStrandedBookings(lockCtx, *rule, next); err != nil {
				return err
			}
		}

		u, err := s.repo.UpdateRule(lockCtx, next)
		if err != nil {
			return fmt.Errorf("update rule: %w", err)
		}

		updated = u
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrRulesBusy
		}
		return nil, err
	}

	if windowChanged {
		if err := s.repo.DeleteFutureAvailableSlots(ctx, rule.ID, s.now()); err != nil {
			return nil, err
		}
	}

	if updated.IsActive {
		if _, err := s.GenerateSlotsForRule(ctx, *updated); err != nil {
			return nil, fmt.Errorf("generate slots: %w", err)
		}
	}

	return updated, nil
}

// checkStrandedBookings fails when the rule still has future BOOKED slots
// that the new window would no longer cover. Surfacing the conflict beats
// silently keeping a booked slot outside the advertised availability.
func (s *AvailabilityService) checkStrandedBookings(ctx context.Context, old, next AvailabilityRule) error {
	booked, err := s.repo.ListFutureBookedSlots(ctx, old.ID, s.now())
	if err != nil {
		return fmt.Errorf("list future booked slots: %w", err)
	}
	if len(booked) == 0 {
		return nil
	}

	if next.Weekday != old.Weekday {
		return ErrBookedSlots
	}
	for _, slot := range booked {
		if slot.StartMinute < next.StartMinute || slot.EndMinute > next.EndMinute {
			return ErrBookedSlots
		}
	}
	return nil
}

// SetRuleActive toggles the soft-disable flag. Activation re-runs the overlap
// check (the rule may have started conflicting while inactive) and
// regenerates slots; deactivation keeps existing slots but they stop being
// offered because slot listings join on active rules.
func (s *AvailabilityService) SetRuleActive(ctx context.Context, tutorID, ruleID uuid.UUID, active bool) (*AvailabilityRule, error) {
	rule, err := s.repo.GetRuleByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if rule.TutorID != tutorID {
		return nil, fmt.Errorf("%w: rule belongs to another tutor", ErrUnauthorized)
	}
	if rule.IsActive == active {
		return rule, nil
	}

	next := *rule
	next.IsActive = active

	var updated *AvailabilityRule

	err = s.locker.WithLock(ctx, redisclient.RuleLockKey(tutorID, string(rule.Weekday)), func(lockCtx context.Context) error {
		if active {
			if err := s.checkRuleOverlap(lockCtx, tutorID, rule.Weekday, rule.StartMinute, rule.EndMinute, rule.ID); err != nil {
				return err
			}
		}

		u, err := s.repo.UpdateRule(lockCtx, next)
		if err != nil {
			return fmt.Errorf("toggle rule: %w", err)
		}

		updated = u
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrRulesBusy
		}
		return nil, err
	}

	if active {
		if _, err := s.GenerateSlotsForRule(ctx, *updated); err != nil {
			return nil, fmt.Errorf("generate slots: %w", err)
		}
	}

	return updated, nil
}

// DeleteRule hard-deletes a rule and its slots. Rules whose slots still carry
// live bookings cannot be deleted; deactivate instead.
func (s *AvailabilityService) DeleteRule(ctx context.Context, tutorID, ruleID uuid.UUID) error {
	rule, err := s.repo.GetRuleByID(ctx, ruleID)
	if err != nil {
		return err
	}
	if rule.TutorID != tutorID {
		return fmt.Errorf("%w: rule belongs to another tutor", ErrUnauthorized)
	}

	live, err := s.repo.HasLiveBookingsForRule(ctx, ruleID)
	if err != nil {
		return err
	}
	if live {
		return ErrRuleHasBookings
	}

	return s.repo.DeleteRule(ctx, ruleID)
}

func (s *AvailabilityService) ListTutorRules(ctx context.Context, tutorID uuid.UUID) ([]AvailabilityRule, error) {
	if _, err := s.repo.GetTutorByID(ctx, tutorID); err != nil {
		return nil, err
	}
	return s.repo.ListRulesByTutor(ctx, tutorID)
}

func (s *AvailabilityService) ListAvailableSlots(ctx context.Context, tutorID uuid.UUID) ([]AvailabilitySlot, error) {
	if _, err := s.repo.GetTutorByID(ctx, tutorID); err != nil {
		return nil, err
	}
	return s.repo.ListAvailableSlotsByTutor(ctx, tutorID, s.now())
}

// GenerateSlotsForRule expands a rule into AVAILABLE slots for every matching
// date within the horizon. Safe to re-run: duplicate (rule, date, start)
// rows are skipped by the insert itself, not by a pre-check.
func (s *AvailabilityService) GenerateSlotsForRule(ctx context.Context, rule AvailabilityRule) (int, error) {
	weekday, ok := rule.Weekday.Time()
	if !ok {
		return 0, validationf("unknown weekday %q", rule.Weekday)
	}

	windows := partitionWindow(rule.StartMinute, rule.EndMinute)

	var slots []AvailabilitySlot
	for _, date := range datesForWeekday(s.now(), weekday, s.cfg.SlotHorizonDays) {
		for _, w := range windows {
			slots = append(slots, AvailabilitySlot{
				RuleID:      rule.ID,
				TutorID:     rule.TutorID,
				Date:        date,
				StartMinute: w.Start,
				EndMinute:   w.End,
				Status:      SlotAvailable,
			})
		}
	}

	inserted, err := s.repo.InsertSlots(ctx, slots)
	if err != nil {
		return inserted, fmt.Errorf("insert slots: %w", err)
	}

	s.logger.Debug("generated slots",
		zap.String("rule_id", rule.ID.String()),
		zap.Int("candidates", len(slots)),
		zap.Int("inserted", inserted),
	)

	return inserted, nil
}

// GenerateSlotsForAllActiveRules keeps the rolling horizon filled. Called by
// the slot worker.
func (s *AvailabilityService) GenerateSlotsForAllActiveRules(ctx context.Context) error {
	rules, err := s.repo.ListAllActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("list active rules: %w", err)
	}

	total := 0
	for _, rule := range rules {
		inserted, err := s.GenerateSlotsForRule(ctx, rule)
		if err != nil {
			s.logger.Error("slot generation failed for rule",
				zap.String("rule_id", rule.ID.String()),
				zap.Error(err),
			)
			continue
		}
		total += inserted
	}

	s.logger.Info("slot generation pass complete",
		zap.Int("rules", len(rules)),
		zap.Int("slots_inserted", total),
	)

	return nil
}
