// Package override implements manual weekly reassignments and the
// single-day coverage exception layer.
package override

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dutyroster/internal/auth"
	"dutyroster/internal/domain"
	"dutyroster/internal/metrics"
	"dutyroster/internal/models"
	"dutyroster/internal/notify"
)

// Store is the persistence surface of the override layer.
type Store interface {
	GetSchedule(ctx context.Context, id int64) (*models.Schedule, error)
	UpdateScheduleOperator(ctx context.Context, scheduleID, newUserID, modifiedBy int64) error
	GetScheduleForInstant(ctx context.Context, t time.Time) (*models.Schedule, error)
	CreateOverrideReplacingActive(ctx context.Context, o *models.DayOverride) error
	DeactivateOverride(ctx context.Context, id int64) error
}

// CacheInvalidator drops cached on-call resolutions after a mutation.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context)
}

// Service applies manual schedule changes and day overrides.
type Service struct {
	store    Store
	authz    auth.Authorizer
	notifier notify.Notifier
	cache    CacheInvalidator
	cfg      models.WorkflowConfig
	logger   zerolog.Logger
}

func NewService(store Store, authz auth.Authorizer, notifier notify.Notifier, cfg models.WorkflowConfig, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		authz:    authz,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With().Str("component", "override").Logger(),
	}
}

// SetCacheInvalidator hooks up resolution-cache invalidation.
func (s *Service) SetCacheInvalidator(c CacheInvalidator) {
	s.cache = c
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateCache(ctx)
	}
}

// UpdateSchedule reassigns a weekly slot. Escalation members bypass the
// advance-notice rule; everyone else is bound by it. The previously
// assigned operator is told explicitly when escalation steps in.
func (s *Service) UpdateSchedule(ctx context.Context, scheduleID, newUserID, actingUserID int64, reason string) (*models.Schedule, error) {
	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("schedule %d", scheduleID)
		}
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	now := time.Now()
	if !schedule.WeekEnd.After(now) {
		return nil, domain.Validationf("week ending %s is in the past", schedule.WeekEnd.Format("2006-01-02"))
	}

	escalation, err := s.authz.IsEscalationMember(ctx, actingUserID)
	if err != nil {
		return nil, fmt.Errorf("check escalation membership: %w", err)
	}
	if !escalation {
		if minNotice := time.Duration(s.cfg.MinDaysForEdit) * 24 * time.Hour; schedule.WeekStart.Sub(now) < minNotice {
			return nil, domain.Validationf("week starts in less than %d days", s.cfg.MinDaysForEdit)
		}
	}

	previousUserID := schedule.UserID
	if err := s.store.UpdateScheduleOperator(ctx, scheduleID, newUserID, actingUserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("schedule %d", scheduleID)
		}
		return nil, fmt.Errorf("update schedule: %w", err)
	}

	schedule.UserID = newUserID
	schedule.Override = true
	schedule.ModifiedBy = &actingUserID
	metrics.IncOverride("schedule")
	s.invalidate(ctx)

	s.logger.Info().
		Int64("schedule_id", scheduleID).
		Int64("previous_user", previousUserID).
		Int64("new_user", newUserID).
		Int64("acting_user", actingUserID).
		Bool("escalation", escalation).
		Str("reason", reason).
		Msg("schedule reassigned")

	payload := map[string]string{
		"week_start":   schedule.WeekStart.Format("2006-01-02"),
		"new_operator": fmt.Sprintf("%d", newUserID),
	}
	if err := s.notifier.Notify(ctx, notify.EventScheduleModified, []int64{previousUserID, newUserID}, payload); err != nil {
		s.logger.Error().Err(err).Msg("schedule modified notification failed")
	}
	if escalation {
		if err := s.notifier.Notify(ctx, notify.EventEscalationOverride, []int64{previousUserID}, payload); err != nil {
			s.logger.Error().Err(err).Msg("escalation override notification failed")
		}
	}
	return schedule, nil
}

// CreateDayOverride layers a single-day coverage exception over the
// weekly schedule. Only escalation members may create one; a day with
// no underlying weekly schedule cannot be overridden. Any override
// already active for the date is deactivated, never deleted.
func (s *Service) CreateDayOverride(ctx context.Context, date time.Time, coverUserID, actingUserID int64, reason string) (*models.DayOverride, error) {
	escalation, err := s.authz.IsEscalationMember(ctx, actingUserID)
	if err != nil {
		return nil, fmt.Errorf("check escalation membership: %w", err)
	}
	if !escalation {
		return nil, domain.Forbiddenf("user %d cannot create day overrides", actingUserID)
	}

	day := models.DateOnly(date)
	schedule, err := s.store.GetScheduleForInstant(ctx, day)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("no weekly schedule covers %s", day.Format("2006-01-02"))
		}
		return nil, fmt.Errorf("resolve schedule for date: %w", err)
	}

	o := &models.DayOverride{
		Date:           day,
		OriginalUserID: schedule.UserID,
		CoverUserID:    coverUserID,
		Reason:         reason,
		CreatedBy:      actingUserID,
	}
	if err := s.store.CreateOverrideReplacingActive(ctx, o); err != nil {
		return nil, fmt.Errorf("create day override: %w", err)
	}
	metrics.IncOverride("day")
	s.invalidate(ctx)

	s.logger.Info().
		Time("date", day).
		Int64("original_user", o.OriginalUserID).
		Int64("cover_user", coverUserID).
		Int64("acting_user", actingUserID).
		Msg("day override created")

	if err := s.notifier.Notify(ctx, notify.EventDayOverrideCreated,
		[]int64{o.OriginalUserID, coverUserID}, map[string]string{
			"date":  day.Format("2006-01-02"),
			"cover": fmt.Sprintf("%d", coverUserID),
		}); err != nil {
		s.logger.Error().Err(err).Msg("day override notification failed")
	}
	return o, nil
}

// RemoveDayOverride soft-deletes an override; history is retained.
func (s *Service) RemoveDayOverride(ctx context.Context, id int64) error {
	if err := s.store.DeactivateOverride(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFoundf("day override %d", id)
		}
		return fmt.Errorf("remove day override: %w", err)
	}
	s.invalidate(ctx)
	s.logger.Info().Int64("override_id", id).Msg("day override deactivated")
	return nil
}
