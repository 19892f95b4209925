// Package swap implements the peer-to-peer week exchange workflow.
package swap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dutyroster/internal/auth"
	"dutyroster/internal/database"
	"dutyroster/internal/domain"
	"dutyroster/internal/metrics"
	"dutyroster/internal/models"
	"dutyroster/internal/notify"
)

// Store is the persistence surface of the swap workflow.
type Store interface {
	GetSchedule(ctx context.Context, id int64) (*models.Schedule, error)
	GetOperatorByUserID(ctx context.Context, userID int64) (*models.Operator, error)
	HasPendingSwapForSchedule(ctx context.Context, scheduleID int64) (bool, error)
	CreateSwapRequest(ctx context.Context, r *models.SwapRequest) error
	GetSwapRequest(ctx context.Context, id int64) (*models.SwapRequest, error)
	ApproveSwap(ctx context.Context, r *models.SwapRequest, approverID int64, respondedAt time.Time) error
	RejectSwap(ctx context.Context, id int64, reason string, respondedAt time.Time) error
}

// CreateParams describes a new swap request. ExchangeScheduleID is nil
// for a one-way coverage request.
type CreateParams struct {
	RequesterID        int64
	ScheduleID         int64
	TargetUserID       int64
	ExchangeScheduleID *int64
	Reason             string
}

// CacheInvalidator drops cached on-call resolutions after a mutation.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context)
}

// Service runs the swap request state machine.
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
		logger:   logger.With().Str("component", "swap").Logger(),
	}
}

// SetCacheInvalidator hooks up resolution-cache invalidation.
func (s *Service) SetCacheInvalidator(c CacheInvalidator) {
	s.cache = c
}

// Create validates and records a pending swap request, then notifies
// the target operator. The advance-notice rule binds the requester
// regardless of escalation membership.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.SwapRequest, error) {
	schedule, err := s.store.GetSchedule(ctx, p.ScheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("schedule %d", p.ScheduleID)
		}
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	if schedule.UserID != p.RequesterID {
		return nil, domain.Forbiddenf("user %d does not own schedule %d", p.RequesterID, p.ScheduleID)
	}

	now := time.Now()
	if !schedule.WeekEnd.After(now) {
		return nil, domain.Validationf("week ending %s is in the past", schedule.WeekEnd.Format("2006-01-02"))
	}
	if minNotice := time.Duration(s.cfg.MinDaysForSwap) * 24 * time.Hour; schedule.WeekStart.Sub(now) < minNotice {
		return nil, domain.Validationf("week starts in less than %d days", s.cfg.MinDaysForSwap)
	}

	target, err := s.store.GetOperatorByUserID(ctx, p.TargetUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Validationf("target user %d is not an operator", p.TargetUserID)
		}
		return nil, fmt.Errorf("load target operator: %w", err)
	}
	if !target.Active {
		return nil, domain.Validationf("target operator %d is inactive", p.TargetUserID)
	}

	if p.ExchangeScheduleID != nil {
		exchange, err := s.store.GetSchedule(ctx, *p.ExchangeScheduleID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domain.NotFoundf("exchange schedule %d", *p.ExchangeScheduleID)
			}
			return nil, fmt.Errorf("load exchange schedule: %w", err)
		}
		if exchange.UserID != p.TargetUserID {
			return nil, domain.Validationf("exchange schedule %d is not assigned to target %d",
				*p.ExchangeScheduleID, p.TargetUserID)
		}
	}

	pending, err := s.store.HasPendingSwapForSchedule(ctx, p.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("check pending swaps: %w", err)
	}
	if pending {
		return nil, domain.Conflictf("schedule %d already has a pending swap request", p.ScheduleID)
	}

	req := &models.SwapRequest{
		ScheduleID:         p.ScheduleID,
		ExchangeScheduleID: p.ExchangeScheduleID,
		RequesterID:        p.RequesterID,
		TargetID:           p.TargetUserID,
		Status:             models.SwapPending,
		Reason:             p.Reason,
		RequestedAt:        now,
	}
	if err := s.store.CreateSwapRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("create swap request: %w", err)
	}
	metrics.IncSwapEvent("requested")

	s.logger.Info().
		Int64("request_id", req.ID).
		Int64("requester_id", p.RequesterID).
		Int64("target_id", p.TargetUserID).
		Int64("schedule_id", p.ScheduleID).
		Msg("swap requested")

	if err := s.notifier.Notify(ctx, notify.EventSwapRequested, []int64{p.TargetUserID}, map[string]string{
		"requester":  fmt.Sprintf("%d", p.RequesterID),
		"week_start": schedule.WeekStart.Format("2006-01-02"),
	}); err != nil {
		s.logger.Error().Err(err).Msg("swap request notification failed")
	}
	return req, nil
}

// Approve performs the swap: the original week goes to the target and,
// for a two-way exchange, the exchange week returns to the requester.
// Only the target operator or an escalation member may approve.
func (s *Service) Approve(ctx context.Context, requestID, approverID int64) (*models.SwapRequest, error) {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.SwapPending {
		return nil, domain.Conflictf("swap request %d is %s, not pending", requestID, req.Status)
	}

	allowed, err := s.authz.CanDecideSwap(ctx, approverID, req.TargetID)
	if err != nil {
		return nil, fmt.Errorf("authorize swap decision: %w", err)
	}
	if !allowed {
		return nil, domain.Forbiddenf("user %d cannot decide swap request %d", approverID, requestID)
	}

	now := time.Now()
	if err := s.store.ApproveSwap(ctx, req, approverID, now); err != nil {
		if errors.Is(err, database.ErrStaleState) {
			return nil, domain.Conflictf("swap request %d already decided", requestID)
		}
		return nil, fmt.Errorf("approve swap: %w", err)
	}

	req.Status = models.SwapApproved
	req.RespondedAt = &now
	metrics.IncSwapEvent("approved")
	if s.cache != nil {
		s.cache.InvalidateCache(ctx)
	}

	s.logger.Info().
		Int64("request_id", requestID).
		Int64("approver_id", approverID).
		Msg("swap approved")

	schedule, err := s.store.GetSchedule(ctx, req.ScheduleID)
	weekStart := ""
	if err == nil {
		weekStart = schedule.WeekStart.Format("2006-01-02")
	}
	if err := s.notifier.Notify(ctx, notify.EventSwapApproved, []int64{req.RequesterID}, map[string]string{
		"week_start": weekStart,
	}); err != nil {
		s.logger.Error().Err(err).Msg("swap approval notification failed")
	}
	return req, nil
}

// Reject declines a pending request without touching any schedule.
func (s *Service) Reject(ctx context.Context, requestID, rejecterID int64, reason string) (*models.SwapRequest, error) {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.SwapPending {
		return nil, domain.Conflictf("swap request %d is %s, not pending", requestID, req.Status)
	}

	allowed, err := s.authz.CanDecideSwap(ctx, rejecterID, req.TargetID)
	if err != nil {
		return nil, fmt.Errorf("authorize swap decision: %w", err)
	}
	if !allowed {
		return nil, domain.Forbiddenf("user %d cannot decide swap request %d", rejecterID, requestID)
	}

	now := time.Now()
	if err := s.store.RejectSwap(ctx, requestID, reason, now); err != nil {
		if errors.Is(err, database.ErrStaleState) {
			return nil, domain.Conflictf("swap request %d already decided", requestID)
		}
		return nil, fmt.Errorf("reject swap: %w", err)
	}

	req.Status = models.SwapRejected
	req.RejectReason = reason
	req.RespondedAt = &now
	metrics.IncSwapEvent("rejected")

	s.logger.Info().
		Int64("request_id", requestID).
		Int64("rejecter_id", rejecterID).
		Str("reason", reason).
		Msg("swap rejected")

	weekStart := ""
	if schedule, err := s.store.GetSchedule(ctx, req.ScheduleID); err == nil {
		weekStart = schedule.WeekStart.Format("2006-01-02")
	}
	if err := s.notifier.Notify(ctx, notify.EventSwapRejected, []int64{req.RequesterID}, map[string]string{
		"week_start": weekStart,
		"reason":     reason,
	}); err != nil {
		s.logger.Error().Err(err).Msg("swap rejection notification failed")
	}
	return req, nil
}

func (s *Service) getRequest(ctx context.Context, requestID int64) (*models.SwapRequest, error) {
	req, err := s.store.GetSwapRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("swap request %d", requestID)
		}
		return nil, fmt.Errorf("load swap request: %w", err)
	}
	return req, nil
}
