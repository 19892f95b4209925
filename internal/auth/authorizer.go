// Package auth centralizes the privilege checks of the rotation
// workflows. Each operation queries the Authorizer once instead of
// re-deriving membership from per-user flags.
package auth

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"dutyroster/internal/models"
)

// Authorizer answers the privilege questions the workflows ask.
type Authorizer interface {
	// IsEscalationMember reports whether the user holds escalation
	// privileges (advance-notice bypass, approval rights).
	IsEscalationMember(ctx context.Context, userID int64) (bool, error)

	// CanApproveBatch reports whether the user may decide a pending
	// batch: the configured approver, or any escalation member.
	CanApproveBatch(ctx context.Context, userID int64, cfg models.WorkflowConfig) (bool, error)

	// CanDecideSwap reports whether the user may decide a swap request:
	// its target operator, or any escalation member.
	CanDecideSwap(ctx context.Context, userID, targetID int64) (bool, error)
}

// Store is the persistence surface the adapter reads.
type Store interface {
	IsEscalationMember(ctx context.Context, userID int64) (bool, error)
	CountActiveEscalationMembers(ctx context.Context) (int, error)
	HasLegacyEscalationFlag(ctx context.Context, userID int64) (bool, error)
}

// Service is the store-backed Authorizer. The dedicated escalation pool
// is authoritative; the legacy per-user flag is consulted only when the
// pool is empty, for backward compatibility with old deployments.
type Service struct {
	store  Store
	logger zerolog.Logger
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

func (s *Service) IsEscalationMember(ctx context.Context, userID int64) (bool, error) {
	member, err := s.store.IsEscalationMember(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check escalation pool: %w", err)
	}
	if member {
		return true, nil
	}

	count, err := s.store.CountActiveEscalationMembers(ctx)
	if err != nil {
		return false, fmt.Errorf("count escalation pool: %w", err)
	}
	if count > 0 {
		// Pool is populated; legacy flags are ignored.
		return false, nil
	}

	legacy, err := s.store.HasLegacyEscalationFlag(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check legacy flag: %w", err)
	}
	if legacy {
		s.logger.Debug().Int64("user_id", userID).Msg("escalation granted via legacy flag")
	}
	return legacy, nil
}

func (s *Service) CanApproveBatch(ctx context.Context, userID int64, cfg models.WorkflowConfig) (bool, error) {
	if cfg.ApproverID != 0 && userID == cfg.ApproverID {
		return true, nil
	}
	return s.IsEscalationMember(ctx, userID)
}

func (s *Service) CanDecideSwap(ctx context.Context, userID, targetID int64) (bool, error) {
	if userID == targetID {
		return true, nil
	}
	return s.IsEscalationMember(ctx, userID)
}
