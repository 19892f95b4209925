// Package registry manages the rotation and escalation pools.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"dutyroster/internal/domain"
	"dutyroster/internal/models"
)

// Palette is the fixed color cycle assigned to operators on enrollment
// when no explicit color is given, indexed by current pool size.
var Palette = []string{
	"#1F77B4", "#FF7F0E", "#2CA02C", "#D62728", "#9467BD",
	"#8C564B", "#E377C2", "#7F7F7F", "#BCBD22", "#17BECF",
}

// FallbackColor is used for users outside the pool (e.g. override
// covers with no enrollment).
const FallbackColor = "#9E9E9E"

// Store is the persistence surface of the registry.
type Store interface {
	ListOperators(ctx context.Context) ([]models.Operator, error)
	GetOperatorByUserID(ctx context.Context, userID int64) (*models.Operator, error)
	InsertOperator(ctx context.Context, op *models.Operator) error
	DeleteOperatorAndCompact(ctx context.Context, id int64) error
	UpdateOperatorPositions(ctx context.Context, entries []models.ReorderEntry) error

	ListEscalationMembers(ctx context.Context) ([]models.EscalationMember, error)
	InsertEscalationMember(ctx context.Context, m *models.EscalationMember) error
	DeleteEscalationMemberAndCompact(ctx context.Context, id int64) error
	UpdateEscalationPositions(ctx context.Context, entries []models.ReorderEntry) error
}

// Service implements operator and escalation pool management.
type Service struct {
	store  Store
	logger zerolog.Logger
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Enroll adds a user to the rotation pool at the next position. Color
// defaults to the palette entry for the current pool size.
func (s *Service) Enroll(ctx context.Context, userID int64, color, phone string) (*models.Operator, error) {
	if _, err := s.store.GetOperatorByUserID(ctx, userID); err == nil {
		return nil, domain.Conflictf("user %d already enrolled", userID)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}

	if color == "" {
		current, err := s.store.ListOperators(ctx)
		if err != nil {
			return nil, fmt.Errorf("list operators: %w", err)
		}
		color = Palette[len(current)%len(Palette)]
	}

	op := &models.Operator{
		UserID: userID,
		Active: true,
		Color:  color,
		Phone:  phone,
	}
	if err := s.store.InsertOperator(ctx, op); err != nil {
		return nil, fmt.Errorf("enroll operator: %w", err)
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int("position", op.Position).
		Str("color", op.Color).
		Msg("operator enrolled")
	return op, nil
}

// Remove deletes an operator; remaining positions are re-compacted to
// a dense 1..N.
func (s *Service) Remove(ctx context.Context, operatorID int64) error {
	if err := s.store.DeleteOperatorAndCompact(ctx, operatorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFoundf("operator %d", operatorID)
		}
		return fmt.Errorf("remove operator: %w", err)
	}
	s.logger.Info().Int64("operator_id", operatorID).Msg("operator removed")
	return nil
}

// Reorder bulk-overwrites rotation positions. The entries are written
// as given; gaps or duplicates reflect caller intent and are not
// re-validated.
func (s *Service) Reorder(ctx context.Context, entries []models.ReorderEntry) error {
	if len(entries) == 0 {
		return domain.Validationf("reorder: no entries")
	}
	if err := s.store.UpdateOperatorPositions(ctx, entries); err != nil {
		return fmt.Errorf("reorder operators: %w", err)
	}
	s.logger.Info().Int("count", len(entries)).Msg("operators reordered")
	return nil
}

// List returns the rotation pool in position order.
func (s *Service) List(ctx context.Context) ([]models.Operator, error) {
	return s.store.ListOperators(ctx)
}

// ColorFor returns the enrolled color of a user, or FallbackColor when
// the user has none.
func (s *Service) ColorFor(ctx context.Context, userID int64) string {
	op, err := s.store.GetOperatorByUserID(ctx, userID)
	if err != nil || op.Color == "" {
		return FallbackColor
	}
	return op.Color
}

// EnrollEscalation adds a user to the escalation pool. The store also
// mirrors the membership into the user's legacy flag.
func (s *Service) EnrollEscalation(ctx context.Context, userID int64, color, phone string) (*models.EscalationMember, error) {
	members, err := s.store.ListEscalationMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list escalation members: %w", err)
	}
	for _, m := range members {
		if m.UserID == userID {
			return nil, domain.Conflictf("user %d already in escalation pool", userID)
		}
	}

	if color == "" {
		color = Palette[len(members)%len(Palette)]
	}

	m := &models.EscalationMember{
		UserID: userID,
		Active: true,
		Color:  color,
		Phone:  phone,
	}
	if err := s.store.InsertEscalationMember(ctx, m); err != nil {
		return nil, fmt.Errorf("enroll escalation member: %w", err)
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int("position", m.Position).
		Msg("escalation member enrolled")
	return m, nil
}

// RemoveEscalation deletes an escalation member; the store re-compacts
// positions and clears the legacy flag.
func (s *Service) RemoveEscalation(ctx context.Context, memberID int64) error {
	if err := s.store.DeleteEscalationMemberAndCompact(ctx, memberID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFoundf("escalation member %d", memberID)
		}
		return fmt.Errorf("remove escalation member: %w", err)
	}
	s.logger.Info().Int64("member_id", memberID).Msg("escalation member removed")
	return nil
}

// ReorderEscalation bulk-overwrites escalation positions, mirrored to
// the legacy per-user orders by the store.
func (s *Service) ReorderEscalation(ctx context.Context, entries []models.ReorderEntry) error {
	if len(entries) == 0 {
		return domain.Validationf("reorder: no entries")
	}
	if err := s.store.UpdateEscalationPositions(ctx, entries); err != nil {
		return fmt.Errorf("reorder escalation members: %w", err)
	}
	return nil
}

// ListEscalation returns the escalation pool in position order.
func (s *Service) ListEscalation(ctx context.Context) ([]models.EscalationMember, error) {
	return s.store.ListEscalationMembers(ctx)
}
