package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"dutyroster/internal/models"
)

// Store is the read surface the exporter needs.
type Store interface {
	GetSchedulesByRange(ctx context.Context, start, end time.Time) ([]models.Schedule, error)
	GetActiveOverridesByRange(ctx context.Context, start, end time.Time) ([]models.DayOverride, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Service writes the roster for a date range as an xlsx workbook with
// one sheet of weekly assignments and one of day overrides.
type Service struct {
	store     Store
	newWriter func() ExcelWriter
	logger    zerolog.Logger
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		newWriter: NewExcelizeWriter,
		logger:    logger.With().Str("component", "export").Logger(),
	}
}

// WriteRoster renders schedules and overrides overlapping [start, end)
// into w.
func (s *Service) WriteRoster(ctx context.Context, w io.Writer, start, end time.Time) error {
	schedules, err := s.store.GetSchedulesByRange(ctx, start, end)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	overrides, err := s.store.GetActiveOverridesByRange(ctx, start, end)
	if err != nil {
		return fmt.Errorf("load overrides: %w", err)
	}

	xw := s.newWriter()
	defer xw.Close()

	if err := xw.AddSheet("Weeks"); err != nil {
		return err
	}
	if err := xw.WriteHeader([]string{"Week", "From", "To", "Operator", "Manually changed", "Changed by"}); err != nil {
		return err
	}
	for _, sch := range schedules {
		modifiedBy := ""
		if sch.ModifiedBy != nil {
			modifiedBy = s.displayName(ctx, *sch.ModifiedBy)
		}
		row := []interface{}{
			sch.WeekNumber,
			sch.WeekStart.Format("2006-01-02 15:04"),
			sch.WeekEnd.Format("2006-01-02 15:04"),
			s.displayName(ctx, sch.UserID),
			sch.Override,
			modifiedBy,
		}
		if err := xw.WriteRow(row); err != nil {
			return err
		}
	}

	if err := xw.AddSheet("Day overrides"); err != nil {
		return err
	}
	if err := xw.WriteHeader([]string{"Date", "Covers for", "Covered by", "Reason"}); err != nil {
		return err
	}
	for _, o := range overrides {
		row := []interface{}{
			o.Date.Format("2006-01-02"),
			s.displayName(ctx, o.OriginalUserID),
			s.displayName(ctx, o.CoverUserID),
			o.Reason,
		}
		if err := xw.WriteRow(row); err != nil {
			return err
		}
	}

	s.logger.Info().
		Int("weeks", len(schedules)).
		Int("overrides", len(overrides)).
		Msg("roster exported")
	return xw.Save(w)
}

// displayName falls back to the numeric id for users the service has
// never seen.
func (s *Service) displayName(ctx context.Context, userID int64) string {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("lookup user for export")
		}
		return fmt.Sprintf("user %d", userID)
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return fmt.Sprintf("user %d", userID)
}
