// Package google publishes approved rosters to a shared Google
// spreadsheet, one tab per batch.
package google

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"dutyroster/internal/models"
)

// NameResolver maps a user id to a display name for the sheet.
type NameResolver func(userID int64) string

// SheetsService pushes roster tabs to a single spreadsheet.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	logger        zerolog.Logger
}

// NewSheetsService authenticates with a service-account credentials
// file and binds to one spreadsheet.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string, logger zerolog.Logger) (*SheetsService, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsService{
		service:       svc,
		spreadsheetID: spreadsheetID,
		logger:        logger.With().Str("component", "sheets").Logger(),
	}, nil
}

// PublishBatch writes the batch's weekly assignments into a tab named
// after its date range. The tab is created on first publish and
// overwritten from A1 on every later one, so re-publishing after a
// manual change refreshes the sheet in place.
func (s *SheetsService) PublishBatch(ctx context.Context, batch *models.ScheduleBatch, schedules []models.Schedule, nameOf NameResolver) error {
	title := tabTitle(batch)

	if err := s.ensureTab(ctx, title); err != nil {
		return err
	}

	values := make([][]interface{}, 0, len(schedules)+1)
	values = append(values, []interface{}{"Week", "From", "To", "On call", "Manually changed"})
	for i := range schedules {
		values = append(values, scheduleRowValues(&schedules[i], nameOf(schedules[i].UserID)))
	}

	vr := &sheets.ValueRange{Values: values}
	_, err := s.service.Spreadsheets.Values.
		Update(s.spreadsheetID, fmt.Sprintf("'%s'!A1", title), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write roster tab: %w", err)
	}

	s.logger.Info().
		Int64("batch_id", batch.ID).
		Str("tab", title).
		Int("weeks", len(schedules)).
		Msg("roster published")
	return nil
}

func (s *SheetsService) ensureTab(ctx context.Context, title string) error {
	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet metadata: %w", err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == title {
			return nil
		}
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("create roster tab: %w", err)
	}
	return nil
}

func tabTitle(batch *models.ScheduleBatch) string {
	return fmt.Sprintf("%s - %s",
		batch.StartDate.Format("2006-01-02"),
		batch.EndDate.Format("2006-01-02"))
}

func scheduleRowValues(sch *models.Schedule, name string) []interface{} {
	changed := ""
	if sch.Override {
		changed = "yes"
	}
	return []interface{}{
		sch.WeekNumber,
		sch.WeekStart.Format("2006-01-02 15:04"),
		sch.WeekEnd.Format("2006-01-02 15:04"),
		name,
		changed,
	}
}
