package resolve

import (
	"context"
	"fmt"
	"time"

	"dutyroster/internal/models"
)

// RenderMonth builds a Monday-first calendar grid for the given month.
// The grid is padded with the trailing days of the previous month and
// the leading days of the next one so every row is a full week. Each
// cell resolves at that date's midnight, with active day overrides
// winning over the weekly schedule. Handover markers are suppressed on
// overridden days.
func (s *Service) RenderMonth(ctx context.Context, year int, month time.Month) ([]models.CalendarDay, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	gridStart := first.AddDate(0, 0, -mondayOffset(first))
	gridEnd := last.AddDate(0, 0, 7-mondayOffset(last)) // exclusive, next Monday

	schedules, err := s.store.GetSchedulesByRange(ctx, gridStart, gridEnd)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	overrides, err := s.store.GetActiveOverridesByRange(ctx, gridStart, gridEnd)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}

	overrideByDate := make(map[string]*models.DayOverride, len(overrides))
	for i := range overrides {
		overrideByDate[dateKey(overrides[i].Date)] = &overrides[i]
	}

	colorCache := make(map[int64]string)
	colorOf := func(userID int64) string {
		if c, ok := colorCache[userID]; ok {
			return c
		}
		c := s.colors.ColorFor(ctx, userID)
		colorCache[userID] = c
		return c
	}

	days := make([]models.CalendarDay, 0, int(gridEnd.Sub(gridStart).Hours()/24))
	for d := gridStart; d.Before(gridEnd); d = d.AddDate(0, 0, 1) {
		cell := models.CalendarDay{Date: d, InMonth: d.Month() == month}

		if o, ok := overrideByDate[dateKey(d)]; ok {
			cell.UserID = o.CoverUserID
			cell.Overridden = true
			cell.Color = colorOf(o.CoverUserID)
			days = append(days, cell)
			continue
		}

		for i := range schedules {
			sch := &schedules[i]
			if sch.Contains(d) {
				cell.UserID = sch.UserID
				cell.Color = colorOf(sch.UserID)
				cell.IsOnCallEnd = sameDate(sch.WeekEnd, d)
			}
			if sameDate(sch.WeekStart, d) {
				cell.IsOnCallStart = true
			}
		}
		days = append(days, cell)
	}
	return days, nil
}

// mondayOffset returns how many days t is past the most recent Monday.
func mondayOffset(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
