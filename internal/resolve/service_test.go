package resolve

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dutyroster/internal/domain"
	"dutyroster/internal/models"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetScheduleForInstant(ctx context.Context, t time.Time) (*models.Schedule, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *mockStore) GetSchedulesByRange(ctx context.Context, start, end time.Time) ([]models.Schedule, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Schedule), args.Error(1)
}

func (m *mockStore) GetActiveOverrideForDate(ctx context.Context, date time.Time) (*models.DayOverride, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DayOverride), args.Error(1)
}

func (m *mockStore) GetActiveOverridesByRange(ctx context.Context, start, end time.Time) ([]models.DayOverride, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DayOverride), args.Error(1)
}

type mockColors struct {
	mock.Mock
}

func (m *mockColors) ColorFor(ctx context.Context, userID int64) string {
	return m.Called(ctx, userID).String(0)
}

func newService(store *mockStore, colors *mockColors) *Service {
	return NewService(store, colors, zerolog.New(io.Discard))
}

func TestOnCallAtOverrideWins(t *testing.T) {
	store := new(mockStore)
	colors := new(mockColors)
	svc := newService(store, colors)
	ctx := context.Background()

	at := time.Date(2026, 3, 6, 14, 0, 0, 0, time.UTC)
	store.On("GetActiveOverrideForDate", ctx, models.DateOnly(at)).
		Return(&models.DayOverride{ID: 3, CoverUserID: 20, Active: true}, nil)
	colors.On("ColorFor", ctx, int64(20)).Return("#9E9E9E")

	got, err := svc.OnCallAt(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.UserID)
	assert.True(t, got.Overridden)
	assert.Equal(t, int64(3), got.OverrideID)
	store.AssertNotCalled(t, "GetScheduleForInstant", mock.Anything, mock.Anything)
}

func TestOnCallAtWeeklySchedule(t *testing.T) {
	store := new(mockStore)
	colors := new(mockColors)
	svc := newService(store, colors)
	ctx := context.Background()

	at := time.Date(2026, 3, 6, 14, 0, 0, 0, time.UTC)
	store.On("GetActiveOverrideForDate", ctx, models.DateOnly(at)).Return(nil, sql.ErrNoRows)
	store.On("GetScheduleForInstant", ctx, at).
		Return(&models.Schedule{ID: 50, UserID: 10}, nil)
	colors.On("ColorFor", ctx, int64(10)).Return("#4CAF50")

	got, err := svc.OnCallAt(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.UserID)
	assert.False(t, got.Overridden)
	assert.Equal(t, int64(50), got.ScheduleID)
	assert.Equal(t, "#4CAF50", got.Color)
}

func TestOnCallAtNobody(t *testing.T) {
	store := new(mockStore)
	svc := newService(store, new(mockColors))
	ctx := context.Background()

	at := time.Date(2026, 3, 6, 14, 0, 0, 0, time.UTC)
	store.On("GetActiveOverrideForDate", ctx, mock.Anything).Return(nil, sql.ErrNoRows)
	store.On("GetScheduleForInstant", ctx, at).Return(nil, sql.ErrNoRows)

	_, err := svc.OnCallAt(ctx, at)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCacheKeySegmentsHandoverDay(t *testing.T) {
	// Handover Wednesday: the outgoing operator holds until 07:00 and
	// the incoming one takes over at 19:00.
	day := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	morning := cacheKey("0", day.Add(6*time.Hour), day)
	midday := cacheKey("0", day.Add(12*time.Hour), day)
	evening := cacheKey("0", day.Add(20*time.Hour), day)

	assert.NotEqual(t, morning, midday)
	assert.NotEqual(t, midday, evening)
	assert.NotEqual(t, morning, evening)

	// Instants within one segment share the entry.
	assert.Equal(t, midday, cacheKey("0", day.Add(18*time.Hour), day))

	// Advancing the generation orphans every prior key.
	assert.NotEqual(t, morning, cacheKey("1", day.Add(6*time.Hour), day))
}

func TestRenderMonthGrid(t *testing.T) {
	store := new(mockStore)
	colors := new(mockColors)
	svc := newService(store, colors)
	ctx := context.Background()

	// March 2026 starts on a Sunday, so the grid runs from Monday
	// February 23 through Sunday April 5, six full weeks.
	weekStart := time.Date(2026, 3, 4, 19, 0, 0, 0, time.UTC)
	schedules := []models.Schedule{
		{ID: 1, UserID: 10, WeekStart: weekStart, WeekEnd: weekStart.AddDate(0, 0, 7).Add(-12 * time.Hour)},
		{ID: 2, UserID: 11, WeekStart: weekStart.AddDate(0, 0, 7), WeekEnd: weekStart.AddDate(0, 0, 14).Add(-12 * time.Hour)},
	}
	overrides := []models.DayOverride{
		{ID: 3, Date: time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), CoverUserID: 20, Active: true},
	}
	store.On("GetSchedulesByRange", ctx, mock.Anything, mock.Anything).Return(schedules, nil)
	store.On("GetActiveOverridesByRange", ctx, mock.Anything, mock.Anything).Return(overrides, nil)
	colors.On("ColorFor", ctx, int64(10)).Return("#4CAF50")
	colors.On("ColorFor", ctx, int64(11)).Return("#2196F3")
	colors.On("ColorFor", ctx, int64(20)).Return("#9E9E9E")

	days, err := svc.RenderMonth(ctx, 2026, time.March)
	require.NoError(t, err)
	require.Len(t, days, 42)

	assert.Equal(t, time.Monday, days[0].Date.Weekday())
	assert.False(t, days[0].InMonth) // February 23
	assert.True(t, days[6].InMonth)  // March 1 closes the first row

	byDate := make(map[string]models.CalendarDay, len(days))
	for _, d := range days {
		byDate[d.Date.Format("2006-01-02")] = d
	}

	// Plain in-week day.
	thu := byDate["2026-03-05"]
	assert.Equal(t, int64(10), thu.UserID)
	assert.Equal(t, "#4CAF50", thu.Color)
	assert.False(t, thu.Overridden)

	// Overridden day shows the cover user and no handover markers.
	fri := byDate["2026-03-06"]
	assert.Equal(t, int64(20), fri.UserID)
	assert.True(t, fri.Overridden)
	assert.False(t, fri.IsOnCallStart)
	assert.False(t, fri.IsOnCallEnd)

	// Handover Wednesday belongs to the outgoing operator until the
	// morning, and carries both markers.
	wed := byDate["2026-03-11"]
	assert.Equal(t, int64(10), wed.UserID)
	assert.True(t, wed.IsOnCallEnd)
	assert.True(t, wed.IsOnCallStart)

	// First Wednesday has no outgoing week, start marker only.
	firstWed := byDate["2026-03-04"]
	assert.Equal(t, int64(0), firstWed.UserID)
	assert.True(t, firstWed.IsOnCallStart)
	assert.False(t, firstWed.IsOnCallEnd)
}
