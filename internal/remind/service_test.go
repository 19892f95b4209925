package remind

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dutyroster/internal/models"
	"dutyroster/internal/notify"
)

type fakeStore struct {
	mu     sync.Mutex
	weeks  []models.Schedule
	marked []int64
	err    error
}

func (f *fakeStore) GetWeeksStartingBetween(ctx context.Context, from, to time.Time) ([]models.Schedule, error) {
	if f.err != nil {
		return nil, f.err
	}
	var due []models.Schedule
	for _, w := range f.weeks {
		if !w.WeekStart.Before(from) && w.WeekStart.Before(to) && !w.ReminderSent {
			due = append(due, w)
		}
	}
	return due, nil
}

func (f *fakeStore) MarkReminderSent(ctx context.Context, scheduleID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, scheduleID)
	for i := range f.weeks {
		if f.weeks[i].ID == scheduleID {
			f.weeks[i].ReminderSent = true
		}
	}
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[int64]int // recipient -> count
	fail bool
}

func (f *fakeNotifier) Notify(ctx context.Context, event notify.Event, recipients []int64, payload map[string]string) error {
	if f.fail {
		return errors.New("transport down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = make(map[int64]int)
	}
	for _, r := range recipients {
		f.sent[r]++
	}
	return nil
}

func week(id, userID int64, startsIn time.Duration) models.Schedule {
	start := time.Now().Add(startsIn)
	return models.Schedule{ID: id, UserID: userID, WeekStart: start, WeekEnd: start.AddDate(0, 0, 7)}
}

func TestCheckNowSendsAndMarks(t *testing.T) {
	store := &fakeStore{weeks: []models.Schedule{
		week(1, 10, 24*time.Hour),
		week(2, 11, 36*time.Hour),
		week(3, 12, 30*24*time.Hour), // far out, not due
	}}
	notifier := &fakeNotifier{}
	svc := NewService(Config{DaysBefore: 2}, store, notifier, zerolog.New(io.Discard))

	require.NoError(t, svc.CheckNow(context.Background()))

	assert.Equal(t, 1, notifier.sent[10])
	assert.Equal(t, 1, notifier.sent[11])
	assert.Zero(t, notifier.sent[12])
	assert.ElementsMatch(t, []int64{1, 2}, store.marked)
}

func TestCheckNowRemindsOnce(t *testing.T) {
	store := &fakeStore{weeks: []models.Schedule{week(1, 10, 24*time.Hour)}}
	notifier := &fakeNotifier{}
	svc := NewService(Config{DaysBefore: 2}, store, notifier, zerolog.New(io.Discard))
	ctx := context.Background()

	require.NoError(t, svc.CheckNow(ctx))
	require.NoError(t, svc.CheckNow(ctx))

	assert.Equal(t, 1, notifier.sent[10])
}

func TestCheckNowFailedSendNotMarked(t *testing.T) {
	store := &fakeStore{weeks: []models.Schedule{week(1, 10, 24*time.Hour)}}
	notifier := &fakeNotifier{fail: true}
	svc := NewService(Config{DaysBefore: 2}, store, notifier, zerolog.New(io.Discard))

	require.NoError(t, svc.CheckNow(context.Background()))
	assert.Empty(t, store.marked)
}

func TestCheckNowStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("db closed")}
	svc := NewService(Config{}, store, &fakeNotifier{}, zerolog.New(io.Discard))

	assert.Error(t, svc.CheckNow(context.Background()))
}

func TestStartStop(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(Config{CheckInterval: time.Hour}, store, &fakeNotifier{}, zerolog.New(io.Discard))

	svc.Start()
	svc.Start() // second start is a no-op
	svc.Stop()
	svc.Stop() // second stop is a no-op
}
