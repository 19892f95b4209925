// Package remind runs the background loop that warns operators about
// their upcoming on-call week.
package remind

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dutyroster/internal/metrics"
	"dutyroster/internal/models"
	"dutyroster/internal/notify"
)

// Config holds the reminder loop tunables.
type Config struct {
	// CheckInterval is how often to look for upcoming weeks.
	// Default: 1 hour.
	CheckInterval time.Duration

	// DaysBefore is how many days before the week starts the operator
	// is reminded. Default: 2.
	DaysBefore int

	// MaxConcurrent limits parallel notification sends. Default: 10.
	MaxConcurrent int
}

// Store is the persistence surface of the reminder loop.
type Store interface {
	GetWeeksStartingBetween(ctx context.Context, from, to time.Time) ([]models.Schedule, error)
	MarkReminderSent(ctx context.Context, scheduleID int64) error
}

// Service periodically reminds operators about weeks they are about to
// take over. Each week is reminded at most once.
type Service struct {
	config   Config
	store    Store
	notifier notify.Notifier
	logger   zerolog.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewService(config Config, store Store, notifier notify.Notifier, logger zerolog.Logger) *Service {
	if config.CheckInterval == 0 {
		config.CheckInterval = time.Hour
	}
	if config.DaysBefore == 0 {
		config.DaysBefore = 2
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 10
	}
	return &Service{
		config:   config,
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "remind").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the check loop.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().
		Dur("check_interval", s.config.CheckInterval).
		Int("days_before", s.config.DaysBefore).
		Msg("reminder loop started")
}

// Stop gracefully stops the loop.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("reminder loop stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	// Run immediately on start.
	s.checkAndSend()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkAndSend()
		}
	}
}

// CheckNow runs one reminder pass synchronously.
func (s *Service) CheckNow(ctx context.Context) error {
	return s.check(ctx, time.Now())
}

func (s *Service) checkAndSend() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := s.check(ctx, time.Now()); err != nil {
		s.logger.Error().Err(err).Msg("reminder pass failed")
	}
}

func (s *Service) check(ctx context.Context, now time.Time) error {
	lookAhead := time.Duration(s.config.DaysBefore) * 24 * time.Hour
	weeks, err := s.store.GetWeeksStartingBetween(ctx, now, now.Add(lookAhead))
	if err != nil {
		return fmt.Errorf("upcoming weeks: %w", err)
	}
	if len(weeks) == 0 {
		return nil
	}
	s.logger.Debug().Int("count", len(weeks)).Msg("weeks due for reminder")

	sem := make(chan struct{}, s.config.MaxConcurrent)
	var wg sync.WaitGroup
	for _, week := range weeks {
		wg.Add(1)
		sem <- struct{}{}

		go func(w models.Schedule) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.sendReminder(ctx, w); err != nil {
				s.logger.Error().Err(err).
					Int64("schedule_id", w.ID).
					Int64("user_id", w.UserID).
					Msg("reminder failed")
			}
		}(week)
	}
	wg.Wait()
	return nil
}

func (s *Service) sendReminder(ctx context.Context, week models.Schedule) error {
	payload := map[string]string{
		"week_start": week.WeekStart.Format("2006-01-02 15:04"),
		"week_end":   week.WeekEnd.Format("2006-01-02 15:04"),
	}
	if err := s.notifier.Notify(ctx, notify.EventDutyReminder, []int64{week.UserID}, payload); err != nil {
		return err
	}
	metrics.IncNotification("reminder_sent")

	// The notification went out. A failed mark means one duplicate
	// reminder on the next pass, not a lost one.
	if err := s.store.MarkReminderSent(ctx, week.ID); err != nil {
		s.logger.Error().Err(err).Int64("schedule_id", week.ID).Msg("mark reminder sent failed")
	}
	return nil
}
