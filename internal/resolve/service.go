// Package resolve answers "who is on call" for any instant and renders
// the month calendar grid. Day overrides always win over the weekly
// schedule.
package resolve

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"dutyroster/internal/domain"
	"dutyroster/internal/models"
	"dutyroster/internal/rotation"
)

// Store is the read surface the resolver needs.
type Store interface {
	GetScheduleForInstant(ctx context.Context, t time.Time) (*models.Schedule, error)
	GetSchedulesByRange(ctx context.Context, start, end time.Time) ([]models.Schedule, error)
	GetActiveOverrideForDate(ctx context.Context, date time.Time) (*models.DayOverride, error)
	GetActiveOverridesByRange(ctx context.Context, start, end time.Time) ([]models.DayOverride, error)
}

// ColorSource maps a user to their calendar color.
type ColorSource interface {
	ColorFor(ctx context.Context, userID int64) string
}

// OnCall is the result of resolving a single instant.
type OnCall struct {
	UserID     int64  `json:"user_id"`
	Overridden bool   `json:"overridden"`
	ScheduleID int64  `json:"schedule_id,omitempty"`
	OverrideID int64  `json:"override_id,omitempty"`
	Color      string `json:"color"`
}

// Service resolves on-call assignments.
type Service struct {
	store  Store
	colors ColorSource
	logger zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

func NewService(store Store, colors ColorSource, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		colors: colors,
		logger: logger.With().Str("component", "resolve").Logger(),
	}
}

// UseRedisCache configures optional Redis caching for instant lookups.
func (s *Service) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	s.redis = redisClient
	s.cacheTTL = ttl
}

// OnCallAt resolves the instant t. An active day override for t's date
// takes precedence over the weekly schedule. ErrNotFound means nobody
// is on call.
func (s *Service) OnCallAt(ctx context.Context, t time.Time) (*OnCall, error) {
	day := models.DateOnly(t)

	key := ""
	if s.redis != nil && s.cacheTTL > 0 {
		key = cacheKey(s.cacheGen(ctx), t, day)
		var cached OnCall
		if s.readCache(ctx, key, &cached) {
			return &cached, nil
		}
	}

	result, err := s.resolve(ctx, t, day)
	if err != nil {
		return nil, err
	}
	result.Color = s.colors.ColorFor(ctx, result.UserID)
	if key != "" {
		s.writeCache(ctx, key, result)
	}
	return result, nil
}

const cacheGenKey = "oncall:gen"

// InvalidateCache advances the cache generation, orphaning every cached
// resolution at once. Stale entries expire with their TTL. Mutation
// paths call this whenever the effective assignment may have changed.
func (s *Service) InvalidateCache(ctx context.Context) {
	if s.redis == nil || s.cacheTTL <= 0 {
		return
	}
	if err := s.redis.Incr(ctx, cacheGenKey).Err(); err != nil {
		s.logger.Debug().Err(err).Msg("cache invalidation failed")
	}
}

func (s *Service) cacheGen(ctx context.Context) string {
	gen, err := s.redis.Get(ctx, cacheGenKey).Result()
	if err != nil {
		return "0"
	}
	return gen
}

// cacheKey buckets an instant by date and handover segment. A handover
// day changes operator at 19:00 and again at 07:00, so instants on
// either side of those hours must never share an entry.
func cacheKey(gen string, t, day time.Time) string {
	return fmt.Sprintf("oncall:%s:%s:%d", gen, day.Format("2006-01-02"), daySegment(t))
}

func daySegment(t time.Time) int {
	switch h := t.Hour(); {
	case h < rotation.HandoverEndHour:
		return 0
	case h < rotation.HandoverStartHour:
		return 1
	default:
		return 2
	}
}

func (s *Service) resolve(ctx context.Context, t, day time.Time) (*OnCall, error) {
	o, err := s.store.GetActiveOverrideForDate(ctx, day)
	switch {
	case err == nil:
		return &OnCall{UserID: o.CoverUserID, Overridden: true, OverrideID: o.ID}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("lookup day override: %w", err)
	}

	schedule, err := s.store.GetScheduleForInstant(ctx, t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("nobody on call at %s", t.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("lookup schedule: %w", err)
	}
	return &OnCall{UserID: schedule.UserID, ScheduleID: schedule.ID}, nil
}

func (s *Service) readCache(ctx context.Context, key string, out any) bool {
	if s.redis == nil || s.cacheTTL <= 0 {
		return false
	}
	val, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (s *Service) writeCache(ctx context.Context, key string, val any) {
	if s.redis == nil || s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}
