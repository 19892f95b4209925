package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"dutyroster/internal/metrics"
	"dutyroster/internal/models"
)

// UserDirectory resolves user ids to deliverable identities. Identity
// storage itself is an external collaborator.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// TelegramSender is the part of the bot API the notifier uses.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramConfig tunes delivery pacing and retries.
type TelegramConfig struct {
	// MessagesPerSecond bounds the send rate. Default: 20.
	MessagesPerSecond float64
	// Burst is the limiter burst. Default: 30.
	Burst int
	// RetryDelays are waited between delivery attempts.
	RetryDelays []time.Duration
}

func DefaultTelegramConfig() TelegramConfig {
	return TelegramConfig{
		MessagesPerSecond: 20,
		Burst:             30,
		RetryDelays:       []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// TelegramNotifier delivers events as Telegram messages, rate limited
// and with bounded retry on transient API errors.
type TelegramNotifier struct {
	sender    TelegramSender
	directory UserDirectory
	limiter   *rate.Limiter
	retries   []time.Duration
	logger    zerolog.Logger
}

func NewTelegramNotifier(sender TelegramSender, directory UserDirectory, cfg TelegramConfig, logger zerolog.Logger) *TelegramNotifier {
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 30
	}
	return &TelegramNotifier{
		sender:    sender,
		directory: directory,
		limiter:   rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.Burst),
		retries:   cfg.RetryDelays,
		logger:    logger.With().Str("component", "telegram_notifier").Logger(),
	}
}

func (n *TelegramNotifier) Notify(ctx context.Context, event Event, recipients []int64, payload map[string]string) error {
	correlationID := uuid.NewString()
	text := formatEvent(event, payload)

	var firstErr error
	for _, userID := range recipients {
		if err := n.deliver(ctx, userID, text); err != nil {
			metrics.IncNotification("failed")
			n.logger.Error().Err(err).
				Str("event", string(event)).
				Str("correlation_id", correlationID).
				Int64("user_id", userID).
				Msg("notification delivery failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.IncNotification("sent")
		n.logger.Debug().
			Str("event", string(event)).
			Str("correlation_id", correlationID).
			Int64("user_id", userID).
			Msg("notification sent")
	}
	return firstErr
}

func (n *TelegramNotifier) deliver(ctx context.Context, userID int64, text string) error {
	user, err := n.directory.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve user %d: %w", userID, err)
	}
	if user.ChatID == 0 {
		return fmt.Errorf("user %d has no chat id", userID)
	}

	msg := tgbotapi.NewMessage(user.ChatID, text)

	var lastErr error
	for attempt := 0; attempt <= len(n.retries); attempt++ {
		if attempt > 0 {
			delay := n.retries[attempt-1]
			var tgErr *tgbotapi.Error
			if errors.As(lastErr, &tgErr) && tgErr.RetryAfter > 0 {
				delay = time.Duration(tgErr.RetryAfter) * time.Second
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}

		if _, lastErr = n.sender.Send(msg); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("send to chat %d: %w", user.ChatID, lastErr)
}

func formatEvent(event Event, payload map[string]string) string {
	switch event {
	case EventBatchPendingApproval:
		return fmt.Sprintf("A new on-call rotation (%s weeks from %s) is awaiting your approval.",
			payload["week_count"], payload["start_date"])
	case EventScheduleGenerated:
		return fmt.Sprintf("The on-call rotation starting %s has been approved and published.",
			payload["start_date"])
	case EventBatchRejected:
		return fmt.Sprintf("The on-call rotation starting %s was rejected: %s",
			payload["start_date"], payload["reason"])
	case EventSwapRequested:
		return fmt.Sprintf("%s asked you to cover the on-call week starting %s.",
			payload["requester"], payload["week_start"])
	case EventSwapApproved:
		return fmt.Sprintf("Your swap request for the week starting %s was approved.",
			payload["week_start"])
	case EventSwapRejected:
		return fmt.Sprintf("Your swap request for the week starting %s was rejected: %s",
			payload["week_start"], payload["reason"])
	case EventScheduleModified:
		return fmt.Sprintf("The on-call week starting %s is now assigned to %s.",
			payload["week_start"], payload["new_operator"])
	case EventEscalationOverride:
		return fmt.Sprintf("An escalation member reassigned your on-call week starting %s.",
			payload["week_start"])
	case EventDayOverrideCreated:
		return fmt.Sprintf("Coverage for %s was overridden: %s takes the day.",
			payload["date"], payload["cover"])
	case EventDutyReminder:
		return fmt.Sprintf("Reminder: your on-call week starts %s.", payload["week_start"])
	default:
		return string(event)
	}
}
