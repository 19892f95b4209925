// Package notify is the notification seam of the rotation service.
// Workflows emit typed events to recipient user ids; delivery,
// formatting and templating live behind the Notifier interface.
package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Event identifies what happened; adapters decide how to word it.
type Event string

const (
	EventBatchPendingApproval Event = "batch_pending_approval"
	EventScheduleGenerated    Event = "schedule_generated"
	EventBatchRejected        Event = "batch_rejected"
	EventSwapRequested        Event = "swap_requested"
	EventSwapApproved         Event = "swap_approved"
	EventSwapRejected         Event = "swap_rejected"
	EventScheduleModified     Event = "schedule_modified"
	EventEscalationOverride   Event = "escalation_override"
	EventDayOverrideCreated   Event = "day_override_created"
	EventDutyReminder         Event = "duty_reminder"
)

// Notifier delivers an event to recipients. Implementations must be
// safe for concurrent use; failures are reported, never retried by the
// calling workflow.
type Notifier interface {
	Notify(ctx context.Context, event Event, recipients []int64, payload map[string]string) error
}

// LogNotifier writes notifications to the log. Used as the default
// adapter when no transport is configured, and in tests.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, event Event, recipients []int64, payload map[string]string) error {
	n.logger.Info().
		Str("event", string(event)).
		Ints64("recipients", recipients).
		Interface("payload", payload).
		Msg("notification")
	return nil
}
