// Package models defines the entities of the on-call rotation service.
package models

import "time"

// Operator is a person in the weekly rotation pool.
type Operator struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Position  int       `json:"position"` // 1-based rotation order
	Active    bool      `json:"active"`
	Color     string    `json:"color"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EscalationMember is a person in the elevated escalation pool.
// Structurally an Operator, kept as a separate pool: membership grants
// bypass of advance-notice rules and approval rights over swaps and
// batches.
type EscalationMember struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Position  int       `json:"position"`
	Active    bool      `json:"active"`
	Color     string    `json:"color"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is the minimal identity record the service keeps locally.
// LegacyEscalation/LegacyEscalationOrder mirror the old per-user
// escalation flags and are honored when the dedicated pool is empty.
type User struct {
	ID                    int64  `json:"id"`
	DisplayName           string `json:"display_name"`
	Email                 string `json:"email"`
	Phone                 string `json:"phone"`
	ChatID                int64  `json:"chat_id"` // notification transport address
	Active                bool   `json:"active"`
	LegacyEscalation      bool   `json:"legacy_escalation"`
	LegacyEscalationOrder int    `json:"legacy_escalation_order"`
}

// BatchStatus is the approval state of a ScheduleBatch.
type BatchStatus string

const (
	BatchPendingApproval BatchStatus = "pending_approval"
	BatchApproved        BatchStatus = "approved"
	BatchRejected        BatchStatus = "rejected"
)

// RotationPlan records the operator cycle of a batch. It is the sole
// source of truth while the batch is pending: materializing the same
// plan always yields the same schedules.
type RotationPlan struct {
	StartDate   time.Time `json:"start_date"` // normalized Wednesday 19:00
	WeekCount   int       `json:"week_count"`
	OperatorIDs []int64   `json:"operator_ids"` // user ids in rotation order
	StartIndex  int       `json:"start_index"`
}

// OperatorAt returns the user assigned to week i of the plan.
func (p *RotationPlan) OperatorAt(week int) int64 {
	return p.OperatorIDs[(p.StartIndex+week)%len(p.OperatorIDs)]
}

// ScheduleBatch is one rotation-generation request. Never deleted;
// rejected batches are retained as audit trail.
type ScheduleBatch struct {
	ID           int64        `json:"id"`
	StartDate    time.Time    `json:"start_date"`
	EndDate      time.Time    `json:"end_date"`
	WeekCount    int          `json:"week_count"`
	Plan         RotationPlan `json:"plan"`
	Status       BatchStatus  `json:"status"`
	GeneratedBy  int64        `json:"generated_by"`
	ApprovedBy   *int64       `json:"approved_by,omitempty"`
	DecidedAt    *time.Time   `json:"decided_at,omitempty"`
	RejectReason string       `json:"reject_reason,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Schedule is one materialized weekly assignment. The on-call week is
// the half-open interval [WeekStart, WeekEnd): Wednesday 19:00 through
// the next Wednesday 07:00.
type Schedule struct {
	ID           int64     `json:"id"`
	BatchID      int64     `json:"batch_id"`
	WeekStart    time.Time `json:"week_start"`
	WeekEnd      time.Time `json:"week_end"`
	WeekNumber   int       `json:"week_number"` // ISO week, Monday-first
	UserID       int64     `json:"user_id"`
	Override     bool      `json:"override"` // true once manually changed from the plan
	ModifiedBy   *int64    `json:"modified_by,omitempty"`
	ReminderSent bool      `json:"reminder_sent"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Contains reports whether the instant falls inside [WeekStart, WeekEnd).
func (s *Schedule) Contains(t time.Time) bool {
	return !t.Before(s.WeekStart) && t.Before(s.WeekEnd)
}

// StartsOn reports whether the given calendar day is the week's first day.
func (s *Schedule) StartsOn(date time.Time) bool {
	return sameDay(s.WeekStart, date)
}

// EndsOn reports whether the given calendar day is the week's hand-over day.
func (s *Schedule) EndsOn(date time.Time) bool {
	return sameDay(s.WeekEnd, date)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// SwapStatus is the state of a SwapRequest.
type SwapStatus string

const (
	SwapPending  SwapStatus = "pending"
	SwapApproved SwapStatus = "approved"
	SwapRejected SwapStatus = "rejected"
)

// SwapRequest is a peer-to-peer proposal to hand off or exchange a
// weekly assignment. ExchangeScheduleID is set only for two-way swaps.
type SwapRequest struct {
	ID                 int64      `json:"id"`
	ScheduleID         int64      `json:"schedule_id"`
	ExchangeScheduleID *int64     `json:"exchange_schedule_id,omitempty"`
	RequesterID        int64      `json:"requester_id"`
	TargetID           int64      `json:"target_id"`
	Status             SwapStatus `json:"status"`
	Reason             string     `json:"reason,omitempty"`
	RejectReason       string     `json:"reject_reason,omitempty"`
	RequestedAt        time.Time  `json:"requested_at"`
	RespondedAt        *time.Time `json:"responded_at,omitempty"`
}

// DayOverride is a single-date coverage exception layered above the
// weekly schedule. Deactivated, never deleted.
type DayOverride struct {
	ID             int64     `json:"id"`
	Date           time.Time `json:"date"` // date only, midnight
	OriginalUserID int64     `json:"original_user_id"`
	CoverUserID    int64     `json:"cover_user_id"`
	Reason         string    `json:"reason,omitempty"`
	Active         bool      `json:"active"`
	CreatedBy      int64     `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// WorkflowConfig carries the tunables the workflows consult. It is
// passed explicitly into each service so tests can inject thresholds.
type WorkflowConfig struct {
	RequireApproval bool
	ApproverID      int64 // user id; zero means no approver configured
	MinDaysForSwap  int   // advance notice for swap requests
	MinDaysForEdit  int   // advance notice for non-escalation schedule edits
}

// DefaultWorkflowConfig returns the default thresholds.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MinDaysForSwap: 7,
		MinDaysForEdit: 7,
	}
}

// ReorderEntry is one (id, position) pair of a bulk reorder.
type ReorderEntry struct {
	ID       int64 `json:"id"`
	Position int   `json:"position"`
}

// CalendarDay is one cell of the rendered month grid.
type CalendarDay struct {
	Date          time.Time `json:"date"`
	InMonth       bool      `json:"in_month"` // false for leading/trailing filler days
	UserID        int64     `json:"user_id"`  // zero when nobody is on call
	Color         string    `json:"color"`
	Overridden    bool      `json:"overridden"`
	IsOnCallStart bool      `json:"is_on_call_start"`
	IsOnCallEnd   bool      `json:"is_on_call_end"`
}

// DateOnly truncates t to midnight in its location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
