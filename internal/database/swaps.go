package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dutyroster/internal/models"
)

// GetSwapRequest returns a swap request by id.
func (db *DB) GetSwapRequest(ctx context.Context, id int64) (*models.SwapRequest, error) {
	var r models.SwapRequest
	var exchange sql.NullInt64
	var reason, rejectReason sql.NullString
	var responded sql.NullTime

	err := db.QueryRowContext(ctx, `
		SELECT id, schedule_id, exchange_schedule_id, requester_id, target_id,
		       status, reason, reject_reason, requested_at, responded_at
		FROM swap_requests WHERE id = ?`, id,
	).Scan(&r.ID, &r.ScheduleID, &exchange, &r.RequesterID, &r.TargetID,
		&r.Status, &reason, &rejectReason, &r.RequestedAt, &responded)
	if err != nil {
		return nil, err
	}
	if exchange.Valid {
		r.ExchangeScheduleID = &exchange.Int64
	}
	if reason.Valid {
		r.Reason = reason.String
	}
	if rejectReason.Valid {
		r.RejectReason = rejectReason.String
	}
	if responded.Valid {
		t := responded.Time
		r.RespondedAt = &t
	}
	return &r, nil
}

// HasPendingSwapForSchedule reports whether a pending request already
// references the schedule.
func (db *DB) HasPendingSwapForSchedule(ctx context.Context, scheduleID int64) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM swap_requests WHERE schedule_id = ? AND status = ?`,
		scheduleID, models.SwapPending).Scan(&count)
	return count > 0, err
}

// CreateSwapRequest persists a pending request. The partial unique
// index on (schedule_id, status=pending) backs up the service-level
// duplicate check under concurrency.
func (db *DB) CreateSwapRequest(ctx context.Context, r *models.SwapRequest) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO swap_requests (schedule_id, exchange_schedule_id, requester_id, target_id, status, reason)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ScheduleID, r.ExchangeScheduleID, r.RequesterID, r.TargetID, r.Status, r.Reason)
	if err != nil {
		return fmt.Errorf("create swap request: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

// ApproveSwap transitions a pending request to approved and performs
// the schedule flips in the same transaction: the original week goes to
// the target, the exchange week (if any) goes back to the requester.
// Both touched weeks are marked overridden. The status UPDATE is
// guarded; a lost race returns ErrStaleState with nothing written.
func (db *DB) ApproveSwap(ctx context.Context, r *models.SwapRequest, approverID int64, respondedAt time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE swap_requests SET status = ?, responded_at = ?
		WHERE id = ? AND status = ?`,
		models.SwapApproved, respondedAt, r.ID, models.SwapPending)
	if err != nil {
		return fmt.Errorf("approve swap: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleState
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE schedules
		SET user_id = ?, override = 1, modified_by = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, r.TargetID, approverID, r.ScheduleID); err != nil {
		return fmt.Errorf("flip original week: %w", err)
	}

	if r.ExchangeScheduleID != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE schedules
			SET user_id = ?, override = 1, modified_by = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, r.RequesterID, approverID, *r.ExchangeScheduleID); err != nil {
			return fmt.Errorf("flip exchange week: %w", err)
		}
	}

	return tx.Commit()
}

// RejectSwap transitions a pending request to rejected. No schedule is
// mutated.
func (db *DB) RejectSwap(ctx context.Context, id int64, reason string, respondedAt time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE swap_requests SET status = ?, reject_reason = ?, responded_at = ?
		WHERE id = ? AND status = ?`,
		models.SwapRejected, reason, respondedAt, id, models.SwapPending)
	if err != nil {
		return fmt.Errorf("reject swap: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleState
	}
	return nil
}
