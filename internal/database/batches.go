package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dutyroster/internal/models"
)

// ErrStaleState is returned when a guarded state transition matched no
// row: the record was not in the expected status at write time.
var ErrStaleState = errors.New("state changed since read")

// CreateBatch persists a pending batch. No schedule rows are written;
// the serialized plan is the sole source of truth until approval.
func (db *DB) CreateBatch(ctx context.Context, batch *models.ScheduleBatch) error {
	plan, err := json.Marshal(batch.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO schedule_batches (start_date, end_date, week_count, plan, status, generated_by)
		VALUES (?, ?, ?, ?, ?, ?)`,
		batch.StartDate, batch.EndDate, batch.WeekCount, string(plan), batch.Status, batch.GeneratedBy)
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	batch.ID, _ = res.LastInsertId()
	return nil
}

// CreateApprovedBatch persists an already-approved batch together with
// its materialized schedules in one transaction. Existing schedules
// starting on or after the batch start are removed first, so
// regenerating a rotation never leaves overlapping future weeks.
func (db *DB) CreateApprovedBatch(ctx context.Context, batch *models.ScheduleBatch, schedules []models.Schedule) error {
	plan, err := json.Marshal(batch.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO schedule_batches (start_date, end_date, week_count, plan, status, generated_by, approved_by, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.StartDate, batch.EndDate, batch.WeekCount, string(plan), batch.Status,
		batch.GeneratedBy, batch.ApprovedBy, batch.DecidedAt)
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	batch.ID, _ = res.LastInsertId()

	if err := deleteSchedulesFrom(ctx, tx, batch.StartDate); err != nil {
		return err
	}
	if err := insertSchedules(ctx, tx, batch.ID, schedules); err != nil {
		return err
	}

	return tx.Commit()
}

// GetBatch returns a batch with its deserialized plan.
func (db *DB) GetBatch(ctx context.Context, id int64) (*models.ScheduleBatch, error) {
	var b models.ScheduleBatch
	var plan string
	var approvedBy sql.NullInt64
	var decidedAt sql.NullTime
	var rejectReason sql.NullString

	err := db.QueryRowContext(ctx, `
		SELECT id, start_date, end_date, week_count, plan, status,
		       generated_by, approved_by, decided_at, reject_reason, created_at
		FROM schedule_batches WHERE id = ?`, id,
	).Scan(&b.ID, &b.StartDate, &b.EndDate, &b.WeekCount, &plan, &b.Status,
		&b.GeneratedBy, &approvedBy, &decidedAt, &rejectReason, &b.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(plan), &b.Plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	if approvedBy.Valid {
		b.ApprovedBy = &approvedBy.Int64
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		b.DecidedAt = &t
	}
	if rejectReason.Valid {
		b.RejectReason = rejectReason.String
	}
	return &b, nil
}

// ListPendingBatches returns batches awaiting approval, oldest first.
func (db *DB) ListPendingBatches(ctx context.Context) ([]models.ScheduleBatch, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, start_date, end_date, week_count, plan, status, generated_by, created_at
		FROM schedule_batches WHERE status = ? ORDER BY created_at`,
		models.BatchPendingApproval)
	if err != nil {
		return nil, fmt.Errorf("list pending batches: %w", err)
	}
	defer rows.Close()

	var batches []models.ScheduleBatch
	for rows.Next() {
		var b models.ScheduleBatch
		var plan string
		if err := rows.Scan(&b.ID, &b.StartDate, &b.EndDate, &b.WeekCount, &plan,
			&b.Status, &b.GeneratedBy, &b.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(plan), &b.Plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ApproveBatch transitions a pending batch to approved and materializes
// its schedules atomically. The UPDATE is conditioned on the pending
// status; if another approval won the race, ErrStaleState is returned
// and nothing is written.
func (db *DB) ApproveBatch(ctx context.Context, batch *models.ScheduleBatch, approverID int64, decidedAt time.Time, schedules []models.Schedule) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE schedule_batches
		SET status = ?, approved_by = ?, decided_at = ?
		WHERE id = ? AND status = ?`,
		models.BatchApproved, approverID, decidedAt, batch.ID, models.BatchPendingApproval)
	if err != nil {
		return fmt.Errorf("approve batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleState
	}

	if err := deleteSchedulesFrom(ctx, tx, batch.StartDate); err != nil {
		return err
	}
	if err := insertSchedules(ctx, tx, batch.ID, schedules); err != nil {
		return err
	}

	return tx.Commit()
}

// RejectBatch transitions a pending batch to rejected. Guarded the same
// way as ApproveBatch; no schedule rows are touched.
func (db *DB) RejectBatch(ctx context.Context, batchID, rejecterID int64, reason string, decidedAt time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE schedule_batches
		SET status = ?, approved_by = ?, decided_at = ?, reject_reason = ?
		WHERE id = ? AND status = ?`,
		models.BatchRejected, rejecterID, decidedAt, reason, batchID, models.BatchPendingApproval)
	if err != nil {
		return fmt.Errorf("reject batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleState
	}
	return nil
}

func insertSchedules(ctx context.Context, tx *sql.Tx, batchID int64, schedules []models.Schedule) error {
	for _, s := range schedules {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schedules (batch_id, week_start, week_end, week_number, user_id)
			VALUES (?, ?, ?, ?, ?)`,
			batchID, s.WeekStart, s.WeekEnd, s.WeekNumber, s.UserID); err != nil {
			return fmt.Errorf("insert schedule: %w", err)
		}
	}
	return nil
}

// deleteSchedulesFrom removes schedules starting on or after start.
// Swap requests referencing those weeks are removed first; keeping
// them would dangle on rows that no longer exist.
func deleteSchedulesFrom(ctx context.Context, tx *sql.Tx, start time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM swap_requests
		WHERE schedule_id IN (SELECT id FROM schedules WHERE week_start >= ?)
		   OR exchange_schedule_id IN (SELECT id FROM schedules WHERE week_start >= ?)`,
		start, start); err != nil {
		return fmt.Errorf("detach swap requests: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schedules WHERE week_start >= ?`, start); err != nil {
		return fmt.Errorf("delete future schedules: %w", err)
	}
	return nil
}
