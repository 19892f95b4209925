package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dutyroster/internal/models"
)

const scheduleColumns = `id, batch_id, week_start, week_end, week_number,
	user_id, override, modified_by, reminder_sent, created_at, updated_at`

func scanSchedule(row interface{ Scan(...interface{}) error }) (*models.Schedule, error) {
	var s models.Schedule
	var modifiedBy sql.NullInt64
	err := row.Scan(&s.ID, &s.BatchID, &s.WeekStart, &s.WeekEnd, &s.WeekNumber,
		&s.UserID, &s.Override, &modifiedBy, &s.ReminderSent, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if modifiedBy.Valid {
		s.ModifiedBy = &modifiedBy.Int64
	}
	return &s, nil
}

// GetSchedule returns a weekly assignment by id.
func (db *DB) GetSchedule(ctx context.Context, id int64) (*models.Schedule, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	return scanSchedule(row)
}

// GetScheduleForInstant returns the week whose half-open interval
// contains t, or sql.ErrNoRows when nobody is scheduled.
func (db *DB) GetScheduleForInstant(ctx context.Context, t time.Time) (*models.Schedule, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE week_start <= ? AND week_end > ?
		ORDER BY week_start DESC LIMIT 1`, t, t)
	return scanSchedule(row)
}

// GetSchedulesByRange returns weeks overlapping [start, end), ordered.
func (db *DB) GetSchedulesByRange(ctx context.Context, start, end time.Time) ([]models.Schedule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE week_start < ? AND week_end > ?
		ORDER BY week_start`, end, start)
	if err != nil {
		return nil, fmt.Errorf("schedules by range: %w", err)
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

// GetSchedulesByBatch returns a batch's weeks in order.
func (db *DB) GetSchedulesByBatch(ctx context.Context, batchID int64) ([]models.Schedule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE batch_id = ? ORDER BY week_start`, batchID)
	if err != nil {
		return nil, fmt.Errorf("schedules by batch: %w", err)
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

// UpdateScheduleOperator reassigns a week and marks it overridden.
func (db *DB) UpdateScheduleOperator(ctx context.Context, scheduleID, newUserID, modifiedBy int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE schedules
		SET user_id = ?, override = 1, modified_by = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, newUserID, modifiedBy, scheduleID)
	if err != nil {
		return fmt.Errorf("update schedule operator: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetWeeksStartingBetween returns schedules whose week begins inside
// [from, to) and that have not been reminded yet.
func (db *DB) GetWeeksStartingBetween(ctx context.Context, from, to time.Time) ([]models.Schedule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE week_start >= ? AND week_start < ? AND reminder_sent = 0
		ORDER BY week_start`, from, to)
	if err != nil {
		return nil, fmt.Errorf("upcoming weeks: %w", err)
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

// MarkReminderSent flags a week as reminded.
func (db *DB) MarkReminderSent(ctx context.Context, scheduleID int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE schedules SET reminder_sent = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		scheduleID)
	return err
}
