package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dutyroster/internal/models"
)

// GetActiveOverrideForDate returns the active override covering a date,
// or sql.ErrNoRows.
func (db *DB) GetActiveOverrideForDate(ctx context.Context, date time.Time) (*models.DayOverride, error) {
	return scanOverride(db.QueryRowContext(ctx, `
		SELECT id, date, original_user_id, cover_user_id, reason, active, created_by, created_at
		FROM day_overrides WHERE date = ? AND active = 1`, models.DateOnly(date)))
}

// GetActiveOverridesByRange returns active overrides in [start, end).
func (db *DB) GetActiveOverridesByRange(ctx context.Context, start, end time.Time) ([]models.DayOverride, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, date, original_user_id, cover_user_id, reason, active, created_by, created_at
		FROM day_overrides WHERE date >= ? AND date < ? AND active = 1
		ORDER BY date`, models.DateOnly(start), models.DateOnly(end))
	if err != nil {
		return nil, fmt.Errorf("overrides by range: %w", err)
	}
	defer rows.Close()

	var overrides []models.DayOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, *o)
	}
	return overrides, rows.Err()
}

// CreateOverrideReplacingActive deactivates whatever override is active
// for the date and inserts the new one, as a single transaction. Prior
// overrides are kept as history, never deleted.
func (db *DB) CreateOverrideReplacingActive(ctx context.Context, o *models.DayOverride) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE day_overrides SET active = 0 WHERE date = ? AND active = 1`,
		o.Date); err != nil {
		return fmt.Errorf("deactivate prior override: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO day_overrides (date, original_user_id, cover_user_id, reason, active, created_by)
		VALUES (?, ?, ?, ?, 1, ?)`,
		o.Date, o.OriginalUserID, o.CoverUserID, o.Reason, o.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert override: %w", err)
	}
	o.ID, _ = res.LastInsertId()
	o.Active = true

	return tx.Commit()
}

// DeactivateOverride soft-deletes an override.
func (db *DB) DeactivateOverride(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx,
		`UPDATE day_overrides SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate override: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountOverridesForDate returns all override rows for a date, including
// deactivated history.
func (db *DB) CountOverridesForDate(ctx context.Context, date time.Time) (total, active int, err error) {
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(active), 0)
		FROM day_overrides WHERE date = ?`, models.DateOnly(date)).Scan(&total, &active)
	return total, active, err
}

func scanOverride(row interface{ Scan(...interface{}) error }) (*models.DayOverride, error) {
	var o models.DayOverride
	var reason sql.NullString
	err := row.Scan(&o.ID, &o.Date, &o.OriginalUserID, &o.CoverUserID,
		&reason, &o.Active, &o.CreatedBy, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	if reason.Valid {
		o.Reason = reason.String
	}
	return &o, nil
}
