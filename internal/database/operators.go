package database

import (
	"context"
	"database/sql"
	"fmt"

	"dutyroster/internal/models"
)

// GetUser returns a user by id.
func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := db.QueryRowContext(ctx, `
		SELECT id, display_name, COALESCE(email, ''), COALESCE(phone, ''),
		       chat_id, active, legacy_escalation, legacy_escalation_order
		FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.DisplayName, &u.Email, &u.Phone, &u.ChatID, &u.Active,
		&u.LegacyEscalation, &u.LegacyEscalationOrder)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user record. A non-zero ID is written as is so
// externally assigned identities keep their id; otherwise the row id
// is allocated by sqlite.
func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID != 0 {
		_, err := db.ExecContext(ctx, `
			INSERT INTO users (id, display_name, email, phone, chat_id, active, legacy_escalation, legacy_escalation_order)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			u.ID, u.DisplayName, u.Email, u.Phone, u.ChatID, u.Active, u.LegacyEscalation, u.LegacyEscalationOrder)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO users (display_name, email, phone, chat_id, active, legacy_escalation, legacy_escalation_order)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.DisplayName, u.Email, u.Phone, u.ChatID, u.Active, u.LegacyEscalation, u.LegacyEscalationOrder)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	u.ID, _ = res.LastInsertId()
	return nil
}

// ListOperators returns the rotation pool ordered by position.
func (db *DB) ListOperators(ctx context.Context) ([]models.Operator, error) {
	return db.listOperators(ctx, false)
}

// ListActiveOperators returns active rotation pool members by position.
func (db *DB) ListActiveOperators(ctx context.Context) ([]models.Operator, error) {
	return db.listOperators(ctx, true)
}

func (db *DB) listOperators(ctx context.Context, activeOnly bool) ([]models.Operator, error) {
	query := `
		SELECT id, user_id, position, active, color, phone, created_at, updated_at
		FROM operators`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY position`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	defer rows.Close()

	var operators []models.Operator
	for rows.Next() {
		var op models.Operator
		if err := rows.Scan(&op.ID, &op.UserID, &op.Position, &op.Active,
			&op.Color, &op.Phone, &op.CreatedAt, &op.UpdatedAt); err != nil {
			return nil, err
		}
		operators = append(operators, op)
	}
	return operators, rows.Err()
}

// GetOperatorByUserID returns the operator enrolled for a user, or
// sql.ErrNoRows if the user is not in the pool.
func (db *DB) GetOperatorByUserID(ctx context.Context, userID int64) (*models.Operator, error) {
	var op models.Operator
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, position, active, color, phone, created_at, updated_at
		FROM operators WHERE user_id = ?`, userID,
	).Scan(&op.ID, &op.UserID, &op.Position, &op.Active, &op.Color, &op.Phone,
		&op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// InsertOperator enrolls an operator at position max+1. The position is
// computed inside the transaction so two concurrent enrollments cannot
// claim the same slot.
func (db *DB) InsertOperator(ctx context.Context, op *models.Operator) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM operators`,
	).Scan(&op.Position); err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO operators (user_id, position, active, color, phone)
		VALUES (?, ?, ?, ?, ?)`,
		op.UserID, op.Position, op.Active, op.Color, op.Phone)
	if err != nil {
		return fmt.Errorf("insert operator: %w", err)
	}
	op.ID, _ = res.LastInsertId()

	return tx.Commit()
}

// DeleteOperatorAndCompact removes an operator and re-numbers the
// remaining pool to a dense 1..N order.
func (db *DB) DeleteOperatorAndCompact(ctx context.Context, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM operators WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete operator: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	if err := compactPositions(ctx, tx, "operators"); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateOperatorPositions overwrites positions in bulk. The caller's
// values are written verbatim; density is not re-validated.
func (db *DB) UpdateOperatorPositions(ctx context.Context, entries []models.ReorderEntry) error {
	return db.updatePositions(ctx, "operators", entries)
}

func (db *DB) updatePositions(ctx context.Context, table string, entries []models.ReorderEntry) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET position = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, table),
			e.Position, e.ID); err != nil {
			return fmt.Errorf("update position: %w", err)
		}
	}
	return tx.Commit()
}

// compactPositions re-numbers a pool to 1..N keeping the current order.
func compactPositions(ctx context.Context, tx *sql.Tx, table string) error {
	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s ORDER BY position`, table))
	if err != nil {
		return fmt.Errorf("list for compaction: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET position = ? WHERE id = ?`, table),
			i+1, id); err != nil {
			return fmt.Errorf("compact position: %w", err)
		}
	}
	return nil
}

// ListEscalationMembers returns the escalation pool by position.
func (db *DB) ListEscalationMembers(ctx context.Context) ([]models.EscalationMember, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, position, active, color, phone, created_at, updated_at
		FROM escalation_members ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list escalation members: %w", err)
	}
	defer rows.Close()

	var members []models.EscalationMember
	for rows.Next() {
		var m models.EscalationMember
		if err := rows.Scan(&m.ID, &m.UserID, &m.Position, &m.Active,
			&m.Color, &m.Phone, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CountActiveEscalationMembers returns the size of the active pool.
func (db *DB) CountActiveEscalationMembers(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM escalation_members WHERE active = 1`).Scan(&count)
	return count, err
}

// IsEscalationMember checks the dedicated pool for an active membership.
func (db *DB) IsEscalationMember(ctx context.Context, userID int64) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM escalation_members WHERE user_id = ? AND active = 1`,
		userID).Scan(&count)
	return count > 0, err
}

// HasLegacyEscalationFlag checks the old per-user escalation flag.
func (db *DB) HasLegacyEscalationFlag(ctx context.Context, userID int64) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE id = ? AND legacy_escalation = 1 AND active = 1`,
		userID).Scan(&count)
	return count > 0, err
}

// InsertEscalationMember enrolls an escalation member at position max+1
// and mirrors the membership into the user's legacy flag in the same
// transaction, keeping the old read path consistent.
func (db *DB) InsertEscalationMember(ctx context.Context, m *models.EscalationMember) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM escalation_members`,
	).Scan(&m.Position); err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO escalation_members (user_id, position, active, color, phone)
		VALUES (?, ?, ?, ?, ?)`,
		m.UserID, m.Position, m.Active, m.Color, m.Phone)
	if err != nil {
		return fmt.Errorf("insert escalation member: %w", err)
	}
	m.ID, _ = res.LastInsertId()

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET legacy_escalation = 1, legacy_escalation_order = ?,
		       updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, m.Position, m.UserID); err != nil {
		return fmt.Errorf("sync legacy flag: %w", err)
	}

	return tx.Commit()
}

// DeleteEscalationMemberAndCompact removes an escalation member,
// re-numbers the pool and clears the user's legacy flag.
func (db *DB) DeleteEscalationMemberAndCompact(ctx context.Context, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT user_id FROM escalation_members WHERE id = ?`, id).Scan(&userID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM escalation_members WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete escalation member: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET legacy_escalation = 0, legacy_escalation_order = 0,
		       updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("clear legacy flag: %w", err)
	}

	if err := compactPositions(ctx, tx, "escalation_members"); err != nil {
		return err
	}

	// Re-sync legacy orders after compaction.
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET legacy_escalation_order = (
			SELECT position FROM escalation_members WHERE user_id = users.id
		) WHERE id IN (SELECT user_id FROM escalation_members)`); err != nil {
		return fmt.Errorf("sync legacy orders: %w", err)
	}

	return tx.Commit()
}

// UpdateEscalationPositions overwrites escalation positions in bulk and
// mirrors them into the legacy per-user orders.
func (db *DB) UpdateEscalationPositions(ctx context.Context, entries []models.ReorderEntry) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`UPDATE escalation_members SET position = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			e.Position, e.ID); err != nil {
			return fmt.Errorf("update position: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET legacy_escalation_order = (
			SELECT position FROM escalation_members WHERE user_id = users.id
		) WHERE id IN (SELECT user_id FROM escalation_members)`); err != nil {
		return fmt.Errorf("sync legacy orders: %w", err)
	}

	return tx.Commit()
}
