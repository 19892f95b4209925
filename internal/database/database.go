// Package database is the sqlite persistence layer for the rotation
// service. One file per aggregate; multi-row mutations run in a single
// transaction so a failed write leaves no partial state.
package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the rotation service.
type DB struct {
	*sql.DB
}

// NewDB opens the database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Users known to the service. legacy_escalation mirrors the old
		// per-user escalation flag, honored when the dedicated pool is empty.
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			display_name TEXT NOT NULL,
			email TEXT,
			phone TEXT,
			chat_id INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT 1,
			legacy_escalation BOOLEAN NOT NULL DEFAULT 0,
			legacy_escalation_order INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Rotation pool, position is the 1-based rotation order.
		`CREATE TABLE IF NOT EXISTS operators (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER UNIQUE NOT NULL,
			position INTEGER NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 1,
			color TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		// Escalation pool, separate from the rotation pool.
		`CREATE TABLE IF NOT EXISTS escalation_members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER UNIQUE NOT NULL,
			position INTEGER NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 1,
			color TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		// One rotation-generation request. Never deleted (audit trail).
		`CREATE TABLE IF NOT EXISTS schedule_batches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_date DATETIME NOT NULL,
			end_date DATETIME NOT NULL,
			week_count INTEGER NOT NULL,
			plan TEXT NOT NULL,
			status TEXT NOT NULL,
			generated_by INTEGER NOT NULL,
			approved_by INTEGER,
			decided_at DATETIME,
			reject_reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Materialized weekly assignments.
		`CREATE TABLE IF NOT EXISTS schedules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id INTEGER NOT NULL,
			week_start DATETIME NOT NULL,
			week_end DATETIME NOT NULL,
			week_number INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			override BOOLEAN NOT NULL DEFAULT 0,
			modified_by INTEGER,
			reminder_sent BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (batch_id) REFERENCES schedule_batches(id)
		)`,

		`CREATE TABLE IF NOT EXISTS swap_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			schedule_id INTEGER NOT NULL,
			exchange_schedule_id INTEGER,
			requester_id INTEGER NOT NULL,
			target_id INTEGER NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			reject_reason TEXT,
			requested_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			responded_at DATETIME,
			FOREIGN KEY (schedule_id) REFERENCES schedules(id)
		)`,

		`CREATE TABLE IF NOT EXISTS day_overrides (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date DATETIME NOT NULL,
			original_user_id INTEGER NOT NULL,
			cover_user_id INTEGER NOT NULL,
			reason TEXT,
			active BOOLEAN NOT NULL DEFAULT 1,
			created_by INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_schedules_week_start ON schedules(week_start)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_batch ON schedules(batch_id)`,

		// At most one pending request per original schedule.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_swaps_pending
			ON swap_requests(schedule_id) WHERE status = 'pending'`,

		// At most one active override per date.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_overrides_active
			ON day_overrides(date) WHERE active = 1`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}
