package database

import (
	"database/sql"
	"fmt"
)

// Schema DDL. The relay owns two tables: the class directory and the
// durable session records. session_records rows carry an expires_at column
// enforced by the store's purge loop rather than a SQLite trigger.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS classes (
	id         TEXT PRIMARY KEY,
	code       TEXT NOT NULL UNIQUE COLLATE NOCASE,
	name       TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_classes_code ON classes(code);

CREATE TABLE IF NOT EXISTS session_records (
	connection_id TEXT PRIMARY KEY,
	student_id    TEXT NOT NULL,
	student_name  TEXT NOT NULL,
	class_code    TEXT NOT NULL COLLATE NOCASE,
	html          TEXT NOT NULL DEFAULT '',
	css           TEXT NOT NULL DEFAULT '',
	last_update   DATETIME NOT NULL,
	expires_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_records_student ON session_records(student_id);
CREATE INDEX IF NOT EXISTS idx_session_records_class ON session_records(class_code);
CREATE INDEX IF NOT EXISTS idx_session_records_expiry ON session_records(expires_at);
`

// EnsureSchema creates the relay tables and indexes if they do not exist.
// Idempotent; safe to run on every startup.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// ValidateSchema verifies that all required tables exist. Used by health
// checks and deployment smoke tests.
func ValidateSchema(db *sql.DB) error {
	required := []string{"classes", "session_records"}

	for _, table := range required {
		var name string
		err := db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("required table %s does not exist", table)
		}
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
	}

	return nil
}
