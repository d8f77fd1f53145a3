package storage

import "database/sql"

// migrateLocalV001 creates the initial per-project schema: sessions, URL
// log entries, findings, and the append-only audit trail. Every statement
// uses IF NOT EXISTS for idempotency.
func migrateLocalV001(tx *sql.Tx) error {
	stmts := []string{
		// ── Tables ──────────────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS sessions (
			id                  TEXT PRIMARY KEY,
			topic               TEXT NOT NULL,
			workflow            TEXT NOT NULL DEFAULT 'research',
			environment         TEXT NOT NULL DEFAULT 'cli',
			status              TEXT NOT NULL DEFAULT 'active'
			                    CHECK (status IN ('active', 'archived')),
			predecessor         TEXT NOT NULL DEFAULT '',
			thesis              TEXT NOT NULL DEFAULT '',
			viral_query         TEXT NOT NULL DEFAULT '',
			groundbreaker_query TEXT NOT NULL DEFAULT '',
			created_at          TEXT NOT NULL,
			updated_at          TEXT NOT NULL,
			completed_at        TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS entries (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			norm_url   TEXT NOT NULL,
			url        TEXT NOT NULL,
			source     TEXT NOT NULL DEFAULT 'Web',
			filter     TEXT NOT NULL DEFAULT '',
			tier       INTEGER NOT NULL CHECK (tier BETWEEN 1 AND 3),
			category   TEXT NOT NULL,
			relevance  INTEGER NOT NULL CHECK (relevance BETWEEN 1 AND 5),
			used       BOOLEAN NOT NULL DEFAULT 0,
			notes      TEXT NOT NULL DEFAULT '',
			logged_at  TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (session_id, norm_url)
		)`,

		`CREATE TABLE IF NOT EXISTS findings (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			text       TEXT NOT NULL,
			urls       TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS audit_log (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			action     TEXT NOT NULL,
			detail     TEXT NOT NULL DEFAULT '',
			session_id TEXT,
			ts         TEXT NOT NULL
		)`,

		// ── Indexes ────────────────────────────────────────────

		`CREATE INDEX IF NOT EXISTS idx_sessions_status   ON sessions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_session   ON entries(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_logged_at ON entries(logged_at)`,
		`CREATE INDEX IF NOT EXISTS idx_findings_session  ON findings(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_ts      ON audit_log(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_action  ON audit_log(action)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
