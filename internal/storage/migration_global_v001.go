package storage

import "database/sql"

// migrateGlobalV001 creates the initial global store schema: the archive
// index and the entity table the sync engine reconciles against.
func migrateGlobalV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS archive_index (
			session_id       TEXT PRIMARY KEY,
			date             TEXT NOT NULL,
			topic            TEXT NOT NULL,
			workflow         TEXT NOT NULL,
			duration_minutes REAL NOT NULL DEFAULT 0,
			url_count        INTEGER NOT NULL DEFAULT 0,
			key_finding      TEXT NOT NULL DEFAULT '',
			forced           BOOLEAN NOT NULL DEFAULT 0,
			archived_at      TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS entities (
			kind       TEXT NOT NULL,
			id         TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			payload    TEXT NOT NULL,
			PRIMARY KEY (kind, id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_archive_index_date ON archive_index(date)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_updated   ON entities(updated_at)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
