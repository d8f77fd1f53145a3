package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GlobalStore is the store shared across working environments: the archive
// index plus the entity table other environments sync against. It is
// mutated by multiple independent writers without a coordinating lock, so
// every write here is a single optimistic transaction.
type GlobalStore struct {
	db *sql.DB

	getArchive *sql.Stmt
	getEntity  *sql.Stmt

	now func() time.Time
}

// NewGlobalStore creates a GlobalStore from an already-opened and migrated
// database.
func NewGlobalStore(db *sql.DB) (*GlobalStore, error) {
	s := &GlobalStore{db: db, now: time.Now}

	var err error
	s.getArchive, err = s.db.Prepare(`
		SELECT session_id, date, topic, workflow, duration_minutes, url_count,
		       key_finding, forced, archived_at
		FROM archive_index WHERE session_id = ?
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	s.getEntity, err = s.db.Prepare(
		"SELECT kind, id, updated_at, payload FROM entities WHERE kind = ? AND id = ?")
	if err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

// SetClock overrides the store's clock. Test hook.
func (s *GlobalStore) SetClock(now func() time.Time) { s.now = now }

// WriteArchive commits an archived session in one logical transaction: the
// index row and the session snapshot entity land together or not at all, so
// no partially-visible archive can be observed.
func (s *GlobalStore) WriteArchive(ctx context.Context, rec *ArchiveIndexRecord, entity *Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MapTimeout(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO archive_index (session_id, date, topic, workflow,
		                           duration_minutes, url_count, key_finding,
		                           forced, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Date, rec.Topic, rec.Workflow,
		rec.DurationMinutes, rec.URLCount, rec.KeyFinding,
		rec.Forced, formatTS(rec.ArchivedAt),
	)
	if err != nil {
		return MapTimeout(fmt.Errorf("insert archive record: %w", err))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (kind, id, updated_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			updated_at = excluded.updated_at, payload = excluded.payload`,
		entity.Kind, entity.ID, formatTS(entity.UpdatedAt), string(entity.Payload),
	)
	if err != nil {
		return MapTimeout(fmt.Errorf("upsert archive entity: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return MapTimeout(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// GetArchiveRecord retrieves an archive index row by session ID.
func (s *GlobalStore) GetArchiveRecord(ctx context.Context, sessionID string) (*ArchiveIndexRecord, error) {
	var rec ArchiveIndexRecord
	var archivedAt string

	err := s.getArchive.QueryRowContext(ctx, sessionID).Scan(
		&rec.SessionID, &rec.Date, &rec.Topic, &rec.Workflow,
		&rec.DurationMinutes, &rec.URLCount, &rec.KeyFinding,
		&rec.Forced, &archivedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("archive record %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, MapTimeout(fmt.Errorf("get archive record: %w", err))
	}

	if rec.ArchivedAt, err = parseTimestamp(archivedAt); err != nil {
		return nil, fmt.Errorf("archive record %s archived_at: %v: %w", sessionID, err, ErrCorrupt)
	}
	return &rec, nil
}

// CorrectDuration fixes the duration of an existing archive record. This is
// the only mutation an index row permits after creation, used when an
// interrupted archive is resumed.
func (s *GlobalStore) CorrectDuration(ctx context.Context, sessionID string, minutes float64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE archive_index SET duration_minutes = ? WHERE session_id = ?",
		minutes, sessionID,
	)
	if err != nil {
		return MapTimeout(fmt.Errorf("correct duration: %w", err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("archive record %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// RecentArchives returns the n most recently archived sessions.
func (s *GlobalStore) RecentArchives(ctx context.Context, n int) ([]ArchiveIndexRecord, error) {
	if n <= 0 {
		n = 5
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, date, topic, workflow, duration_minutes, url_count,
		       key_finding, forced, archived_at
		FROM archive_index ORDER BY archived_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, MapTimeout(fmt.Errorf("query archive index: %w", err))
	}
	defer rows.Close()

	records := []ArchiveIndexRecord{}
	for rows.Next() {
		var rec ArchiveIndexRecord
		var archivedAt string
		if err := rows.Scan(&rec.SessionID, &rec.Date, &rec.Topic, &rec.Workflow,
			&rec.DurationMinutes, &rec.URLCount, &rec.KeyFinding,
			&rec.Forced, &archivedAt); err != nil {
			return nil, fmt.Errorf("scan archive record: %w", err)
		}
		if rec.ArchivedAt, err = parseTimestamp(archivedAt); err != nil {
			return nil, fmt.Errorf("archive record %s archived_at: %v: %w", rec.SessionID, err, ErrCorrupt)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// ListEntities returns refs for every stored entity.
func (s *GlobalStore) ListEntities(ctx context.Context) ([]EntityRef, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT kind, id, updated_at FROM entities")
	if err != nil {
		return nil, MapTimeout(fmt.Errorf("list entities: %w", err))
	}
	defer rows.Close()

	refs := []EntityRef{}
	for rows.Next() {
		var ref EntityRef
		var updated string
		if err := rows.Scan(&ref.Kind, &ref.ID, &updated); err != nil {
			return nil, fmt.Errorf("scan entity ref: %w", err)
		}
		if ref.UpdatedAt, err = parseTimestamp(updated); err != nil {
			return nil, fmt.Errorf("entity %s/%s updated_at: %v: %w", ref.Kind, ref.ID, err, ErrCorrupt)
		}
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

// GetEntity retrieves one entity with its payload.
func (s *GlobalStore) GetEntity(ctx context.Context, kind, id string) (*Entity, error) {
	var e Entity
	var updated, payload string

	err := s.getEntity.QueryRowContext(ctx, kind, id).Scan(&e.Kind, &e.ID, &updated, &payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entity %s/%s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return nil, MapTimeout(fmt.Errorf("get entity: %w", err))
	}

	if e.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return nil, fmt.Errorf("entity %s/%s updated_at: %v: %w", kind, id, err, ErrCorrupt)
	}
	e.Payload = []byte(payload)
	return &e, nil
}

// PutEntity writes an entity in one transaction with an optimistic
// freshness check, so two syncs racing on the same entity resolve by
// last-writer-wins instead of clobbering blindly.
func (s *GlobalStore) PutEntity(ctx context.Context, e *Entity, allowEqual bool) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, MapTimeout(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	var stored string
	err = tx.QueryRowContext(ctx,
		"SELECT updated_at FROM entities WHERE kind = ? AND id = ?",
		e.Kind, e.ID).Scan(&stored)
	if err != nil && err != sql.ErrNoRows {
		return false, MapTimeout(fmt.Errorf("check entity: %w", err))
	}
	if err == nil {
		storedAt, perr := parseTimestamp(stored)
		if perr != nil {
			return false, fmt.Errorf("entity %s/%s updated_at: %v: %w", e.Kind, e.ID, perr, ErrCorrupt)
		}
		if storedAt.After(e.UpdatedAt) {
			return false, nil
		}
		if storedAt.Equal(e.UpdatedAt) && !allowEqual {
			return false, nil
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (kind, id, updated_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			updated_at = excluded.updated_at, payload = excluded.payload`,
		e.Kind, e.ID, formatTS(e.UpdatedAt), string(e.Payload),
	)
	if err != nil {
		return false, MapTimeout(fmt.Errorf("upsert entity: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return false, MapTimeout(fmt.Errorf("commit: %w", err))
	}
	return true, nil
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed — that is the caller's responsibility.
func (s *GlobalStore) Close() error {
	stmts := []*sql.Stmt{s.getArchive, s.getEntity}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
