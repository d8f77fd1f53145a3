package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// EntityStore is the surface the sync engine reconciles over. Both the
// local project store and the global store implement it.
//
// PutEntity applies one entity write atomically with an optimistic
// freshness check: if the stored copy is already newer than the incoming
// one the write is skipped, and an equal timestamp only wins when
// allowEqual is set (the tie-break for the initiating sync direction).
// The returned bool reports whether anything was written. Entity writes
// never delete data.
type EntityStore interface {
	ListEntities(ctx context.Context) ([]EntityRef, error)
	GetEntity(ctx context.Context, kind, id string) (*Entity, error)
	PutEntity(ctx context.Context, e *Entity, allowEqual bool) (bool, error)
}

// ListEntities projects local sessions as syncable entities.
func (s *LocalStore) ListEntities(ctx context.Context) ([]EntityRef, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, updated_at FROM sessions")
	if err != nil {
		return nil, MapTimeout(fmt.Errorf("list sessions: %w", err))
	}
	defer rows.Close()

	refs := []EntityRef{}
	for rows.Next() {
		var ref EntityRef
		var updated string
		if err := rows.Scan(&ref.ID, &updated); err != nil {
			return nil, fmt.Errorf("scan session ref: %w", err)
		}
		ref.Kind = KindSession
		if ref.UpdatedAt, err = parseTimestamp(updated); err != nil {
			return nil, fmt.Errorf("session %s updated_at: %v: %w", ref.ID, err, ErrCorrupt)
		}
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

// GetEntity serializes a session snapshot as an entity payload.
func (s *LocalStore) GetEntity(ctx context.Context, kind, id string) (*Entity, error) {
	if kind != KindSession {
		return nil, fmt.Errorf("local store holds no %q entities: %w", kind, ErrNotFound)
	}

	snap, err := s.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	return &Entity{
		EntityRef: EntityRef{Kind: KindSession, ID: id, UpdatedAt: snap.Session.Updated},
		Payload:   payload,
	}, nil
}

// PutEntity applies a pulled session snapshot to the local store. The write
// is a single transaction: the session row is overwritten and its entries
// and findings upserted, nothing is deleted. A pulled active session that
// would sit beside a different local active session violates the one-active
// invariant and fails with ErrConflict.
func (s *LocalStore) PutEntity(ctx context.Context, e *Entity, allowEqual bool) (bool, error) {
	if e.Kind != KindSession {
		return false, fmt.Errorf("local store cannot hold %q entities: %w", e.Kind, ErrValidation)
	}

	var snap SessionSnapshot
	if err := json.Unmarshal(e.Payload, &snap); err != nil {
		return false, fmt.Errorf("entity %s payload: %v: %w", e.ID, err, ErrCorrupt)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, MapTimeout(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	var stored string
	err = tx.QueryRowContext(ctx,
		"SELECT updated_at FROM sessions WHERE id = ?", e.ID).Scan(&stored)
	if err != nil && err != sql.ErrNoRows {
		return false, MapTimeout(fmt.Errorf("check session: %w", err))
	}
	if err == nil {
		storedAt, perr := parseTimestamp(stored)
		if perr != nil {
			return false, fmt.Errorf("session %s updated_at: %v: %w", e.ID, perr, ErrCorrupt)
		}
		if storedAt.After(e.UpdatedAt) {
			return false, nil
		}
		if storedAt.Equal(e.UpdatedAt) && !allowEqual {
			return false, nil
		}
	}

	if snap.Session.Status == StatusActive {
		var activeID string
		aerr := tx.QueryRowContext(ctx,
			"SELECT id FROM sessions WHERE status = 'active' AND id != ? LIMIT 1",
			e.ID).Scan(&activeID)
		if aerr == nil {
			return false, fmt.Errorf("pulled session %s is active but %s is already active here: %w",
				e.ID, activeID, ErrConflict)
		}
		if aerr != sql.ErrNoRows {
			return false, MapTimeout(fmt.Errorf("check active session: %w", aerr))
		}
	}

	sess := snap.Session
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, topic, workflow, environment, status, predecessor,
		                      thesis, viral_query, groundbreaker_query,
		                      created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			topic = excluded.topic, workflow = excluded.workflow,
			environment = excluded.environment, status = excluded.status,
			predecessor = excluded.predecessor, thesis = excluded.thesis,
			viral_query = excluded.viral_query,
			groundbreaker_query = excluded.groundbreaker_query,
			created_at = excluded.created_at, updated_at = excluded.updated_at,
			completed_at = excluded.completed_at`,
		sess.ID, sess.Topic, sess.Workflow, sess.Environment, sess.Status,
		sess.Predecessor, sess.Thesis, sess.ViralQuery, sess.GroundbreakerQuery,
		formatTS(sess.Created), formatTS(sess.Updated), completedTS(sess),
	)
	if err != nil {
		return false, MapTimeout(fmt.Errorf("upsert session: %w", err))
	}

	for _, entry := range snap.Entries {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entries (session_id, norm_url, url, source, filter, tier,
			                     category, relevance, used, notes, logged_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, norm_url) DO UPDATE SET
				url = excluded.url, source = excluded.source, filter = excluded.filter,
				tier = excluded.tier, category = excluded.category,
				relevance = excluded.relevance, used = excluded.used,
				notes = excluded.notes, updated_at = excluded.updated_at`,
			entry.SessionID, entry.NormURL, entry.URL, entry.Source, entry.Filter,
			entry.Tier, entry.Category, entry.Relevance, entry.Used, entry.Notes,
			formatTS(entry.LoggedAt), formatTS(entry.UpdatedAt),
		)
		if err != nil {
			return false, MapTimeout(fmt.Errorf("upsert entry %s: %w", entry.NormURL, err))
		}
	}

	for _, f := range snap.Findings {
		urlsJSON, merr := json.Marshal(f.URLs)
		if merr != nil {
			return false, fmt.Errorf("marshal finding urls: %w", merr)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO findings (id, session_id, text, urls, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET text = excluded.text, urls = excluded.urls`,
			f.ID, f.SessionID, f.Text, string(urlsJSON), formatTS(f.CreatedAt),
		)
		if err != nil {
			return false, MapTimeout(fmt.Errorf("upsert finding %s: %w", f.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return false, MapTimeout(fmt.Errorf("commit: %w", err))
	}
	return true, nil
}

func completedTS(sess Session) string {
	if sess.Completed.IsZero() {
		return ""
	}
	return formatTS(sess.Completed)
}
