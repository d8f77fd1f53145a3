// Package archive transitions an active session into the global store:
// an immutable snapshot entity plus one archive index row, written in a
// single transaction so no partially-visible archive exists.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scoutproject/scout/internal/storage"
)

// keyFindingMaxLen bounds the one-line key finding stored in the index.
const keyFindingMaxLen = 80

// Archiver moves sessions from the local store into the global archive.
type Archiver struct {
	local   *storage.LocalStore
	global  *storage.GlobalStore
	minURLs int
	log     *zap.Logger
	now     func() time.Time
}

// New creates an Archiver. minURLs is the advisory quality gate: sessions
// with fewer logged URLs are refused unless the caller forces the archive.
func New(local *storage.LocalStore, global *storage.GlobalStore, minURLs int, log *zap.Logger) *Archiver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Archiver{
		local:   local,
		global:  global,
		minURLs: minURLs,
		log:     log,
		now:     time.Now,
	}
}

// SetClock overrides the archiver's clock. Test hook.
func (a *Archiver) SetClock(now func() time.Time) { a.now = now }

// Archive moves the named active session to the global archive and returns
// its index record. It is idempotent: archiving an already-archived session
// returns the existing record. A session below the URL quality gate fails
// with ErrIncomplete unless force is set; the override is recorded on the
// index row.
func (a *Archiver) Archive(ctx context.Context, sessionID string, force bool) (*storage.ArchiveIndexRecord, error) {
	existing, err := a.global.GetArchiveRecord(ctx, sessionID)
	if err == nil {
		return a.resume(ctx, sessionID, existing)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	sess, err := a.local.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != storage.StatusActive {
		return nil, fmt.Errorf("no active session %s: %w", sessionID, storage.ErrNotFound)
	}

	snap, err := a.local.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if len(snap.Entries) < a.minURLs && !force {
		return nil, fmt.Errorf("session %s has %d URLs, quality gate needs %d (use force to override): %w",
			sessionID, len(snap.Entries), a.minURLs, storage.ErrIncomplete)
	}

	completed := a.now()
	snap.Session.Status = storage.StatusArchived
	snap.Session.Completed = completed
	snap.Session.Updated = completed

	rec := &storage.ArchiveIndexRecord{
		SessionID:       sessionID,
		Date:            completed.UTC().Format("2006-01-02"),
		Topic:           sess.Topic,
		Workflow:        sess.Workflow,
		DurationMinutes: completed.Sub(sess.Created).Minutes(),
		URLCount:        len(snap.Entries),
		KeyFinding:      keyFinding(snap.Findings),
		Forced:          force && len(snap.Entries) < a.minURLs,
		ArchivedAt:      completed,
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	entity := &storage.Entity{
		EntityRef: storage.EntityRef{
			Kind:      storage.KindSession,
			ID:        sessionID,
			UpdatedAt: completed,
		},
		Payload: payload,
	}

	if err := a.global.WriteArchive(ctx, rec, entity); err != nil {
		return nil, err
	}

	if err := a.local.MarkArchived(ctx, sessionID, completed); err != nil {
		return nil, err
	}

	a.log.Info("session archived",
		zap.String("session_id", sessionID),
		zap.String("topic", sess.Topic),
		zap.Int("urls", rec.URLCount),
		zap.Float64("duration_minutes", rec.DurationMinutes),
		zap.Bool("forced", rec.Forced),
	)

	return rec, nil
}

// resume finishes an archive whose index row already exists. If the local
// session is still active the previous attempt was interrupted between the
// global commit and the local status flip: the duration is corrected — the
// only mutation an index row permits — and the local side caught up.
// Otherwise the existing record is returned unchanged, which makes retries
// safe.
func (a *Archiver) resume(ctx context.Context, sessionID string, rec *storage.ArchiveIndexRecord) (*storage.ArchiveIndexRecord, error) {
	sess, err := a.local.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Archived elsewhere; the record is the truth.
			return rec, nil
		}
		return nil, err
	}
	if sess.Status != storage.StatusActive {
		return rec, nil
	}

	completed := a.now()
	minutes := completed.Sub(sess.Created).Minutes()

	if err := a.global.CorrectDuration(ctx, sessionID, minutes); err != nil {
		return nil, err
	}
	if err := a.local.MarkArchived(ctx, sessionID, completed); err != nil {
		return nil, err
	}

	a.log.Warn("resumed interrupted archive",
		zap.String("session_id", sessionID),
		zap.Float64("duration_minutes", minutes),
	)

	rec.DurationMinutes = minutes
	return rec, nil
}

// keyFinding reduces a session's findings to the one-line summary kept in
// the index row.
func keyFinding(findings []storage.Finding) string {
	if len(findings) == 0 {
		return "see report"
	}
	text := findings[0].Text
	if runes := []rune(text); len(runes) > keyFindingMaxLen {
		text = string(runes[:keyFindingMaxLen-3]) + "..."
	}
	return text
}
