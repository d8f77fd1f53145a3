package storage

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalStore owns the per-project research state: the single active
// session, its URL log, findings, and the audit trail.
type LocalStore struct {
	db *sql.DB

	// Prepared statements
	getSession  *sql.Stmt
	getActive   *sql.Stmt
	getEntry    *sql.Stmt
	insertAudit *sql.Stmt

	now func() time.Time
}

// NewLocalStore creates a LocalStore from an already-opened and migrated
// database.
func NewLocalStore(db *sql.DB) (*LocalStore, error) {
	s := &LocalStore{db: db, now: time.Now}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

const sessionColumns = `id, topic, workflow, environment, status, predecessor,
	thesis, viral_query, groundbreaker_query, created_at, updated_at, completed_at`

func (s *LocalStore) prepareStatements() error {
	var err error

	s.getSession, err = s.db.Prepare(
		`SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`)
	if err != nil {
		return err
	}

	s.getActive, err = s.db.Prepare(
		`SELECT ` + sessionColumns + ` FROM sessions WHERE status = 'active' LIMIT 1`)
	if err != nil {
		return err
	}

	s.getEntry, err = s.db.Prepare(`
		SELECT session_id, norm_url, url, source, filter, tier, category,
		       relevance, used, notes, logged_at, updated_at
		FROM entries WHERE session_id = ? AND norm_url = ?
	`)
	if err != nil {
		return err
	}

	s.insertAudit, err = s.db.Prepare(
		`INSERT INTO audit_log (action, detail, session_id, ts) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}

	return nil
}

// SetClock overrides the store's clock. Test hook.
func (s *LocalStore) SetClock(now func() time.Time) { s.now = now }

// formatTS renders a timestamp for storage. RFC3339Nano keeps enough
// precision for last-writer-wins comparison during sync.
func formatTS(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTimestamp tries several common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

// GenerateSessionID derives a session ID from the topic and creation time:
// a truncated topic slug, a second-resolution timestamp, and a short topic
// hash to keep same-second collisions on different topics apart.
func GenerateSessionID(topic string, at time.Time) string {
	sum := md5.Sum([]byte(topic))
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(topic), " ", "-"))
	if len(slug) > 20 {
		slug = slug[:20]
	}
	return fmt.Sprintf("%s-%s-%s", slug, at.Format("20060102-150405"), hex.EncodeToString(sum[:])[:6])
}

func validWorkflow(w string) bool {
	return w == WorkflowResearch || w == WorkflowInnovationScout || w == WorkflowDeepResearch
}

func validEnvironment(e string) bool {
	return e == EnvCLI || e == EnvIDE || e == EnvWeb
}

func validCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// CreateSessionParams carries everything needed to open a session.
type CreateSessionParams struct {
	Topic              string
	Workflow           string
	Environment        string
	Predecessor        string
	ViralQuery         string
	GroundbreakerQuery string
}

// CreateSession opens a new active session. Exactly one session may be
// active per project root: if one exists the call fails with ErrConflict
// and leaves it untouched.
func (s *LocalStore) CreateSession(ctx context.Context, p CreateSessionParams) (*Session, error) {
	if strings.TrimSpace(p.Topic) == "" {
		return nil, fmt.Errorf("topic must not be empty: %w", ErrValidation)
	}
	if !validWorkflow(p.Workflow) {
		return nil, fmt.Errorf("unknown workflow %q: %w", p.Workflow, ErrValidation)
	}
	if !validEnvironment(p.Environment) {
		return nil, fmt.Errorf("unknown environment %q: %w", p.Environment, ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, MapTimeout(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	var activeID string
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM sessions WHERE status = 'active' LIMIT 1").Scan(&activeID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("session %s is still active, archive it first: %w", activeID, ErrConflict)
	case err != sql.ErrNoRows:
		return nil, MapTimeout(fmt.Errorf("check active session: %w", err))
	}

	if p.Predecessor != "" {
		var status string
		err = tx.QueryRowContext(ctx,
			"SELECT status FROM sessions WHERE id = ?", p.Predecessor).Scan(&status)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("predecessor session %s: %w", p.Predecessor, ErrNotFound)
		}
		if err != nil {
			return nil, MapTimeout(fmt.Errorf("check predecessor: %w", err))
		}
		if status != StatusArchived {
			return nil, fmt.Errorf("predecessor %s is not archived: %w", p.Predecessor, ErrConflict)
		}
	}

	now := s.now()
	sess := &Session{
		ID:                 GenerateSessionID(p.Topic, now),
		Topic:              p.Topic,
		Workflow:           p.Workflow,
		Environment:        p.Environment,
		Status:             StatusActive,
		Predecessor:        p.Predecessor,
		ViralQuery:         p.ViralQuery,
		GroundbreakerQuery: p.GroundbreakerQuery,
		Created:            now,
		Updated:            now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, topic, workflow, environment, status, predecessor,
		                      thesis, viral_query, groundbreaker_query,
		                      created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, '', ?, ?, ?, ?, '')`,
		sess.ID, sess.Topic, sess.Workflow, sess.Environment, sess.Status,
		sess.Predecessor, sess.ViralQuery, sess.GroundbreakerQuery,
		formatTS(now), formatTS(now),
	)
	if err != nil {
		return nil, MapTimeout(fmt.Errorf("insert session: %w", err))
	}

	if err := s.auditTx(ctx, tx, "session_created", p.Topic, sess.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, MapTimeout(fmt.Errorf("commit: %w", err))
	}
	return sess, nil
}

// LoadActive returns the active session, or nil if there is none.
func (s *LocalStore) LoadActive(ctx context.Context) (*Session, error) {
	sess, err := scanSessionRow(s.getActive.QueryRowContext(ctx))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, MapTimeout(err)
	}
	return sess, nil
}

// GetSession retrieves a session by ID.
func (s *LocalStore) GetSession(ctx context.Context, id string) (*Session, error) {
	sess, err := scanSessionRow(s.getSession.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, MapTimeout(err)
	}
	return sess, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSessionRow scans one session row and runs integrity checks on it.
// Rows that fail the checks surface ErrCorrupt rather than a guessed value.
func scanSessionRow(row rowScanner) (*Session, error) {
	var sess Session
	var created, updated, completed string

	err := row.Scan(&sess.ID, &sess.Topic, &sess.Workflow, &sess.Environment,
		&sess.Status, &sess.Predecessor, &sess.Thesis,
		&sess.ViralQuery, &sess.GroundbreakerQuery,
		&created, &updated, &completed)
	if err != nil {
		return nil, err
	}

	if sess.Status != StatusActive && sess.Status != StatusArchived {
		return nil, fmt.Errorf("session %s has status %q: %w", sess.ID, sess.Status, ErrCorrupt)
	}
	if strings.TrimSpace(sess.Topic) == "" {
		return nil, fmt.Errorf("session %s has empty topic: %w", sess.ID, ErrCorrupt)
	}
	if sess.Created, err = parseTimestamp(created); err != nil {
		return nil, fmt.Errorf("session %s created_at: %v: %w", sess.ID, err, ErrCorrupt)
	}
	if sess.Updated, err = parseTimestamp(updated); err != nil {
		return nil, fmt.Errorf("session %s updated_at: %v: %w", sess.ID, err, ErrCorrupt)
	}
	if completed != "" {
		if sess.Completed, err = parseTimestamp(completed); err != nil {
			return nil, fmt.Errorf("session %s completed_at: %v: %w", sess.ID, err, ErrCorrupt)
		}
	}

	return &sess, nil
}

// URLRecord carries one RecordURL call's input.
type URLRecord struct {
	URL       string
	Source    string
	Filter    string
	Tier      int
	Category  string
	Relevance int
	Used      bool
	Notes     string
}

// RecordURL records a URL observation against the active session. The log
// is logically a map from normalized URL to latest entry: re-logging an
// already-seen URL overwrites its metadata and appends an audit row instead
// of duplicating the entry. All validation happens before any mutation.
func (s *LocalStore) RecordURL(ctx context.Context, rec URLRecord) (*LogEntry, error) {
	if rec.Tier < 1 || rec.Tier > 3 {
		return nil, fmt.Errorf("tier %d out of range 1..3: %w", rec.Tier, ErrValidation)
	}
	if rec.Relevance < 1 || rec.Relevance > 5 {
		return nil, fmt.Errorf("relevance %d out of range 1..5: %w", rec.Relevance, ErrValidation)
	}
	if !validCategory(rec.Category) {
		return nil, fmt.Errorf("unknown category %q: %w", rec.Category, ErrValidation)
	}

	normURL, err := NormalizeURL(rec.URL)
	if err != nil {
		return nil, err
	}

	sess, err := s.LoadActive(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("no active session: %w", ErrNotFound)
	}

	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, MapTimeout(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	entry := &LogEntry{
		SessionID: sess.ID,
		NormURL:   normURL,
		URL:       rec.URL,
		Source:    rec.Source,
		Filter:    rec.Filter,
		Tier:      rec.Tier,
		Category:  rec.Category,
		Relevance: rec.Relevance,
		Used:      rec.Used,
		Notes:     rec.Notes,
		LoggedAt:  now,
		UpdatedAt: now,
	}

	var loggedAt string
	err = tx.QueryRowContext(ctx,
		"SELECT logged_at FROM entries WHERE session_id = ? AND norm_url = ?",
		sess.ID, normURL).Scan(&loggedAt)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entries (session_id, norm_url, url, source, filter, tier,
			                     category, relevance, used, notes, logged_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, normURL, rec.URL, rec.Source, rec.Filter, rec.Tier,
			rec.Category, rec.Relevance, rec.Used, rec.Notes,
			formatTS(now), formatTS(now),
		)
		if err != nil {
			return nil, MapTimeout(fmt.Errorf("insert entry: %w", err))
		}
		detail := fmt.Sprintf("%s logged at %s", normURL, formatTS(now))
		if err := s.auditTx(ctx, tx, "url_logged", detail, sess.ID); err != nil {
			return nil, err
		}

	case err == nil:
		// Keep the original logged_at; everything else takes the new values.
		loggedTS, perr := parseTimestamp(loggedAt)
		if perr != nil {
			return nil, fmt.Errorf("entry %s logged_at: %v: %w", normURL, perr, ErrCorrupt)
		}
		entry.LoggedAt = loggedTS
		_, err = tx.ExecContext(ctx, `
			UPDATE entries SET url = ?, source = ?, filter = ?, tier = ?,
			       category = ?, relevance = ?, used = ?, notes = ?, updated_at = ?
			WHERE session_id = ? AND norm_url = ?`,
			rec.URL, rec.Source, rec.Filter, rec.Tier,
			rec.Category, rec.Relevance, rec.Used, rec.Notes, formatTS(now),
			sess.ID, normURL,
		)
		if err != nil {
			return nil, MapTimeout(fmt.Errorf("update entry: %w", err))
		}
		detail := fmt.Sprintf("%s updated at %s", normURL, formatTS(now))
		if err := s.auditTx(ctx, tx, "url_updated", detail, sess.ID); err != nil {
			return nil, err
		}

	default:
		return nil, MapTimeout(fmt.Errorf("lookup entry: %w", err))
	}

	if err := s.touchSessionTx(ctx, tx, sess.ID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, MapTimeout(fmt.Errorf("commit: %w", err))
	}
	return entry, nil
}

// AddFinding records a synthesized observation against an active session.
// Archived or unknown session IDs fail with ErrNotFound: findings are an
// active-only operation.
func (s *LocalStore) AddFinding(ctx context.Context, sessionID, text string, urls []string) (*Finding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("finding text must not be empty: %w", ErrValidation)
	}

	if err := s.requireActive(ctx, sessionID); err != nil {
		return nil, err
	}

	now := s.now()
	f := &Finding{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Text:      text,
		URLs:      urls,
		CreatedAt: now,
	}
	if f.URLs == nil {
		f.URLs = []string{}
	}

	urlsJSON, err := json.Marshal(f.URLs)
	if err != nil {
		return nil, fmt.Errorf("marshal finding urls: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, MapTimeout(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		"INSERT INTO findings (id, session_id, text, urls, created_at) VALUES (?, ?, ?, ?, ?)",
		f.ID, f.SessionID, f.Text, string(urlsJSON), formatTS(now),
	)
	if err != nil {
		return nil, MapTimeout(fmt.Errorf("insert finding: %w", err))
	}

	if err := s.touchSessionTx(ctx, tx, sessionID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, MapTimeout(fmt.Errorf("commit: %w", err))
	}
	return f, nil
}

// SetThesis sets the working thesis on an active session.
func (s *LocalStore) SetThesis(ctx context.Context, sessionID, text string) error {
	if err := s.requireActive(ctx, sessionID); err != nil {
		return err
	}

	now := s.now()
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET thesis = ?, updated_at = ? WHERE id = ?",
		text, formatTS(now), sessionID,
	)
	if err != nil {
		return MapTimeout(fmt.Errorf("set thesis: %w", err))
	}
	return nil
}

// requireActive fails with ErrNotFound unless sessionID names the currently
// active session.
func (s *LocalStore) requireActive(ctx context.Context, sessionID string) error {
	var status string
	err := s.db.QueryRowContext(ctx,
		"SELECT status FROM sessions WHERE id = ?", sessionID).Scan(&status)
	if err == sql.ErrNoRows || (err == nil && status != StatusActive) {
		return fmt.Errorf("active session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return MapTimeout(fmt.Errorf("check session: %w", err))
	}
	return nil
}

// MarkArchived flips a session to archived. The transition is one-way; an
// already-archived session is left as is so archive retries stay safe.
func (s *LocalStore) MarkArchived(ctx context.Context, sessionID string, completedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = 'archived', completed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'active'`,
		formatTS(completedAt), formatTS(completedAt), sessionID,
	)
	if err != nil {
		return MapTimeout(fmt.Errorf("mark archived: %w", err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either unknown or already archived; distinguish for the caller.
		if _, err := s.GetSession(ctx, sessionID); err != nil {
			return err
		}
		return nil
	}

	_, err = s.insertAudit.ExecContext(ctx, "session_archived", "", sessionID, formatTS(completedAt))
	return MapTimeout(err)
}

// Entries returns the session's log entries ordered by first-logged time.
func (s *LocalStore) Entries(ctx context.Context, sessionID string) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, norm_url, url, source, filter, tier, category,
		       relevance, used, notes, logged_at, updated_at
		FROM entries WHERE session_id = ? ORDER BY logged_at, norm_url`, sessionID)
	if err != nil {
		return nil, MapTimeout(fmt.Errorf("query entries: %w", err))
	}
	defer rows.Close()

	entries := []LogEntry{}
	for rows.Next() {
		var e LogEntry
		var logged, updated string
		if err := rows.Scan(&e.SessionID, &e.NormURL, &e.URL, &e.Source, &e.Filter,
			&e.Tier, &e.Category, &e.Relevance, &e.Used, &e.Notes,
			&logged, &updated); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if e.LoggedAt, err = parseTimestamp(logged); err != nil {
			return nil, fmt.Errorf("entry %s logged_at: %v: %w", e.NormURL, err, ErrCorrupt)
		}
		if e.UpdatedAt, err = parseTimestamp(updated); err != nil {
			return nil, fmt.Errorf("entry %s updated_at: %v: %w", e.NormURL, err, ErrCorrupt)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetEntry returns a single entry by normalized URL.
func (s *LocalStore) GetEntry(ctx context.Context, sessionID, normURL string) (*LogEntry, error) {
	var e LogEntry
	var logged, updated string
	err := s.getEntry.QueryRowContext(ctx, sessionID, normURL).Scan(
		&e.SessionID, &e.NormURL, &e.URL, &e.Source, &e.Filter,
		&e.Tier, &e.Category, &e.Relevance, &e.Used, &e.Notes,
		&logged, &updated,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entry %s in session %s: %w", normURL, sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, MapTimeout(fmt.Errorf("get entry: %w", err))
	}
	if e.LoggedAt, err = parseTimestamp(logged); err != nil {
		return nil, fmt.Errorf("entry %s logged_at: %v: %w", normURL, err, ErrCorrupt)
	}
	if e.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return nil, fmt.Errorf("entry %s updated_at: %v: %w", normURL, err, ErrCorrupt)
	}
	return &e, nil
}

// Findings returns the session's findings in creation order.
func (s *LocalStore) Findings(ctx context.Context, sessionID string) ([]Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, text, urls, created_at FROM findings WHERE session_id = ? ORDER BY created_at, id",
		sessionID)
	if err != nil {
		return nil, MapTimeout(fmt.Errorf("query findings: %w", err))
	}
	defer rows.Close()

	findings := []Finding{}
	for rows.Next() {
		var f Finding
		var urlsJSON, created string
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Text, &urlsJSON, &created); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		if err := json.Unmarshal([]byte(urlsJSON), &f.URLs); err != nil {
			return nil, fmt.Errorf("finding %s url refs: %v: %w", f.ID, err, ErrCorrupt)
		}
		if f.CreatedAt, err = parseTimestamp(created); err != nil {
			return nil, fmt.Errorf("finding %s created_at: %v: %w", f.ID, err, ErrCorrupt)
		}
		findings = append(findings, f)
	}

	return findings, rows.Err()
}

// AuditTrail returns audit rows for a session, oldest first.
func (s *LocalStore) AuditTrail(ctx context.Context, sessionID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, action, detail, COALESCE(session_id, ''), ts FROM audit_log WHERE session_id = ? ORDER BY id",
		sessionID)
	if err != nil {
		return nil, MapTimeout(fmt.Errorf("query audit log: %w", err))
	}
	defer rows.Close()

	trail := []AuditEntry{}
	for rows.Next() {
		var a AuditEntry
		var ts string
		if err := rows.Scan(&a.ID, &a.Action, &a.Detail, &a.SessionID, &ts); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		if a.At, err = parseTimestamp(ts); err != nil {
			return nil, fmt.Errorf("audit row %d ts: %v: %w", a.ID, err, ErrCorrupt)
		}
		trail = append(trail, a)
	}

	return trail, rows.Err()
}

// Snapshot assembles the full serializable state of a session.
func (s *LocalStore) Snapshot(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	entries, err := s.Entries(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	findings, err := s.Findings(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &SessionSnapshot{Session: *sess, Entries: entries, Findings: findings}, nil
}

func (s *LocalStore) touchSessionTx(ctx context.Context, tx *sql.Tx, sessionID string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE sessions SET updated_at = ? WHERE id = ?", formatTS(at), sessionID)
	if err != nil {
		return MapTimeout(fmt.Errorf("touch session: %w", err))
	}
	return nil
}

func (s *LocalStore) auditTx(ctx context.Context, tx *sql.Tx, action, detail, sessionID string) error {
	_, err := tx.Stmt(s.insertAudit).ExecContext(ctx, action, detail, sessionID, formatTS(s.now()))
	if err != nil {
		return MapTimeout(fmt.Errorf("append audit row: %w", err))
	}
	return nil
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed — that is the caller's responsibility.
func (s *LocalStore) Close() error {
	stmts := []*sql.Stmt{s.getSession, s.getActive, s.getEntry, s.insertAudit}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
