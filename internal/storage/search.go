package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SearchQuery filters the archived-session search. An empty Term lists
// archives matching the remaining filters.
type SearchQuery struct {
	Term     string
	Workflow string
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// SearchMatch is one archived session matching a search, with the finding
// texts the term matched inside the snapshot.
type SearchMatch struct {
	Record   ArchiveIndexRecord `json:"record"`
	Findings []string           `json:"findings,omitempty"`
}

// likePattern wraps a term for substring LIKE matching, escaping the LIKE
// metacharacters.
func likePattern(term string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	return "%" + escaped + "%"
}

// SearchArchives finds archived sessions whose topic, key finding, or
// snapshot contains the term, newest first. Matching is case-insensitive
// keyword search; the snapshot entity is joined in so findings recorded
// during the session are searchable too.
func (s *GlobalStore) SearchArchives(ctx context.Context, q SearchQuery) ([]SearchMatch, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}

	var clauses []string
	var args []interface{}

	if q.Term != "" {
		pat := likePattern(q.Term)
		clauses = append(clauses,
			`(a.topic LIKE ? ESCAPE '\' OR a.key_finding LIKE ? ESCAPE '\' OR COALESCE(e.payload, '') LIKE ? ESCAPE '\')`)
		args = append(args, pat, pat, pat)
	}
	if q.Workflow != "" {
		clauses = append(clauses, "a.workflow = ?")
		args = append(args, q.Workflow)
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "a.archived_at >= ?")
		args = append(args, formatTS(q.Since))
	}
	if !q.Until.IsZero() {
		clauses = append(clauses, "a.archived_at <= ?")
		args = append(args, formatTS(q.Until))
	}

	query := `
		SELECT a.session_id, a.date, a.topic, a.workflow, a.duration_minutes,
		       a.url_count, a.key_finding, a.forced, a.archived_at,
		       COALESCE(e.payload, '')
		FROM archive_index a
		LEFT JOIN entities e ON e.kind = 'session' AND e.id = a.session_id`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY a.archived_at DESC LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapTimeout(fmt.Errorf("search archives: %w", err))
	}
	defer rows.Close()

	matches := []SearchMatch{}
	for rows.Next() {
		var m SearchMatch
		var archivedAt, payload string
		if err := rows.Scan(&m.Record.SessionID, &m.Record.Date, &m.Record.Topic,
			&m.Record.Workflow, &m.Record.DurationMinutes, &m.Record.URLCount,
			&m.Record.KeyFinding, &m.Record.Forced, &archivedAt, &payload); err != nil {
			return nil, fmt.Errorf("scan search match: %w", err)
		}
		if m.Record.ArchivedAt, err = parseTimestamp(archivedAt); err != nil {
			return nil, fmt.Errorf("archive record %s archived_at: %v: %w", m.Record.SessionID, err, ErrCorrupt)
		}
		if q.Term != "" && payload != "" {
			if m.Findings, err = matchingFindings(m.Record.SessionID, payload, q.Term); err != nil {
				return nil, err
			}
		}
		matches = append(matches, m)
	}

	return matches, rows.Err()
}

// matchingFindings extracts the finding texts containing term from a
// snapshot payload.
func matchingFindings(sessionID, payload, term string) ([]string, error) {
	var snap SessionSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("entity %s payload: %v: %w", sessionID, err, ErrCorrupt)
	}

	lower := strings.ToLower(term)
	var texts []string
	for _, f := range snap.Findings {
		if strings.Contains(strings.ToLower(f.Text), lower) {
			texts = append(texts, f.Text)
		}
	}
	return texts, nil
}
