package storage

import "time"

// Session statuses. A session moves absent -> active -> archived and never
// back; continuing archived work means a new active session that points at
// its predecessor.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Workflow kinds.
const (
	WorkflowResearch        = "research"
	WorkflowInnovationScout = "innovation-scout"
	WorkflowDeepResearch    = "deep-research"
)

// Environments a session can run in.
const (
	EnvCLI = "cli"
	EnvIDE = "ide"
	EnvWeb = "web"
)

// LogEntry categories.
var Categories = []string{"research", "industry", "benchmark", "social", "lab", "other"}

// Session represents one research engagement.
type Session struct {
	ID          string `json:"id"`
	Topic       string `json:"topic"`
	Workflow    string `json:"workflow"`
	Environment string `json:"environment"`
	Status      string `json:"status"`
	Predecessor string `json:"predecessor,omitempty"` // session ID this one continues, if any
	Thesis      string `json:"thesis,omitempty"`

	// Suggested search queries rendered at creation time.
	ViralQuery         string `json:"viral_query,omitempty"`
	GroundbreakerQuery string `json:"groundbreaker_query,omitempty"`

	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
	Completed time.Time `json:"completed,omitempty"` // zero until archived
}

// LogEntry is one recorded URL observation within a session. Entries are
// keyed by normalized URL: re-logging the same URL updates the entry in
// place and leaves an audit row behind.
type LogEntry struct {
	SessionID string    `json:"session_id"`
	NormURL   string    `json:"norm_url"`
	URL       string    `json:"url"`
	Source    string    `json:"source"` // detected source label ("GitHub", "arXiv", ...)
	Filter    string    `json:"filter"` // "viral", "groundbreaker", "manual", or ""
	Tier      int       `json:"tier"`   // 1..3
	Category  string    `json:"category"`
	Relevance int       `json:"relevance"` // 1..5
	Used      bool      `json:"used"`
	Notes     string    `json:"notes,omitempty"`
	LoggedAt  time.Time `json:"logged_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Finding is a synthesized observation tied to zero or more logged URLs by
// weak reference.
type Finding struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	URLs      []string  `json:"urls"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry is one append-only audit trail row.
type AuditEntry struct {
	ID        int64
	Action    string
	Detail    string
	SessionID string
	At        time.Time
}

// SessionSnapshot is the full serializable state of a session. It is the
// payload format for sync entities and archived sessions.
type SessionSnapshot struct {
	Session  Session    `json:"session"`
	Entries  []LogEntry `json:"entries"`
	Findings []Finding  `json:"findings"`
}

// ArchiveIndexRecord is one row of the global archive index, written when a
// session is archived and immutable afterwards except for a duration
// correction when archiving was resumed.
type ArchiveIndexRecord struct {
	SessionID       string    `json:"session_id"`
	Date            string    `json:"date"` // YYYY-MM-DD
	Topic           string    `json:"topic"`
	Workflow        string    `json:"workflow"`
	DurationMinutes float64   `json:"duration_minutes"`
	URLCount        int       `json:"url_count"`
	KeyFinding      string    `json:"key_finding"`
	Forced          bool      `json:"forced"` // quality gate overridden
	ArchivedAt      time.Time `json:"archived_at"`
}

// Entity kinds known to the sync engine.
const (
	KindSession       = "session"
	KindArchiveRecord = "archive-record"
)

// EntityRef identifies one syncable entity and its freshness stamp.
type EntityRef struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entity is a syncable unit: a ref plus its serialized payload.
type Entity struct {
	EntityRef
	Payload []byte `json:"payload"`
}
