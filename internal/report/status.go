// Package report is the read-only summarizer over the session store and
// archive index. It never mutates state and never fails: an unavailable
// store degrades to an explicit unknown snapshot instead of an error.
package report

import (
	"context"
	"time"

	"github.com/scoutproject/scout/internal/storage"
)

// ActiveSummary describes the currently active session.
type ActiveSummary struct {
	SessionID    string    `json:"session_id"`
	Topic        string    `json:"topic"`
	Workflow     string    `json:"workflow"`
	Environment  string    `json:"environment"`
	URLCount     int       `json:"url_count"`
	FindingCount int       `json:"finding_count"`
	HasThesis    bool      `json:"has_thesis"`
	Started      time.Time `json:"started"`
}

// StatusSnapshot is a point-in-time view of local and global state. Known
// is false when a backing store could not be read; whatever was readable is
// still populated.
type StatusSnapshot struct {
	Known  bool                         `json:"known"`
	Active *ActiveSummary               `json:"active,omitempty"`
	Recent []storage.ArchiveIndexRecord `json:"recent"`
}

// Reporter builds status snapshots.
type Reporter struct {
	local  *storage.LocalStore
	global *storage.GlobalStore
	recent int
}

// New creates a Reporter that lists the given number of recent archives.
// Either store may be nil, in which case its half of the snapshot reports
// unknown.
func New(local *storage.LocalStore, global *storage.GlobalStore, recent int) *Reporter {
	return &Reporter{local: local, global: global, recent: recent}
}

// Status summarizes the active session and the most recent archives.
func (r *Reporter) Status(ctx context.Context) *StatusSnapshot {
	snap := &StatusSnapshot{Known: true, Recent: []storage.ArchiveIndexRecord{}}

	if r.local == nil {
		snap.Known = false
	} else if sess, err := r.local.LoadActive(ctx); err != nil {
		snap.Known = false
	} else if sess != nil {
		summary := &ActiveSummary{
			SessionID:   sess.ID,
			Topic:       sess.Topic,
			Workflow:    sess.Workflow,
			Environment: sess.Environment,
			HasThesis:   sess.Thesis != "",
			Started:     sess.Created,
		}

		if entries, err := r.local.Entries(ctx, sess.ID); err != nil {
			snap.Known = false
		} else {
			summary.URLCount = len(entries)
		}
		if findings, err := r.local.Findings(ctx, sess.ID); err != nil {
			snap.Known = false
		} else {
			summary.FindingCount = len(findings)
		}

		snap.Active = summary
	}

	if r.global == nil {
		snap.Known = false
	} else if recent, err := r.global.RecentArchives(ctx, r.recent); err != nil {
		snap.Known = false
	} else {
		snap.Recent = recent
	}

	return snap
}
