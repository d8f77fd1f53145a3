package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutproject/scout/internal/report"
	"github.com/scoutproject/scout/internal/storage"
)

func initSession(t *testing.T, env *runEnv, topic string) *storage.Session {
	t.Helper()

	cmd := &InitCommand{Workflow: "research", Environment: "cli", globals: &GlobalFlags{}}
	cmd.Args.Topic = topic

	_, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.NoError(t, err)

	sess, err := env.local.LoadActive(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)
	return sess
}

func logURL(t *testing.T, env *runEnv, url string) {
	t.Helper()

	cmd := &LogCommand{Relevance: 3, Filter: "manual", globals: &GlobalFlags{}}
	cmd.Args.URL = url

	_, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.NoError(t, err)
}

func TestInitCommand(t *testing.T) {
	env := newTestEnv(t)

	cmd := &InitCommand{Workflow: "research", Environment: "cli", globals: &GlobalFlags{}}
	cmd.Args.Topic = "agentic retrieval"

	out, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.NoError(t, err)
	assert.Contains(t, out, "Session initialized:")
	assert.Contains(t, out, "agentic retrieval")
	assert.Contains(t, out, "Suggested queries:")
	assert.Contains(t, out, "stars:>500")
	assert.Contains(t, out, "stars:10..200")
}

func TestInitCommand_JSON(t *testing.T) {
	env := newTestEnv(t)

	cmd := &InitCommand{Workflow: "research", Environment: "ide", globals: &GlobalFlags{JSON: true}}
	cmd.Args.Topic = "json output"

	out, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "json output", payload["topic"])
	assert.Equal(t, "ide", payload["environment"])
	assert.NotEmpty(t, payload["session_id"])
}

func TestInitCommand_SecondSessionConflicts(t *testing.T) {
	env := newTestEnv(t)
	initSession(t, env, "first")

	cmd := &InitCommand{Workflow: "research", Environment: "cli", globals: &GlobalFlags{}}
	cmd.Args.Topic = "second"

	_, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.Error(t, err)
	assert.Equal(t, exitConflict, ExitCode(err))
}

func TestInitCommand_ContinueInheritsTopic(t *testing.T) {
	env := newTestEnv(t)
	sess := initSession(t, env, "long-running thread")
	for _, u := range []string{"https://a.com/1", "https://a.com/2", "https://a.com/3"} {
		logURL(t, env, u)
	}

	arch := &ArchiveCommand{globals: &GlobalFlags{}}
	_, err := captureOutput(t, func() error { return arch.executeWithEnv(env) })
	require.NoError(t, err)

	// Generated session IDs have second resolution; move the clock so the
	// continuation session cannot collide with its predecessor.
	env.local.SetClock(func() time.Time { return time.Now().Add(time.Hour) })

	cont := &InitCommand{Workflow: "research", Environment: "cli", Continue: sess.ID, globals: &GlobalFlags{}}
	out, err := captureOutput(t, func() error { return cont.executeWithEnv(env) })
	require.NoError(t, err)
	assert.Contains(t, out, "long-running thread")
	assert.Contains(t, out, "Continues:   "+sess.ID)

	active, err := env.local.LoadActive(context.Background())
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, sess.ID, active.Predecessor)
	assert.Equal(t, "long-running thread", active.Topic)
}

func TestInitCommand_ContinuePullsFromGlobal(t *testing.T) {
	// Archive in one environment, continue from a fresh one sharing only
	// the global store.
	envA := newTestEnv(t)
	sess := initSession(t, envA, "cross environment")
	for _, u := range []string{"https://a.com/1", "https://a.com/2", "https://a.com/3"} {
		logURL(t, envA, u)
	}
	arch := &ArchiveCommand{globals: &GlobalFlags{}}
	_, err := captureOutput(t, func() error { return arch.executeWithEnv(envA) })
	require.NoError(t, err)

	envB := newTestEnv(t)
	envB.global = envA.global
	envB.globalDB = envA.globalDB
	envB.local.SetClock(func() time.Time { return time.Now().Add(time.Hour) })

	cont := &InitCommand{Workflow: "research", Environment: "cli", Continue: sess.ID, globals: &GlobalFlags{}}
	_, err = captureOutput(t, func() error { return cont.executeWithEnv(envB) })
	require.NoError(t, err)

	// The predecessor snapshot was pulled into the new local store.
	pred, err := envB.local.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusArchived, pred.Status)

	entries, err := envB.local.Entries(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestInitCommand_ContinueUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	cmd := &InitCommand{Workflow: "research", Environment: "cli", Continue: "no-such-id", globals: &GlobalFlags{}}
	_, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.Error(t, err)
	assert.Equal(t, exitNotFound, ExitCode(err))
}

func TestLogCommand_DomainDetection(t *testing.T) {
	env := newTestEnv(t)
	initSession(t, env, "detection")

	cmd := &LogCommand{Relevance: 4, Filter: "viral", globals: &GlobalFlags{}}
	cmd.Args.URL = "https://arxiv.org/abs/2406.01234"

	out, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.NoError(t, err)
	assert.Contains(t, out, "Source:    arXiv")
	assert.Contains(t, out, "Tier:      1")
	assert.Contains(t, out, "Category:  research")
	assert.Contains(t, out, "Relevance: 4/5")
}

func TestLogCommand_ExplicitFlagsBeatDetection(t *testing.T) {
	env := newTestEnv(t)
	initSession(t, env, "overrides")

	cmd := &LogCommand{Tier: 3, Category: "other", Relevance: 2, Filter: "manual", globals: &GlobalFlags{}}
	cmd.Args.URL = "https://arxiv.org/abs/2406.01234"

	out, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.NoError(t, err)
	assert.Contains(t, out, "Tier:      3")
	assert.Contains(t, out, "Category:  other")
}

func TestLogCommand_UnknownFilter(t *testing.T) {
	env := newTestEnv(t)
	initSession(t, env, "filters")

	cmd := &LogCommand{Relevance: 3, Filter: "trending", globals: &GlobalFlags{}}
	cmd.Args.URL = "https://example.com"

	_, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.Error(t, err)
	assert.Equal(t, exitValidation, ExitCode(err))
}

func TestLogCommand_NoActiveSession(t *testing.T) {
	env := newTestEnv(t)

	cmd := &LogCommand{Relevance: 3, Filter: "manual", globals: &GlobalFlags{}}
	cmd.Args.URL = "https://example.com"

	_, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.Error(t, err)
	assert.Equal(t, exitNotFound, ExitCode(err))
}

func TestFindingCommand(t *testing.T) {
	env := newTestEnv(t)
	sess := initSession(t, env, "findings")

	cmd := &FindingCommand{URLs: []string{"https://a.com/1"}, globals: &GlobalFlags{}}
	cmd.Args.Text = "the key insight"

	out, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.NoError(t, err)
	assert.Contains(t, out, "Finding recorded")
	assert.Contains(t, out, "References: 1 URL(s)")

	findings, err := env.local.Findings(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "the key insight", findings[0].Text)
}

func TestThesisCommand(t *testing.T) {
	env := newTestEnv(t)
	sess := initSession(t, env, "thesis")

	cmd := &ThesisCommand{globals: &GlobalFlags{}}
	cmd.Args.Text = "the working thesis"

	out, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.NoError(t, err)
	assert.Contains(t, out, "Thesis set on "+sess.ID)

	got, err := env.local.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "the working thesis", got.Thesis)

	// Without an active session the command degrades to not-found.
	require.NoError(t, env.local.MarkArchived(context.Background(), sess.ID, got.Updated))
	_, err = captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.Error(t, err)
	assert.Equal(t, exitNotFound, ExitCode(err))
}

func TestStatusCommand(t *testing.T) {
	env := newTestEnv(t)

	cmd := &StatusCommand{globals: &GlobalFlags{}, version: "test"}

	out, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.NoError(t, err)
	assert.Contains(t, out, "No active session")

	initSession(t, env, "status topic")
	logURL(t, env, "https://example.com/a")

	out, err = captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.NoError(t, err)
	assert.Contains(t, out, "Active session:")
	assert.Contains(t, out, "status topic")
	assert.Contains(t, out, "URLs:     1")
	assert.Contains(t, out, "Thesis:   not set")
}

func TestStatusCommand_JSON(t *testing.T) {
	env := newTestEnv(t)
	initSession(t, env, "json status")

	cmd := &StatusCommand{globals: &GlobalFlags{JSON: true}, version: "test"}
	out, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.NoError(t, err)

	var snap report.StatusSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.True(t, snap.Known)
	require.NotNil(t, snap.Active)
	assert.Equal(t, "json status", snap.Active.Topic)
}

func TestArchiveCommand(t *testing.T) {
	env := newTestEnv(t)
	sess := initSession(t, env, "to archive")
	for _, u := range []string{"https://a.com/1", "https://a.com/2", "https://a.com/3"} {
		logURL(t, env, u)
	}

	cmd := &ArchiveCommand{globals: &GlobalFlags{}}
	out, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.NoError(t, err)
	assert.Contains(t, out, "Session archived: "+sess.ID)
	assert.Contains(t, out, "URLs logged: 3")
	assert.Contains(t, out, "To continue: scout init --continue "+sess.ID)

	_, err = env.global.GetArchiveRecord(context.Background(), sess.ID)
	require.NoError(t, err)
}

func TestArchiveCommand_QualityGateAndForce(t *testing.T) {
	env := newTestEnv(t)
	initSession(t, env, "thin")
	logURL(t, env, "https://a.com/only")

	cmd := &ArchiveCommand{globals: &GlobalFlags{}}
	_, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.Error(t, err)
	assert.Equal(t, exitIncomplete, ExitCode(err))

	forced := &ArchiveCommand{Force: true, globals: &GlobalFlags{}}
	out, err := captureOutput(t, func() error { return forced.executeWithEnv(env) })
	require.NoError(t, err)
	assert.Contains(t, out, "Quality gate overridden")
}

func TestArchiveCommand_NoActiveSession(t *testing.T) {
	env := newTestEnv(t)

	cmd := &ArchiveCommand{globals: &GlobalFlags{}}
	_, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.Error(t, err)
	assert.Equal(t, exitNotFound, ExitCode(err))
}

func TestSyncCommand(t *testing.T) {
	env := newTestEnv(t)
	sess := initSession(t, env, "sync me")

	cmd := &SyncCommand{Direction: "push", globals: &GlobalFlags{}}
	out, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.NoError(t, err)
	assert.Contains(t, out, "Sync (push): 1 pushed, 0 pulled, 0 unchanged")

	_, err = env.global.GetEntity(context.Background(), storage.KindSession, sess.ID)
	require.NoError(t, err)
}

func TestSyncCommand_UnknownDirection(t *testing.T) {
	env := newTestEnv(t)

	cmd := &SyncCommand{Direction: "sideways", globals: &GlobalFlags{}}
	_, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.Error(t, err)
	assert.Equal(t, exitValidation, ExitCode(err))
}

func TestExportCommand_Stdout(t *testing.T) {
	env := newTestEnv(t)
	initSession(t, env, "export")
	logURL(t, env, "https://arxiv.org/abs/1")
	logURL(t, env, "https://example.com/post")

	cmd := &ExportCommand{Output: "-", globals: &GlobalFlags{}}
	out, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus two rows")
	assert.Equal(t, []string{"url", "tier", "category", "relevance", "used", "notes", "logged_at"}, records[0])
	assert.Equal(t, "https://arxiv.org/abs/1", records[1][0])
	assert.Equal(t, "1", records[1][1], "arXiv detects as tier 1")
}

func TestExportCommand_File(t *testing.T) {
	env := newTestEnv(t)
	initSession(t, env, "export to file")
	logURL(t, env, "https://example.com/a")

	path := filepath.Join(t.TempDir(), "log.csv")
	cmd := &ExportCommand{Output: path, globals: &GlobalFlags{}}

	out, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 entries to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://example.com/a")
}

func TestExportCommand_NoActiveSession(t *testing.T) {
	env := newTestEnv(t)

	cmd := &ExportCommand{Output: "-", globals: &GlobalFlags{}}
	_, err := captureOutput(t, func() error { return cmd.executeWithEnv(env) })
	require.Error(t, err)
	assert.Equal(t, exitNotFound, ExitCode(err))
}
