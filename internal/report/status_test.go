package report

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutproject/scout/internal/storage"
)

func openStores(t *testing.T) (*storage.LocalStore, *storage.GlobalStore) {
	t.Helper()

	localDB, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { localDB.Close() })
	require.NoError(t, storage.NewLocalMigrationRunner(localDB).Run())
	local, err := storage.NewLocalStore(localDB)
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	globalDB, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { globalDB.Close() })
	require.NoError(t, storage.NewGlobalMigrationRunner(globalDB).Run())
	global, err := storage.NewGlobalStore(globalDB)
	require.NoError(t, err)
	t.Cleanup(func() { global.Close() })

	return local, global
}

func TestStatus_EmptyStores(t *testing.T) {
	local, global := openStores(t)

	snap := New(local, global, 5).Status(context.Background())
	assert.True(t, snap.Known)
	assert.Nil(t, snap.Active)
	assert.Empty(t, snap.Recent)
}

func TestStatus_ActiveSessionSummary(t *testing.T) {
	local, global := openStores(t)
	ctx := context.Background()

	sess, err := local.CreateSession(ctx, storage.CreateSessionParams{
		Topic: "status check", Workflow: storage.WorkflowResearch, Environment: storage.EnvIDE,
	})
	require.NoError(t, err)

	_, err = local.RecordURL(ctx, storage.URLRecord{
		URL: "https://example.com/a", Tier: 1, Category: "research", Relevance: 4,
	})
	require.NoError(t, err)
	_, err = local.RecordURL(ctx, storage.URLRecord{
		URL: "https://example.com/b", Tier: 2, Category: "industry", Relevance: 3,
	})
	require.NoError(t, err)
	_, err = local.AddFinding(ctx, sess.ID, "one finding", nil)
	require.NoError(t, err)

	snap := New(local, global, 5).Status(ctx)
	require.True(t, snap.Known)
	require.NotNil(t, snap.Active)
	assert.Equal(t, sess.ID, snap.Active.SessionID)
	assert.Equal(t, "status check", snap.Active.Topic)
	assert.Equal(t, storage.EnvIDE, snap.Active.Environment)
	assert.Equal(t, 2, snap.Active.URLCount)
	assert.Equal(t, 1, snap.Active.FindingCount)
	assert.False(t, snap.Active.HasThesis)

	require.NoError(t, local.SetThesis(ctx, sess.ID, "a thesis"))
	snap = New(local, global, 5).Status(ctx)
	require.NotNil(t, snap.Active)
	assert.True(t, snap.Active.HasThesis)
}

func TestStatus_RecentArchives(t *testing.T) {
	local, global := openStores(t)
	ctx := context.Background()

	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		at := base.Add(time.Duration(i) * time.Hour)
		rec := &storage.ArchiveIndexRecord{
			SessionID: id, Date: at.Format("2006-01-02"), Topic: id,
			Workflow: storage.WorkflowResearch, URLCount: 3, KeyFinding: "f",
			ArchivedAt: at,
		}
		ent := &storage.Entity{
			EntityRef: storage.EntityRef{Kind: storage.KindSession, ID: id, UpdatedAt: at},
			Payload:   []byte("{}"),
		}
		require.NoError(t, global.WriteArchive(ctx, rec, ent))
	}

	snap := New(local, global, 2).Status(ctx)
	assert.True(t, snap.Known)
	require.Len(t, snap.Recent, 2)
	assert.Equal(t, "third", snap.Recent[0].SessionID)
	assert.Equal(t, "second", snap.Recent[1].SessionID)
}

func TestStatus_NilStoresDegradeToUnknown(t *testing.T) {
	local, global := openStores(t)
	ctx := context.Background()

	snap := New(nil, global, 5).Status(ctx)
	assert.False(t, snap.Known)
	assert.NotNil(t, snap.Recent, "the readable half is still populated")

	snap = New(local, nil, 5).Status(ctx)
	assert.False(t, snap.Known)
	assert.Nil(t, snap.Active)

	snap = New(nil, nil, 5).Status(ctx)
	assert.False(t, snap.Known)
}

func TestStatus_UnreadableStoreDegradesNotErrors(t *testing.T) {
	ctx := context.Background()

	// A store over a closed database cannot be read; status must still
	// come back, flagged unknown.
	localDB, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	require.NoError(t, storage.NewLocalMigrationRunner(localDB).Run())
	local, err := storage.NewLocalStore(localDB)
	require.NoError(t, err)
	require.NoError(t, localDB.Close())

	_, global := openStores(t)

	snap := New(local, global, 5).Status(ctx)
	assert.False(t, snap.Known)
	assert.NotNil(t, snap.Recent)
}
