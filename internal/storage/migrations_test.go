package storage

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableNames(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type = 'table'")
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}

func TestLocalMigrationsCreateSchema(t *testing.T) {
	db := openMemDB(t)
	require.NoError(t, NewLocalMigrationRunner(db).Run())

	names := tableNames(t, db)
	assert.Contains(t, names, "sessions")
	assert.Contains(t, names, "entries")
	assert.Contains(t, names, "findings")
	assert.Contains(t, names, "audit_log")
	assert.Contains(t, names, "schema_migrations")
}

func TestGlobalMigrationsCreateSchema(t *testing.T) {
	db := openMemDB(t)
	require.NoError(t, NewGlobalMigrationRunner(db).Run())

	names := tableNames(t, db)
	assert.Contains(t, names, "archive_index")
	assert.Contains(t, names, "entities")
	assert.Contains(t, names, "schema_migrations")
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := openMemDB(t)

	require.NoError(t, NewLocalMigrationRunner(db).Run())
	require.NoError(t, NewLocalMigrationRunner(db).Run())

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "migration should be recorded exactly once")
}

func TestMigrationsRecordVersionAndName(t *testing.T) {
	db := openMemDB(t)
	require.NoError(t, NewGlobalMigrationRunner(db).Run())

	var version int
	var name string
	err := db.QueryRow("SELECT version, name FROM schema_migrations").Scan(&version, &name)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, "global_initial_schema", name)
}
