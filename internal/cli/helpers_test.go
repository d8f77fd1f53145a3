package cli

import (
	"bytes"
	"database/sql"
	"io"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scoutproject/scout/internal/config"
	"github.com/scoutproject/scout/internal/storage"
)

// newTestEnv builds a runEnv over in-memory stores with default config, the
// same environment Execute would assemble from disk.
func newTestEnv(t *testing.T) *runEnv {
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

	return &runEnv{
		cfg:      config.DefaultConfig(),
		local:    local,
		localDB:  localDB,
		global:   global,
		globalDB: globalDB,
		log:      zap.NewNop(),
	}
}

// captureOutput redirects stdout while fn runs and returns what was printed.
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	runErr := fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String(), runErr
}

func TestDetectEnvironment(t *testing.T) {
	t.Setenv("SCOUT_ENV", "")
	t.Setenv("VSCODE_PID", "")
	t.Setenv("TERM_PROGRAM", "")
	assert.Equal(t, storage.EnvCLI, detectEnvironment())

	t.Setenv("VSCODE_PID", "12345")
	assert.Equal(t, storage.EnvIDE, detectEnvironment())

	// The explicit override beats detection.
	t.Setenv("SCOUT_ENV", "web")
	assert.Equal(t, storage.EnvWeb, detectEnvironment())

	// Garbage in SCOUT_ENV falls through to detection.
	t.Setenv("SCOUT_ENV", "mainframe")
	assert.Equal(t, storage.EnvIDE, detectEnvironment())
}

func TestFormatDurationMinutes(t *testing.T) {
	assert.Equal(t, "45.0 minutes", formatDurationMinutes(45))
	assert.Equal(t, "119.5 minutes", formatDurationMinutes(119.5))
	assert.Equal(t, "2.0 hours", formatDurationMinutes(120))
	assert.Equal(t, "3.5 hours", formatDurationMinutes(210))
}

func TestBuildLogger(t *testing.T) {
	log, err := buildLogger(config.LoggingConfig{Level: "info"}, false)
	require.NoError(t, err)
	require.NotNil(t, log)

	_, err = buildLogger(config.LoggingConfig{Level: "loud"}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrValidation)
}
