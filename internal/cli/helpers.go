package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/scoutproject/scout/internal/config"
	"github.com/scoutproject/scout/internal/storage"
)

// runEnv bundles everything a subcommand needs: resolved config, opened
// stores, and a logger. Tests construct one directly around in-memory
// stores; Execute methods build it from disk via openEnv.
type runEnv struct {
	cfg      *config.Config
	local    *storage.LocalStore
	localDB  *sql.DB
	global   *storage.GlobalStore
	globalDB *sql.DB
	log      *zap.Logger
}

// openEnv resolves config, opens and migrates both databases, and builds
// the logger.
func (g *GlobalFlags) openEnv() (*runEnv, error) {
	var cfg *config.Config
	var err error
	if g.Config != "" {
		cfg, err = config.Load(g.Config)
	} else {
		cfg, err = config.LoadOrCreate()
	}
	if err != nil {
		return nil, err
	}

	log, err := buildLogger(cfg.Logging, g.Verbose)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	localDB, local, err := openLocalStore(cfg)
	if err != nil {
		return nil, err
	}

	globalDB, global, err := openGlobalStore(cfg)
	if err != nil {
		local.Close()
		localDB.Close()
		return nil, err
	}

	return &runEnv{
		cfg:      cfg,
		local:    local,
		localDB:  localDB,
		global:   global,
		globalDB: globalDB,
		log:      log,
	}, nil
}

// close releases stores and flushes the logger.
func (e *runEnv) close() {
	if e.local != nil {
		e.local.Close()
	}
	if e.localDB != nil {
		e.localDB.Close()
	}
	if e.global != nil {
		e.global.Close()
	}
	if e.globalDB != nil {
		e.globalDB.Close()
	}
	if e.log != nil {
		_ = e.log.Sync()
	}
}

// opCtx returns a context bounded by the configured operation timeout.
// Every store call runs under it so no operation blocks indefinitely.
func (e *runEnv) opCtx() (context.Context, context.CancelFunc) {
	timeout := time.Duration(e.cfg.Sync.TimeoutSeconds) * time.Second
	return context.WithTimeout(context.Background(), timeout)
}

// openLocalStore opens the per-project database under the current working
// directory.
func openLocalStore(cfg *config.Config) (*sql.DB, *storage.LocalStore, error) {
	dir := cfg.Storage.LocalDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create local directory: %w", err)
	}

	dbPath := filepath.Join(dir, cfg.Storage.LocalFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, nil, fmt.Errorf("open local database: %w", err)
	}

	runner := storage.NewLocalMigrationRunner(db)
	if err := runner.Run(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run local migrations: %w", err)
	}

	store, err := storage.NewLocalStore(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create local store: %w", err)
	}

	return db, store, nil
}

// openGlobalStore opens the global store shared across environments.
func openGlobalStore(cfg *config.Config) (*sql.DB, *storage.GlobalStore, error) {
	dir, err := config.ExpandPath(cfg.Storage.GlobalDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create global directory: %w", err)
	}

	dbPath := filepath.Join(dir, cfg.Storage.GlobalFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, nil, fmt.Errorf("open global database: %w", err)
	}

	runner := storage.NewGlobalMigrationRunner(db)
	if err := runner.Run(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run global migrations: %w", err)
	}

	store, err := storage.NewGlobalStore(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create global store: %w", err)
	}

	return db, store, nil
}

// buildLogger constructs the zap logger from the logging config. Verbose
// bumps the level to debug regardless of config.
func buildLogger(cfg config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("unknown log level %q: %w", cfg.Level, storage.ErrValidation)
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.File != "" {
		zcfg.OutputPaths = []string{cfg.File}
	} else {
		zcfg.OutputPaths = []string{"stderr"}
	}

	return zcfg.Build()
}

// detectEnvironment guesses which environment Scout runs in. SCOUT_ENV
// overrides detection.
func detectEnvironment() string {
	switch os.Getenv("SCOUT_ENV") {
	case storage.EnvCLI:
		return storage.EnvCLI
	case storage.EnvIDE:
		return storage.EnvIDE
	case storage.EnvWeb:
		return storage.EnvWeb
	}
	if os.Getenv("VSCODE_PID") != "" || os.Getenv("TERM_PROGRAM") == "vscode" {
		return storage.EnvIDE
	}
	return storage.EnvCLI
}

// formatDurationMinutes renders a fractional minute count for humans.
func formatDurationMinutes(minutes float64) string {
	if minutes >= 120 {
		return fmt.Sprintf("%.1f hours", minutes/60)
	}
	return fmt.Sprintf("%.1f minutes", minutes)
}
