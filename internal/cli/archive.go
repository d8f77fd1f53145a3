package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/scoutproject/scout/internal/archive"
	"github.com/scoutproject/scout/internal/storage"
)

// Execute implements the go-flags Commander interface for ArchiveCommand.
func (c *ArchiveCommand) Execute(args []string) error {
	env, err := c.globals.openEnv()
	if err != nil {
		return err
	}
	defer env.close()

	return c.executeWithEnv(env)
}

// executeWithEnv runs archive against a provided environment (used by tests).
func (c *ArchiveCommand) executeWithEnv(env *runEnv) error {
	ctx, cancel := env.opCtx()
	defer cancel()

	sessionID := c.Session
	if sessionID == "" {
		sess, err := env.local.LoadActive(ctx)
		if err != nil {
			return storage.MapTimeout(err)
		}
		if sess == nil {
			return fmt.Errorf("no active session: %w", storage.ErrNotFound)
		}
		sessionID = sess.ID
	}

	archiver := archive.New(env.local, env.global, env.cfg.Quality.MinURLs, env.log)
	rec, err := archiver.Archive(ctx, sessionID, c.Force)
	if err != nil {
		return storage.MapTimeout(err)
	}

	if c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"session_id":       rec.SessionID,
			"topic":            rec.Topic,
			"workflow":         rec.Workflow,
			"duration_minutes": rec.DurationMinutes,
			"url_count":        rec.URLCount,
			"key_finding":      rec.KeyFinding,
			"forced":           rec.Forced,
			"archived_at":      rec.ArchivedAt.Format(time.RFC3339),
		})
	}

	fmt.Printf("Session archived: %s\n", rec.SessionID)
	fmt.Printf("  Topic:       %s\n", rec.Topic)
	fmt.Printf("  URLs logged: %d\n", rec.URLCount)
	fmt.Printf("  Duration:    %s\n", formatDurationMinutes(rec.DurationMinutes))
	fmt.Printf("  Key finding: %s\n", rec.KeyFinding)
	if rec.Forced {
		fmt.Println("  Quality gate overridden (--force)")
	}
	fmt.Println()
	fmt.Printf("To continue: scout init --continue %s\n", rec.SessionID)

	return nil
}
