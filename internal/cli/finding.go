package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/scoutproject/scout/internal/storage"
)

// Execute implements the go-flags Commander interface for FindingCommand.
func (c *FindingCommand) Execute(args []string) error {
	env, err := c.globals.openEnv()
	if err != nil {
		return err
	}
	defer env.close()

	return c.executeWithEnv(env)
}

// executeWithEnv runs finding against a provided environment (used by tests).
func (c *FindingCommand) executeWithEnv(env *runEnv) error {
	ctx, cancel := env.opCtx()
	defer cancel()

	sess, err := env.local.LoadActive(ctx)
	if err != nil {
		return storage.MapTimeout(err)
	}
	if sess == nil {
		return fmt.Errorf("no active session: %w", storage.ErrNotFound)
	}

	f, err := env.local.AddFinding(ctx, sess.ID, c.Args.Text, c.URLs)
	if err != nil {
		return storage.MapTimeout(err)
	}

	if c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"id":         f.ID,
			"session_id": f.SessionID,
			"text":       f.Text,
			"urls":       f.URLs,
		})
	}

	fmt.Printf("Finding recorded (%s)\n", f.ID)
	if len(f.URLs) > 0 {
		fmt.Printf("  References: %d URL(s)\n", len(f.URLs))
	}
	return nil
}
