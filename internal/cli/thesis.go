package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/scoutproject/scout/internal/storage"
)

// Execute implements the go-flags Commander interface for ThesisCommand.
func (c *ThesisCommand) Execute(args []string) error {
	env, err := c.globals.openEnv()
	if err != nil {
		return err
	}
	defer env.close()

	return c.executeWithEnv(env)
}

// executeWithEnv runs thesis against a provided environment (used by tests).
func (c *ThesisCommand) executeWithEnv(env *runEnv) error {
	ctx, cancel := env.opCtx()
	defer cancel()

	sess, err := env.local.LoadActive(ctx)
	if err != nil {
		return storage.MapTimeout(err)
	}
	if sess == nil {
		return fmt.Errorf("no active session: %w", storage.ErrNotFound)
	}

	if err := env.local.SetThesis(ctx, sess.ID, c.Args.Text); err != nil {
		return storage.MapTimeout(err)
	}

	if c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(map[string]interface{}{
			"session_id": sess.ID,
			"thesis":     c.Args.Text,
		})
	}

	fmt.Printf("Thesis set on %s\n", sess.ID)
	return nil
}
