package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/scoutproject/scout/internal/storage"
	"github.com/scoutproject/scout/internal/syncer"
)

// Execute implements the go-flags Commander interface for SyncCommand.
func (c *SyncCommand) Execute(args []string) error {
	env, err := c.globals.openEnv()
	if err != nil {
		return err
	}
	defer env.close()

	return c.executeWithEnv(env)
}

// executeWithEnv runs sync against a provided environment (used by tests).
// A partial failure still prints the report before the error surfaces, so
// what committed is never hidden.
func (c *SyncCommand) executeWithEnv(env *runEnv) error {
	ctx, cancel := env.opCtx()
	defer cancel()

	engine := syncer.New(env.local, env.global, env.log)
	rep, err := engine.Sync(ctx, syncer.Direction(c.Direction))
	if rep != nil {
		if perr := c.printReport(rep); perr != nil && err == nil {
			err = perr
		}
	}
	return storage.MapTimeout(err)
}

func (c *SyncCommand) printReport(rep *syncer.Report) error {
	if c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Printf("Sync (%s): %d pushed, %d pulled, %d unchanged\n",
		c.Direction, len(rep.Pushed), len(rep.Pulled), len(rep.Unchanged))

	for _, conflict := range rep.Conflicts {
		fmt.Printf("  conflict %s/%s resolved: %s wins\n", conflict.Kind, conflict.ID, conflict.Winner)
	}
	for _, failure := range rep.Failures {
		fmt.Printf("  failed %s/%s: %s\n", failure.Kind, failure.ID, failure.Error)
	}
	if rep.Partial {
		fmt.Println("  sync incomplete: entities after the failure were left untouched")
	}

	return nil
}
