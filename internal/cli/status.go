package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/scoutproject/scout/internal/report"
)

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	env, err := c.globals.openEnv()
	if err != nil {
		return err
	}
	defer env.close()

	return c.executeWithEnv(env)
}

// executeWithEnv runs status against a provided environment (used by tests).
// Status is read-only and never fails: unreadable stores degrade to an
// explicit unknown snapshot.
func (c *StatusCommand) executeWithEnv(env *runEnv) error {
	ctx, cancel := env.opCtx()
	defer cancel()

	reporter := report.New(env.local, env.global, env.cfg.Report.RecentArchives)
	snap := reporter.Status(ctx)

	if c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Println("Scout Status")
	fmt.Println("============")
	fmt.Printf("Version:  %s\n", c.version)

	if !snap.Known {
		fmt.Println("State:    unknown (store unavailable)")
	}

	if snap.Active != nil {
		fmt.Println()
		fmt.Println("Active session:")
		fmt.Printf("  ID:       %s\n", snap.Active.SessionID)
		fmt.Printf("  Topic:    %s\n", snap.Active.Topic)
		fmt.Printf("  Workflow: %s\n", snap.Active.Workflow)
		fmt.Printf("  URLs:     %d\n", snap.Active.URLCount)
		fmt.Printf("  Findings: %d\n", snap.Active.FindingCount)
		if snap.Active.HasThesis {
			fmt.Println("  Thesis:   set")
		} else {
			fmt.Println("  Thesis:   not set")
		}
	} else if snap.Known {
		fmt.Println()
		fmt.Println("No active session. Run 'scout init <topic>' to start one.")
	}

	if len(snap.Recent) > 0 {
		fmt.Println()
		fmt.Println("Recent archives:")
		for _, rec := range snap.Recent {
			fmt.Printf("  %s  %-30s %3d URLs  %s\n",
				rec.Date, rec.Topic, rec.URLCount, formatDurationMinutes(rec.DurationMinutes))
		}
	}

	return nil
}
