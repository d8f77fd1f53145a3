package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/scoutproject/scout/internal/storage"
)

// Execute implements the go-flags Commander interface for ExportCommand.
func (c *ExportCommand) Execute(args []string) error {
	env, err := c.globals.openEnv()
	if err != nil {
		return err
	}
	defer env.close()

	return c.executeWithEnv(env)
}

// executeWithEnv runs export against a provided environment (used by tests).
func (c *ExportCommand) executeWithEnv(env *runEnv) error {
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

	entries, err := env.local.Entries(ctx, sessionID)
	if err != nil {
		return storage.MapTimeout(err)
	}

	var out io.Writer = os.Stdout
	if c.Output != "-" {
		f, err := os.Create(c.Output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := writeCSV(out, entries); err != nil {
		return err
	}

	if c.Output != "-" && !c.globals.JSON {
		fmt.Printf("Exported %d entries to %s\n", len(entries), c.Output)
	}
	return nil
}

// writeCSV renders the URL log as the flat spreadsheet-consumable
// projection: one row per entry.
func writeCSV(out io.Writer, entries []storage.LogEntry) error {
	w := csv.NewWriter(out)

	if err := w.Write([]string{"url", "tier", "category", "relevance", "used", "notes", "logged_at"}); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	for _, e := range entries {
		row := []string{
			e.URL,
			strconv.Itoa(e.Tier),
			e.Category,
			strconv.Itoa(e.Relevance),
			strconv.FormatBool(e.Used),
			e.Notes,
			e.LoggedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}
