package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/scoutproject/scout/internal/config"
	"github.com/scoutproject/scout/internal/storage"
)

// Execute implements the go-flags Commander interface for LogCommand.
func (c *LogCommand) Execute(args []string) error {
	env, err := c.globals.openEnv()
	if err != nil {
		return err
	}
	defer env.close()

	return c.executeWithEnv(env)
}

// executeWithEnv runs log against a provided environment (used by tests).
func (c *LogCommand) executeWithEnv(env *runEnv) error {
	switch c.Filter {
	case "viral", "groundbreaker", "manual", "":
	default:
		return fmt.Errorf("unknown filter %q: %w", c.Filter, storage.ErrValidation)
	}

	// Tier and category fall back to what the domain suggests.
	hint := config.DetectSource(c.Args.URL)
	tier := c.Tier
	if tier == 0 {
		tier = hint.Tier
	}
	category := c.Category
	if category == "" {
		category = hint.Category
	}

	ctx, cancel := env.opCtx()
	defer cancel()

	entry, err := env.local.RecordURL(ctx, storage.URLRecord{
		URL:       c.Args.URL,
		Source:    hint.Label,
		Filter:    c.Filter,
		Tier:      tier,
		Category:  category,
		Relevance: c.Relevance,
		Used:      c.Used,
		Notes:     c.Notes,
	})
	if err != nil {
		return storage.MapTimeout(err)
	}

	if c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"url":       entry.URL,
			"norm_url":  entry.NormURL,
			"source":    entry.Source,
			"tier":      entry.Tier,
			"category":  entry.Category,
			"relevance": entry.Relevance,
			"used":      entry.Used,
			"logged_at": entry.LoggedAt.Format(time.RFC3339),
		})
	}

	fmt.Printf("Logged: %s\n", entry.URL)
	fmt.Printf("  Source:    %s\n", entry.Source)
	fmt.Printf("  Tier:      %d\n", entry.Tier)
	fmt.Printf("  Category:  %s\n", entry.Category)
	fmt.Printf("  Relevance: %d/5\n", entry.Relevance)
	if entry.Used {
		fmt.Println("  Used:      yes")
	}
	if entry.Notes != "" {
		fmt.Printf("  Notes:     %s\n", entry.Notes)
	}

	return nil
}
