package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/scoutproject/scout/internal/storage"
)

// parseAge parses a human-friendly age like "30d", "12h" or "45m" into a
// duration.
func parseAge(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid age %q: %w", s, storage.ErrValidation)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid age %q: %w", s, storage.ErrValidation)
	}

	switch s[len(s)-1] {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	default:
		return 0, fmt.Errorf("unknown age unit in %q (use d, h or m): %w", s, storage.ErrValidation)
	}
}

// jsonSearchOutput is the machine-readable shape of a search.
type jsonSearchOutput struct {
	Count   int                   `json:"count"`
	Term    string                `json:"term"`
	Results []storage.SearchMatch `json:"results"`
}

// Execute implements the go-flags Commander interface for SearchCommand.
func (c *SearchCommand) Execute(args []string) error {
	env, err := c.globals.openEnv()
	if err != nil {
		return err
	}
	defer env.close()

	return c.executeWithEnv(env)
}

// executeWithEnv runs the search against a provided environment (used by
// tests).
func (c *SearchCommand) executeWithEnv(env *runEnv) error {
	q := storage.SearchQuery{
		Term:     c.Args.Term,
		Workflow: c.Workflow,
		Limit:    c.Limit,
		Offset:   c.Offset,
	}

	now := time.Now()
	if c.Since != "" {
		age, err := parseAge(c.Since)
		if err != nil {
			return err
		}
		q.Since = now.Add(-age)
	}
	if c.Until != "" {
		age, err := parseAge(c.Until)
		if err != nil {
			return err
		}
		q.Until = now.Add(-age)
	}

	ctx, cancel := env.opCtx()
	defer cancel()

	matches, err := env.global.SearchArchives(ctx, q)
	if err != nil {
		return err
	}

	env.log.Debug("search complete",
		zap.String("term", c.Args.Term), zap.Int("matches", len(matches)))

	if c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonSearchOutput{
			Count:   len(matches),
			Term:    c.Args.Term,
			Results: matches,
		})
	}

	return c.printHuman(matches)
}

func (c *SearchCommand) printHuman(matches []storage.SearchMatch) error {
	if len(matches) == 0 {
		if c.Args.Term != "" {
			fmt.Printf("No archived sessions match %q\n", c.Args.Term)
		} else {
			fmt.Println("No archived sessions found")
		}
		return nil
	}

	if c.Args.Term != "" {
		fmt.Printf("Found %d archived session(s) for %q:\n\n", len(matches), c.Args.Term)
	} else {
		fmt.Printf("Found %d archived session(s):\n\n", len(matches))
	}

	for i, m := range matches {
		rec := m.Record
		fmt.Printf("%d. %s [%s]\n", c.Offset+i+1, rec.Topic, rec.SessionID)
		fmt.Printf("   %s  %s  %d URLs  %s\n",
			rec.Date, rec.Workflow, rec.URLCount, formatDurationMinutes(rec.DurationMinutes))
		if rec.KeyFinding != "" {
			fmt.Printf("   %s\n", rec.KeyFinding)
		}
		for _, text := range m.Findings {
			if text == rec.KeyFinding {
				continue
			}
			fmt.Printf("   - %s\n", text)
		}
		if i < len(matches)-1 {
			fmt.Println()
		}
	}

	return nil
}
