package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/scoutproject/scout/internal/storage"
)

// Execute implements the go-flags Commander interface for InitCommand.
func (c *InitCommand) Execute(args []string) error {
	if c.Args.Topic == "" && c.Continue == "" {
		return fmt.Errorf("either a topic or --continue SESSION_ID is required: %w", storage.ErrValidation)
	}

	env, err := c.globals.openEnv()
	if err != nil {
		return err
	}
	defer env.close()

	return c.executeWithEnv(env)
}

// executeWithEnv runs init against a provided environment (used by tests).
func (c *InitCommand) executeWithEnv(env *runEnv) error {
	ctx, cancel := env.opCtx()
	defer cancel()

	environment := c.Environment
	if environment == "" {
		environment = detectEnvironment()
	}

	params := storage.CreateSessionParams{
		Topic:       c.Args.Topic,
		Workflow:    c.Workflow,
		Environment: environment,
	}

	if c.Continue != "" {
		pred, err := c.loadPredecessor(env, c.Continue)
		if err != nil {
			return err
		}
		params.Predecessor = pred.ID
		if params.Topic == "" {
			params.Topic = pred.Topic
		}
	}

	queries := env.cfg.Filters.BuildQueries(params.Topic, time.Now())
	params.ViralQuery = queries.Viral
	params.GroundbreakerQuery = queries.Groundbreaker

	sess, err := env.local.CreateSession(ctx, params)
	if err != nil {
		return storage.MapTimeout(err)
	}

	if c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"session_id":  sess.ID,
			"topic":       sess.Topic,
			"workflow":    sess.Workflow,
			"environment": sess.Environment,
			"predecessor": sess.Predecessor,
			"created":     sess.Created.Format(time.RFC3339),
		})
	}

	fmt.Printf("Session initialized: %s\n", sess.ID)
	fmt.Printf("  Topic:       %s\n", sess.Topic)
	fmt.Printf("  Workflow:    %s\n", sess.Workflow)
	fmt.Printf("  Environment: %s\n", sess.Environment)
	if sess.Predecessor != "" {
		fmt.Printf("  Continues:   %s\n", sess.Predecessor)
	}
	fmt.Println()
	fmt.Println("Suggested queries:")
	fmt.Printf("  Viral:         %s\n", sess.ViralQuery)
	fmt.Printf("  Groundbreaker: %s\n", sess.GroundbreakerQuery)

	return nil
}

// loadPredecessor resolves an archived session to continue from. If the
// session is not in the local store it is pulled from the global archive
// first, so continuing works from any environment.
func (c *InitCommand) loadPredecessor(env *runEnv, id string) (*storage.Session, error) {
	ctx, cancel := env.opCtx()
	defer cancel()

	sess, err := env.local.GetSession(ctx, id)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	entity, err := env.global.GetEntity(ctx, storage.KindSession, id)
	if err != nil {
		return nil, fmt.Errorf("session %s not found locally or in the global store: %w", id, storage.ErrNotFound)
	}
	if _, err := env.local.PutEntity(ctx, entity, true); err != nil {
		return nil, err
	}

	return env.local.GetSession(ctx, id)
}
