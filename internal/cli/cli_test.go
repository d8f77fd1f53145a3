package cli

import (
	"errors"
	"fmt"
	"testing"

	goflags "github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutproject/scout/internal/storage"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"nil", nil, exitOK},
		{"generic", errors.New("boom"), exitGeneric},
		{"validation", storage.ErrValidation, exitValidation},
		{"conflict", storage.ErrConflict, exitConflict},
		{"not found", storage.ErrNotFound, exitNotFound},
		{"incomplete", storage.ErrIncomplete, exitIncomplete},
		{"timeout", storage.ErrTimeout, exitTimeout},
		{"corrupt", storage.ErrCorrupt, exitCorrupt},
		{"wrapped validation", fmt.Errorf("tier 9: %w", storage.ErrValidation), exitValidation},
		{"wrapped conflict", fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", storage.ErrConflict)), exitConflict},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, ExitCode(tc.err))
		})
	}
}

func TestRunWithArgs_Version(t *testing.T) {
	out, err := captureOutput(t, func() error {
		return RunWithArgs("1.2.3", []string{"--version"})
	})
	require.NoError(t, err)
	assert.Equal(t, "scout 1.2.3\n", out)
}

func TestRunWithArgs_UnknownCommand(t *testing.T) {
	_, err := captureOutput(t, func() error {
		return RunWithArgs("dev", []string{"frobnicate"})
	})
	require.Error(t, err)
	assert.Equal(t, exitGeneric, ExitCode(err))
}

func TestBuildParser_RegistersAllSubcommands(t *testing.T) {
	parser, _, _ := buildParser("dev")

	for _, name := range []string{"init", "log", "finding", "thesis", "status", "search", "archive", "sync", "export"} {
		assert.NotNil(t, parser.Find(name), "subcommand %s", name)
	}
	assert.Equal(t, "scout", parser.Name)
}

func TestParse_PopulatesCommandFlags(t *testing.T) {
	parser, globals, cmds := buildParser("dev")

	// Parse only; InitCommand.Execute would touch the filesystem, so stop
	// before command dispatch.
	parser.CommandHandler = func(command goflags.Commander, args []string) error {
		return nil
	}

	_, err := parser.ParseArgs([]string{"--json", "init", "--workflow", "deep-research", "--env", "ide", "quantum error correction"})
	require.NoError(t, err)

	assert.True(t, globals.JSON)
	assert.Equal(t, "deep-research", cmds.Init.Workflow)
	assert.Equal(t, "ide", cmds.Init.Environment)
	assert.Equal(t, "quantum error correction", cmds.Init.Args.Topic)
}

func TestParse_DefaultValues(t *testing.T) {
	parser, _, cmds := buildParser("dev")
	parser.CommandHandler = func(command goflags.Commander, args []string) error {
		return nil
	}

	_, err := parser.ParseArgs([]string{"log", "https://example.com"})
	require.NoError(t, err)

	assert.Equal(t, 3, cmds.Log.Relevance)
	assert.Equal(t, "manual", cmds.Log.Filter)
	assert.Equal(t, 0, cmds.Log.Tier, "tier defaults to domain detection")

	_, err = parser.ParseArgs([]string{"sync"})
	require.NoError(t, err)
	assert.Equal(t, "both", cmds.Sync.Direction)
}
