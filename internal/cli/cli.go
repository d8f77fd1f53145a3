package cli

import (
	"errors"
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"

	"github.com/scoutproject/scout/internal/storage"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Init    *InitCommand
	Log     *LogCommand
	Finding *FindingCommand
	Thesis  *ThesisCommand
	Status  *StatusCommand
	Search  *SearchCommand
	Archive *ArchiveCommand
	Sync    *SyncCommand
	Export  *ExportCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "scout"
	parser.LongDescription = "Local-first research session tracking: log URLs, capture findings, archive and sync sessions across environments."

	cmds := &commands{
		Init:    &InitCommand{globals: &globals, version: version},
		Log:     &LogCommand{globals: &globals, version: version},
		Finding: &FindingCommand{globals: &globals, version: version},
		Thesis:  &ThesisCommand{globals: &globals, version: version},
		Status:  &StatusCommand{globals: &globals, version: version},
		Search:  &SearchCommand{globals: &globals, version: version},
		Archive: &ArchiveCommand{globals: &globals, version: version},
		Sync:    &SyncCommand{globals: &globals, version: version},
		Export:  &ExportCommand{globals: &globals, version: version},
	}

	parser.AddCommand("init", "Start or continue a research session", "Create a new active session for a topic, or continue an archived session by ID.", cmds.Init)
	parser.AddCommand("log", "Record a URL", "Record a URL observation with tier/category/relevance metadata into the active session.", cmds.Log)
	parser.AddCommand("finding", "Record a finding", "Record a synthesized finding, optionally referencing logged URLs.", cmds.Finding)
	parser.AddCommand("thesis", "Set the session thesis", "Set or replace the working thesis on the active session.", cmds.Thesis)
	parser.AddCommand("status", "Show session status", "Summarize the active session and the most recently archived sessions.", cmds.Status)
	parser.AddCommand("search", "Search archived sessions", "Keyword search over archived session topics, key findings, and recorded findings.", cmds.Search)
	parser.AddCommand("archive", "Archive the active session", "Move the active session to the global archive and update the archive index.", cmds.Archive)
	parser.AddCommand("sync", "Sync with the global store", "Reconcile local state with the global store using last-writer-wins.", cmds.Sync)
	parser.AddCommand("export", "Export the URL log as CSV", "Write one CSV row per logged URL for spreadsheet consumption.", cmds.Export)

	return parser, &globals, cmds
}

// Run is the main entry point for the Scout CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the
// matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("scout %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}

// Exit codes per error kind. The CLI boundary is the only place errors are
// turned into user-facing messages and process exit codes.
const (
	exitOK         = 0
	exitGeneric    = 1
	exitValidation = 2
	exitConflict   = 3
	exitNotFound   = 4
	exitIncomplete = 5
	exitTimeout    = 6
	exitCorrupt    = 7
)

// ExitCode maps an error to a distinguishable process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, storage.ErrValidation):
		return exitValidation
	case errors.Is(err, storage.ErrConflict):
		return exitConflict
	case errors.Is(err, storage.ErrNotFound):
		return exitNotFound
	case errors.Is(err, storage.ErrIncomplete):
		return exitIncomplete
	case errors.Is(err, storage.ErrTimeout):
		return exitTimeout
	case errors.Is(err, storage.ErrCorrupt):
		return exitCorrupt
	default:
		return exitGeneric
	}
}
