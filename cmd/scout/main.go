package main

import (
	"fmt"
	"os"

	"github.com/scoutproject/scout/internal/cli"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	if err := cli.Run(version); err != nil {
		fmt.Fprintf(os.Stderr, "scout: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
