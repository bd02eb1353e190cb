package main

import (
	"os"

	"github.com/Iron-Ham/tosh/internal/cmd"
	"github.com/Iron-Ham/tosh/internal/orchestrator"
)

func main() {
	// A spawned pipeline stage never reaches the CLI.
	orchestrator.LaunchStageIfRequested()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
