package cmd

import (
	"os"
	"testing"

	"github.com/Iron-Ham/tosh/internal/orchestrator"
)

func TestMain(m *testing.M) {
	// The -c test spawns stages through the test binary.
	orchestrator.LaunchStageIfRequested()
	os.Exit(m.Run())
}
