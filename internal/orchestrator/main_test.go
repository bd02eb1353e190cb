package orchestrator

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// Spawned stages re-execute the test binary.
	LaunchStageIfRequested()
	os.Exit(m.Run())
}
