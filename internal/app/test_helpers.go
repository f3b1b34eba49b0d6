package app

import (
	"bytes"
	"os"
	"testing"

	"github.com/specialistvlad/tkalgrid/internal/command"
	"github.com/specialistvlad/tkalgrid/internal/registry"
	"github.com/specialistvlad/tkalgrid/internal/testutil"
	"github.com/stretchr/testify/require"
)

// SetupAppTest creates a new app instance for system testing. Logs are
// written at debug level to the returned SafeBuffer and dumped when
// TKALGRID_TEST_LOGS is "true".
func SetupAppTest(t *testing.T, cfg Config, runner command.Runner, modules ...registry.Module) (*App, *bytes.Buffer, *testutil.SafeBuffer) {
	t.Helper()

	cfg.LogLevel = "debug"
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 2
	}
	appConfig, err := NewConfig(cfg)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	logBuffer := &testutil.SafeBuffer{}
	testApp := NewApp(out, logBuffer, appConfig, runner, modules...)

	t.Cleanup(func() {
		if os.Getenv("TKALGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, out, logBuffer
}
