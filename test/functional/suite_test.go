// Package functional runs end-to-end Gherkin scenarios against a
// built zb binary, exercising the CLI surface the way a real caller
// would rather than calling internal/installer directly.
package functional

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/cucumber/godog"
)

type stateKeyType struct{}

var stateKey = stateKeyType{}

type testState struct {
	binPath  string
	rootDir  string
	prefix   string
	server   *fixtureServer
	stdout   string
	stderr   string
	exitCode int
}

func getState(ctx context.Context) *testState {
	if s, ok := ctx.Value(stateKey).(*testState); ok {
		return s
	}
	return nil
}

func setState(ctx context.Context, s *testState) context.Context {
	return context.WithValue(ctx, stateKey, s)
}

func TestFeatures(t *testing.T) {
	binPath := os.Getenv("ZB_TEST_BINARY")
	if binPath == "" {
		t.Skip("ZB_TEST_BINARY not set; build cmd/zb and point this at the binary to run functional scenarios")
	}

	absBin, err := filepath.Abs(binPath)
	if err != nil {
		t.Fatalf("resolving binary path: %v", err)
	}
	binPath = absBin

	opts := &godog.Options{
		Format:   "pretty",
		Paths:    []string{"features"},
		TestingT: t,
	}
	if tags := os.Getenv("ZB_TEST_TAGS"); tags != "" {
		opts.Tags = tags
	}

	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			initializeScenario(ctx, binPath)
		},
		Options: opts,
	}
	if suite.Run() != 0 {
		t.Fatal("functional tests failed")
	}
}

func initializeScenario(ctx *godog.ScenarioContext, binPath string) {
	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		root := filepath.Join(os.TempDir(), "zb-functional-"+randomSuffix())
		prefix := filepath.Join(root, "prefix")
		if err := os.MkdirAll(prefix, 0755); err != nil {
			return ctx, err
		}

		srv := newFixtureServer()

		state := &testState{
			binPath: binPath,
			rootDir: root,
			prefix:  prefix,
			server:  srv,
		}
		return setState(ctx, state), nil
	})

	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		state := getState(ctx)
		if state != nil {
			state.server.Close()
			os.RemoveAll(state.rootDir)
		}
		return ctx, nil
	})

	ctx.Step(`^a clean zb environment$`, aCleanZbEnvironment)
	ctx.Step(`^a formula "([^"]*)" version "([^"]*)" with no dependencies$`, aFormulaWithNoDependencies)
	ctx.Step(`^a formula "([^"]*)" version "([^"]*)" depending on "([^"]*)"$`, aFormulaDependingOn)
	ctx.Step(`^I run "([^"]*)"$`, iRun)
	ctx.Step(`^the exit code is (\d+)$`, theExitCodeIs)
	ctx.Step(`^the exit code is not (\d+)$`, theExitCodeIsNot)
	ctx.Step(`^the output contains "([^"]*)"$`, theOutputContains)
	ctx.Step(`^the output does not contain "([^"]*)"$`, theOutputDoesNotContain)
	ctx.Step(`^the error output contains "([^"]*)"$`, theErrorOutputContains)
	ctx.Step(`^"([^"]*)" is linked into the prefix$`, formulaIsLinkedIntoPrefix)
	ctx.Step(`^"([^"]*)" is not linked into the prefix$`, formulaIsNotLinkedIntoPrefix)
	ctx.Step(`^"([^"]*)" installed before "([^"]*)" in the output$`, installedBeforeInOutput)
	ctx.Step(`^a second zb process is started against the same root mid-install$`, aSecondZbProcessMidInstall)
}

var scenarioCounter int64

// randomSuffix avoids Math.random()/time.Now()-style nondeterminism by
// combining the process's own PID (distinct across concurrent test
// binaries) with a monotonic per-process counter (distinct across the
// many scenarios one binary runs in sequence).
func randomSuffix() string {
	n := atomic.AddInt64(&scenarioCounter, 1)
	return filepath.Base(os.Args[0]) + "-" + itoa(os.Getpid()) + "-" + itoa(int(n))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
