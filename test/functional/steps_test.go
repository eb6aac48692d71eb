package functional

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

func aCleanZbEnvironment(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

func aFormulaWithNoDependencies(ctx context.Context, name, version string) error {
	state := getState(ctx)
	state.server.AddFormula(name, version, nil)
	return nil
}

func aFormulaDependingOn(ctx context.Context, name, version, dep string) error {
	state := getState(ctx)
	state.server.AddFormula(name, version, []string{dep})
	return nil
}

// env returns the ZB_* environment every zb invocation in a scenario
// needs: an isolated root/prefix pair and the fixture server as the
// formula metadata endpoint.
func (s *testState) env() []string {
	return append(os.Environ(),
		"ZB_ROOT="+s.rootDir,
		"ZB_PREFIX="+s.prefix,
		"ZB_API_BASE="+s.server.URL(),
	)
}

func iRun(ctx context.Context, command string) (context.Context, error) {
	state := getState(ctx)
	if state == nil {
		return ctx, fmt.Errorf("no test state; is the Before hook running?")
	}

	args := strings.Fields(command)
	if len(args) > 0 && args[0] == "zb" {
		args[0] = state.binPath
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = state.env()

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	state.stdout = stdout.String()
	state.stderr = stderr.String()

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			state.exitCode = exitErr.ExitCode()
		} else {
			return ctx, fmt.Errorf("running %q: %w", command, err)
		}
	} else {
		state.exitCode = 0
	}

	return ctx, nil
}

func theExitCodeIs(ctx context.Context, expected int) error {
	state := getState(ctx)
	if state.exitCode != expected {
		return fmt.Errorf("expected exit code %d, got %d\nstdout: %s\nstderr: %s",
			expected, state.exitCode, state.stdout, state.stderr)
	}
	return nil
}

func theExitCodeIsNot(ctx context.Context, notExpected int) error {
	state := getState(ctx)
	if state.exitCode == notExpected {
		return fmt.Errorf("expected exit code to not be %d\nstdout: %s\nstderr: %s",
			notExpected, state.stdout, state.stderr)
	}
	return nil
}

func theOutputContains(ctx context.Context, text string) error {
	state := getState(ctx)
	if !strings.Contains(state.stdout, text) {
		return fmt.Errorf("expected stdout to contain %q, got:\n%s", text, state.stdout)
	}
	return nil
}

func theOutputDoesNotContain(ctx context.Context, text string) error {
	state := getState(ctx)
	if strings.Contains(state.stdout, text) {
		return fmt.Errorf("expected stdout not to contain %q, got:\n%s", text, state.stdout)
	}
	return nil
}

func theErrorOutputContains(ctx context.Context, text string) error {
	state := getState(ctx)
	if !strings.Contains(state.stderr, text) {
		return fmt.Errorf("expected stderr to contain %q, got:\n%s", text, state.stderr)
	}
	return nil
}

func formulaIsLinkedIntoPrefix(ctx context.Context, name string) error {
	state := getState(ctx)
	link := filepath.Join(state.prefix, "bin", name)
	target, err := filepath.EvalSymlinks(link)
	if err != nil {
		return fmt.Errorf("expected %s to be linked into the prefix: %w", name, err)
	}
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("link target %s does not exist: %w", target, err)
	}
	return nil
}

func formulaIsNotLinkedIntoPrefix(ctx context.Context, name string) error {
	state := getState(ctx)
	link := filepath.Join(state.prefix, "bin", name)
	if _, err := os.Lstat(link); err == nil {
		return fmt.Errorf("expected %s to not be linked into the prefix, but %s exists", name, link)
	}
	return nil
}

// installedBeforeInOutput checks the order two formulae's "install
// complete" log lines appear in, produced by -v on stderr.
func installedBeforeInOutput(ctx context.Context, first, second string) error {
	state := getState(ctx)
	firstIdx := strings.Index(state.stderr, `msg="install complete" formula=`+first)
	secondIdx := strings.Index(state.stderr, `msg="install complete" formula=`+second)
	if firstIdx == -1 || secondIdx == -1 {
		return fmt.Errorf("expected install-completed log lines for both %q and %q, got:\n%s", first, second, state.stderr)
	}
	if firstIdx >= secondIdx {
		return fmt.Errorf("expected %q to install before %q, got:\n%s", first, second, state.stderr)
	}
	return nil
}

// aSecondZbProcessMidInstall starts a slow install in the background,
// then runs a second zb invocation against the same root while the
// first is still holding the database writer lock. The short sleep
// bridges the first process's own startup latency; it's a best effort
// window, not a synchronization guarantee.
func aSecondZbProcessMidInstall(ctx context.Context) error {
	state := getState(ctx)

	first := exec.Command(state.binPath, "install", "chain-a")
	first.Env = state.env()
	if err := first.Start(); err != nil {
		return fmt.Errorf("starting first install: %w", err)
	}
	defer first.Wait()

	time.Sleep(20 * time.Millisecond)

	second := exec.Command(state.binPath, "list")
	second.Env = state.env()
	var stdout, stderr strings.Builder
	second.Stdout = &stdout
	second.Stderr = &stderr
	err := second.Run()

	state.stdout = stdout.String()
	state.stderr = stderr.String()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			state.exitCode = exitErr.ExitCode()
		} else {
			return fmt.Errorf("running second process: %w", err)
		}
	} else {
		state.exitCode = 0
	}
	return nil
}
