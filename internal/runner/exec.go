package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// noTestPatterns are output fragments that indicate "no tests exist" rather
// than a real failure. When the test command exits non-zero but its output
// matches one of these, the run is treated as a pass with no coverage.
var noTestPatterns = []string{
	"no test files",
	"No tests found",
	"No test suites found",
}

// InstallDependencies installs the project's dependencies with the given
// package manager. npm uses ci when a lockfile is present, which is faster
// and does not rewrite the lockfile.
func InstallDependencies(ctx context.Context, projectDir, pm string) (string, error) {
	if projectDir == "" {
		return "", fmt.Errorf("runner: projectDir is required")
	}
	args := installArgs(projectDir, pm)
	out, err := run(ctx, projectDir, args[0], args[1:]...)
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("runner: install: %w", ctx.Err())
		}
		return out, fmt.Errorf("runner: %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(out), err)
	}
	return out, nil
}

// RunCoverage runs the project's test script with coverage instrumentation.
// A run whose output matches a no-tests pattern passes with empty output;
// any other non-zero exit is returned as an error alongside the combined
// output, since a failing suite may still have written coverage artifacts
// the caller wants to inspect.
func RunCoverage(ctx context.Context, projectDir, pm string) (string, error) {
	if projectDir == "" {
		return "", fmt.Errorf("runner: projectDir is required")
	}
	args := testArgs(pm)
	out, err := run(ctx, projectDir, args[0], args[1:]...)
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("runner: coverage run: %w", ctx.Err())
		}
		if matchesNoTests(out) {
			return out, nil
		}
		return out, fmt.Errorf("runner: coverage run failed: %w", err)
	}
	return out, nil
}

// installArgs builds the install command line for the package manager.
func installArgs(projectDir, pm string) []string {
	switch pm {
	case Yarn:
		return []string{"yarn", "install"}
	case Pnpm:
		return []string{"pnpm", "install"}
	default:
		if fileExists(filepath.Join(projectDir, "package-lock.json")) {
			return []string{"npm", "ci"}
		}
		return []string{"npm", "install"}
	}
}

// testArgs builds the coverage-enabled test command line. The extra flag is
// forwarded to the underlying test runner; yarn forwards trailing flags
// without a separator.
func testArgs(pm string) []string {
	switch pm {
	case Yarn:
		return []string{"yarn", "test", "--coverage"}
	case Pnpm:
		return []string{"pnpm", "test", "--", "--coverage"}
	default:
		return []string{"npm", "test", "--", "--coverage"}
	}
}

func matchesNoTests(output string) bool {
	for _, pat := range noTestPatterns {
		if strings.Contains(output, pat) {
			return true
		}
	}
	return false
}

// run executes a command in dir and returns its combined output. CI=true
// keeps watch-mode test runners from hanging on a TTY prompt. On context
// cancellation the process gets SIGTERM first, then a hard kill after the
// wait delay.
func run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "CI=true")
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 10 * time.Second
	out, err := cmd.CombinedOutput()
	return string(out), err
}
