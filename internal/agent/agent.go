// Package agent invokes an external AI coding agent as a subprocess to
// write tests into a workspace. Adapters share one contract: build a
// constrained prompt, run the agent CLI scoped to the workspace with a
// wall-clock timeout, and record the invocation. An adapter never returns
// generated content; whether the run produced usable tests is decided
// afterwards by inspecting the workspace.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/seamly/stitch/internal/models"
)

// DefaultTimeout bounds one agent invocation when the request sets none.
const DefaultTimeout = 5 * time.Minute

// outputCap is the maximum number of output bytes kept per recorded run.
// Longer output is tail-capped since failures show up at the end.
const outputCap = 64 << 10

// Target is one source file the agent should write tests for.
type Target struct {
	Path           string // relative to the project directory
	Content        string
	UncoveredLines []int
}

// Request describes one generation attempt.
type Request struct {
	JobID        string
	Attempt      int
	WorkspaceDir string // checkout root the subprocess runs in
	ProjectDir   string // sub-project relative to the workspace, "" for root
	Targets      []Target
	Timeout      time.Duration // 0 means DefaultTimeout
}

// Invoker is implemented by each agent provider.
type Invoker interface {
	// Name identifies the provider ("claude", "codex").
	Name() string
	// IsAvailable reports whether the provider's CLI and credentials are
	// present. It never mutates anything.
	IsAvailable() bool
	// Generate runs one generation attempt. Test files are written directly
	// into the workspace by the subprocess; the error only reflects whether
	// the subprocess ran to completion.
	Generate(ctx context.Context, req Request) error
}

// New returns the Invoker for the named provider.
func New(provider string, db *gorm.DB) (Invoker, error) {
	switch provider {
	case "claude":
		return &Claude{DB: db}, nil
	case "codex":
		return &Codex{DB: db}, nil
	default:
		return nil, fmt.Errorf("agent: unknown provider %q", provider)
	}
}

func validateRequest(req Request) error {
	if req.WorkspaceDir == "" {
		return fmt.Errorf("agent: workspace dir is required")
	}
	if len(req.Targets) == 0 {
		return fmt.Errorf("agent: at least one target is required")
	}
	return nil
}

func requestTimeout(req Request) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return DefaultTimeout
}

// recordRun persists the invocation audit row. A failed insert is not
// fatal: the generation outcome matters more than its audit trail.
func recordRun(db *gorm.DB, req Request, provider, prompt, output string, exitCode int, timedOut bool, dur time.Duration) {
	if db == nil {
		return
	}
	db.Create(&models.AgentRun{
		JobID:       req.JobID,
		Attempt:     req.Attempt,
		Provider:    provider,
		PromptLines: strings.Count(prompt, "\n") + 1,
		Output:      tailCap(output),
		ExitCode:    exitCode,
		TimedOut:    timedOut,
		DurationMs:  int(dur.Milliseconds()),
	})
}

func tailCap(s string) string {
	if len(s) <= outputCap {
		return s
	}
	return s[len(s)-outputCap:]
}

// exitCode extracts the process exit code from a CombinedOutput error,
// -1 when the process never ran or was killed.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func binaryOnPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
