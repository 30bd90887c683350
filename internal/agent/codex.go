package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gorm.io/gorm"
)

// Codex runs the codex CLI in non-interactive exec mode.
type Codex struct {
	DB     *gorm.DB
	Binary string // path to codex binary, default "codex"
}

func (c *Codex) Name() string { return "codex" }

// IsAvailable checks for the codex binary and some form of credentials:
// an API key in the environment or an existing CLI login.
func (c *Codex) IsAvailable() bool {
	binary := c.Binary
	if binary == "" {
		binary = "codex"
	}
	if !binaryOnPath(binary) {
		return false
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(home, ".codex", "auth.json"))
	return err == nil
}

// Generate invokes codex exec with the assembled prompt, scoped to the
// workspace. The workspace-write sandbox confines writes to the checkout.
func (c *Codex) Generate(ctx context.Context, req Request) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	prompt := BuildPrompt(req)
	timeout := requestTimeout(req)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	binary := c.Binary
	if binary == "" {
		binary = "codex"
	}
	cmd := exec.CommandContext(runCtx, binary,
		"exec",
		"--sandbox", "workspace-write",
		prompt,
	)
	cmd.Dir = req.WorkspaceDir
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 10 * time.Second

	start := time.Now()
	out, err := cmd.CombinedOutput()
	output := string(out)
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)

	recordRun(c.DB, req, c.Name(), prompt, output, exitCode(err), timedOut, time.Since(start))

	if timedOut {
		return fmt.Errorf("agent: codex timed out after %s", timeout)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("agent: codex: %w", ctxErr)
	}
	if err != nil {
		// codex has been seen exiting 1 after finishing its work. The
		// containment guard decides success, so a 1 with output passes.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && strings.TrimSpace(output) != "" {
			return nil
		}
		return fmt.Errorf("agent: codex: %s: %w", strings.TrimSpace(tailCap(output)), err)
	}
	return nil
}
