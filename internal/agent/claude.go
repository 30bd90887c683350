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

// Claude runs the claude CLI in non-interactive mode.
type Claude struct {
	DB     *gorm.DB
	Binary string // path to claude binary, default "claude"
}

func (c *Claude) Name() string { return "claude" }

// IsAvailable checks for the claude binary and some form of credentials:
// an API key in the environment or an existing CLI login.
func (c *Claude) IsAvailable() bool {
	binary := c.Binary
	if binary == "" {
		binary = "claude"
	}
	if !binaryOnPath(binary) {
		return false
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	if _, err := os.Stat(filepath.Join(home, ".claude.json")); err == nil {
		return true
	}
	_, err = os.Stat(filepath.Join(home, ".claude"))
	return err == nil
}

// Generate invokes claude with the assembled prompt, scoped to the
// workspace. The -p flag runs a single non-interactive turn;
// --dangerously-skip-permissions lets it write files without prompting.
// The workspace is disposable and the containment guard reverts anything
// outside test files.
func (c *Claude) Generate(ctx context.Context, req Request) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	prompt := BuildPrompt(req)
	timeout := requestTimeout(req)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	binary := c.Binary
	if binary == "" {
		binary = "claude"
	}
	cmd := exec.CommandContext(runCtx, binary,
		"-p", prompt,
		"--dangerously-skip-permissions",
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
		return fmt.Errorf("agent: claude timed out after %s", timeout)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("agent: claude: %w", ctxErr)
	}
	if err != nil {
		return fmt.Errorf("agent: claude: %s: %w", strings.TrimSpace(tailCap(output)), err)
	}
	return nil
}
