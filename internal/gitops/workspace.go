package gitops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorkspaceDir returns the job-scoped checkout directory under the
// configured work root.
func WorkspaceDir(workRoot, jobID string) string {
	return filepath.Join(workRoot, jobID)
}

// EnsureWorkspace creates the job-scoped directory, removing any
// leftover from an earlier run of the same job.
func EnsureWorkspace(workRoot, jobID string) (string, error) {
	if workRoot == "" {
		return "", fmt.Errorf("gitops: work root is required")
	}
	if jobID == "" {
		return "", fmt.Errorf("gitops: job ID is required")
	}

	dir := WorkspaceDir(workRoot, jobID)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("gitops: clear workspace %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("gitops: create workspace %s: %w", dir, err)
	}
	return dir, nil
}

// CleanupWorkspace removes a job workspace. It refuses to delete
// anything outside the work root, so a corrupted path can never take a
// system directory with it.
func CleanupWorkspace(workRoot, dir string) error {
	if workRoot == "" {
		return fmt.Errorf("gitops: work root is required")
	}
	if dir == "" {
		return nil
	}

	root, err := filepath.Abs(workRoot)
	if err != nil {
		return fmt.Errorf("gitops: resolve work root: %w", err)
	}
	target, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("gitops: resolve workspace: %w", err)
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("gitops: refusing to remove %q outside work root %q", dir, workRoot)
	}

	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("gitops: remove workspace %s: %w", target, err)
	}
	return nil
}
