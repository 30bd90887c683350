// Package gitops wraps the git plumbing for job workspaces: clone,
// branch, commit, push, and changed-file enumeration.
package gitops

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ValidateRepoURL accepts http(s) and ssh git remotes.
func ValidateRepoURL(url string) error {
	if url == "" {
		return fmt.Errorf("gitops: repository URL is required")
	}
	if strings.HasPrefix(url, "http://") ||
		strings.HasPrefix(url, "https://") ||
		strings.HasPrefix(url, "ssh://") ||
		strings.HasPrefix(url, "git@") ||
		strings.HasPrefix(url, "file://") {
		return nil
	}
	return fmt.Errorf("gitops: unsupported repository URL %q", url)
}

// CloneRepo makes a shallow single-branch clone of url at branch into
// destDir. Clone failures are classified into readable causes where the
// git output allows it.
func CloneRepo(ctx context.Context, url, branch, destDir string) error {
	if err := ValidateRepoURL(url); err != nil {
		return err
	}
	if branch == "" {
		return fmt.Errorf("gitops: branch is required")
	}
	if destDir == "" {
		return fmt.Errorf("gitops: destination directory is required")
	}

	cmd := exec.CommandContext(ctx, "git", "clone",
		"--depth", "1",
		"--branch", branch,
		url, destDir,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("gitops: clone %s: %w", url, ctx.Err())
		}
		trimmed := strings.TrimSpace(string(out))
		if reason := classifyCloneError(trimmed); reason != "" {
			return fmt.Errorf("gitops: clone %s: %s", url, reason)
		}
		return fmt.Errorf("gitops: clone %s: %s", url, trimmed)
	}
	return nil
}

// classifyCloneError maps well-known git clone output to a short cause.
func classifyCloneError(output string) string {
	switch {
	case strings.Contains(output, "not found in upstream"):
		return "branch not found"
	case strings.Contains(output, "Repository not found"),
		strings.Contains(output, "does not exist"):
		return "repository not found"
	case strings.Contains(output, "Could not resolve host"):
		return "host unreachable"
	case strings.Contains(output, "Authentication failed"),
		strings.Contains(output, "Permission denied"):
		return "authentication failed"
	}
	return ""
}

// CreateBranch creates a new branch from the current HEAD and checks it
// out. If the branch already exists it is checked out instead.
func CreateBranch(repoDir, branchName string) error {
	if branchName == "" {
		return fmt.Errorf("gitops: branch name is required")
	}
	if repoDir == "" {
		return fmt.Errorf("gitops: repo directory is required")
	}

	cmd := exec.Command("git", "checkout", "-b", branchName)
	cmd.Dir = repoDir
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if strings.Contains(string(out), "already exists") {
		checkout := exec.Command("git", "checkout", branchName)
		checkout.Dir = repoDir
		if checkoutOut, checkoutErr := checkout.CombinedOutput(); checkoutErr != nil {
			return fmt.Errorf("gitops: checkout existing branch %q: %s", branchName, strings.TrimSpace(string(checkoutOut)))
		}
		return nil
	}

	return fmt.Errorf("gitops: create branch %q: %s", branchName, strings.TrimSpace(string(out)))
}

// CommitAndPush stages the given files, commits them and pushes the
// branch to origin, retrying the push once on failure.
func CommitAndPush(repoDir, branchName, message string, files []string) error {
	if repoDir == "" {
		return fmt.Errorf("gitops: repo directory is required")
	}
	if branchName == "" {
		return fmt.Errorf("gitops: branch name is required")
	}
	if message == "" {
		return fmt.Errorf("gitops: commit message is required")
	}
	if len(files) == 0 {
		return fmt.Errorf("gitops: at least one file is required")
	}

	addArgs := append([]string{"add", "--"}, files...)
	add := exec.Command("git", addArgs...)
	add.Dir = repoDir
	if out, err := add.CombinedOutput(); err != nil {
		return fmt.Errorf("gitops: stage files: %s", strings.TrimSpace(string(out)))
	}

	commit := exec.Command("git", "commit", "-m", message)
	commit.Dir = repoDir
	if out, err := commit.CombinedOutput(); err != nil {
		return fmt.Errorf("gitops: commit: %s", strings.TrimSpace(string(out)))
	}

	var lastErr error
	for attempt := range 2 {
		push := exec.Command("git", "push", "-u", "origin", branchName)
		push.Dir = repoDir
		out, err := push.CombinedOutput()
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("gitops: push branch %q (attempt %d): %s", branchName, attempt+1, strings.TrimSpace(string(out)))

		if attempt == 0 {
			time.Sleep(time.Second)
		}
	}
	return lastErr
}

// ChangedFiles returns every path that differs from HEAD: modified,
// staged and untracked, deduplicated and sorted.
func ChangedFiles(repoDir string) ([]string, error) {
	if repoDir == "" {
		return nil, fmt.Errorf("gitops: repo directory is required")
	}

	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = repoDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("gitops: status: %s", strings.TrimSpace(string(out)))
	}

	seen := make(map[string]bool)
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		// Renames read "old -> new"; the new path is what changed.
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		path = strings.Trim(path, `"`)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// IsTracked reports whether the path is known to git.
func IsTracked(repoDir, path string) bool {
	cmd := exec.Command("git", "ls-files", "--error-unmatch", "--", path)
	cmd.Dir = repoDir
	return cmd.Run() == nil
}

// RevertFile restores a tracked file to its HEAD state, dropping both
// staged and working-tree modifications.
func RevertFile(repoDir, path string) error {
	if repoDir == "" {
		return fmt.Errorf("gitops: repo directory is required")
	}
	if path == "" {
		return fmt.Errorf("gitops: path is required")
	}

	reset := exec.Command("git", "reset", "-q", "HEAD", "--", path)
	reset.Dir = repoDir
	reset.CombinedOutput() // nothing staged is fine

	cmd := exec.Command("git", "checkout", "--", path)
	cmd.Dir = repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("gitops: revert %s: %s", path, strings.TrimSpace(string(out)))
	}
	return nil
}

// RemoveUntracked deletes an untracked file. The path must stay inside
// the repository directory.
func RemoveUntracked(repoDir, path string) error {
	if repoDir == "" {
		return fmt.Errorf("gitops: repo directory is required")
	}
	if path == "" {
		return fmt.Errorf("gitops: path is required")
	}

	full := filepath.Join(repoDir, path)
	rel, err := filepath.Rel(repoDir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("gitops: path %q escapes the repository", path)
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("gitops: remove %s: %w", path, err)
	}
	return nil
}

// DiscardChanges drops every uncommitted change in the repository: staged
// and working-tree edits are reset to HEAD and untracked files are removed.
func DiscardChanges(repoDir string) error {
	if repoDir == "" {
		return fmt.Errorf("gitops: repo directory is required")
	}

	for _, args := range [][]string{
		{"git", "reset", "-q", "HEAD", "."},
		{"git", "checkout", "--", "."},
		{"git", "clean", "-fdq"},
	} {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = repoDir
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("gitops: %s: %s: %w", strings.Join(args[1:], " "), strings.TrimSpace(string(out)), err)
		}
	}
	return nil
}

// GenerateBranchName derives a work branch name from the target file
// paths: a single file becomes its path slug, a batch becomes a count
// plus a short digest of the paths, so the same targets always map to
// the same branch.
func GenerateBranchName(paths []string) string {
	if len(paths) == 0 {
		return "stitch/improve-tests"
	}
	if len(paths) == 1 {
		return "stitch/improve-" + slugify(paths[0])
	}
	joined := strings.Join(paths, "\n")
	sum := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("stitch/improve-%d-files-%s", len(paths), hex.EncodeToString(sum[:])[:6])
}

// slugify lowercases a path and collapses every non-alphanumeric run to
// a single dash, capped to keep branch names manageable.
func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > 48 {
		out = strings.Trim(out[:48], "-")
	}
	if out == "" {
		return "tests"
	}
	return out
}

// ConfigureIdentity sets the commit identity for a workspace clone so
// commits succeed on machines without global git config.
func ConfigureIdentity(repoDir, name, email string) error {
	if repoDir == "" {
		return fmt.Errorf("gitops: repo directory is required")
	}
	if name == "" {
		name = "stitch"
	}
	if email == "" {
		if u, err := user.Current(); err == nil && u.Username != "" {
			email = u.Username + "@stitch.local"
		} else {
			email = "stitch@stitch.local"
		}
	}

	for _, kv := range [][2]string{
		{"user.name", name},
		{"user.email", email},
	} {
		cmd := exec.Command("git", "config", kv[0], kv[1])
		cmd.Dir = repoDir
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("gitops: git config %s: %s", kv[0], strings.TrimSpace(string(out)))
		}
	}
	return nil
}
