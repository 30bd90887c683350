// Package guard enforces the test-only change policy on an agent-touched
// workspace: it classifies changed paths by test-naming convention, reverts
// or removes everything else, and checks that surviving test files actually
// look like tests. The agent's own output is never trusted; this post-hoc
// inspection is what decides whether a generation attempt succeeded.
package guard

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/seamly/stitch/internal/gitops"
)

var (
	// testDeclRe matches a test declaration call such as describe(...),
	// it(...), test(...), or a qualified form like test.each(...)(.
	testDeclRe = regexp.MustCompile(`\b(describe|it|test)(\.\w+)*\s*\(`)

	// assertionRe matches an assertion construct: expect(...), an assert
	// call or import, or a should-style chain.
	assertionRe = regexp.MustCompile(`\b(expect\s*\(|assert\b|should\b)`)
)

// IsTestPath reports whether a slash-separated relative path follows a
// test-file naming convention: a .test. or .spec. marker in the filename,
// or residence under a test, tests, or __tests__ directory.
func IsTestPath(p string) bool {
	base := path.Base(p)
	if strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") {
		return true
	}
	for _, seg := range strings.Split(path.Dir(p), "/") {
		switch seg {
		case "test", "tests", "__tests__":
			return true
		}
	}
	return false
}

// ValidateTests checks that every listed file, relative to dir, contains at
// least one test declaration and at least one assertion. A file of test-like
// name with neither is an agent failure, not a test.
func ValidateTests(dir string, files []string) error {
	if dir == "" {
		return fmt.Errorf("guard: dir is required")
	}
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return fmt.Errorf("guard: read %s: %w", f, err)
		}
		if !testDeclRe.Match(data) {
			return fmt.Errorf("guard: %s: no test declaration (describe/it/test) found", f)
		}
		if !assertionRe.Match(data) {
			return fmt.Errorf("guard: %s: no assertion (expect/assert/should) found", f)
		}
	}
	return nil
}

// Contain restores every non-test change in the workspace and returns the
// final changed set, which then holds only test files. Tracked disallowed
// files are reverted to their committed state; files without one (new,
// whether staged or untracked) are removed. Remediation is best effort per
// file; the re-enumeration afterwards is the actual enforcement, and any
// disallowed path that survives it fails the containment check.
func Contain(repoDir string) ([]string, error) {
	if repoDir == "" {
		return nil, fmt.Errorf("guard: repo directory is required")
	}

	changed, err := gitops.ChangedFiles(repoDir)
	if err != nil {
		return nil, fmt.Errorf("guard: enumerate changes: %w", err)
	}
	for _, f := range changed {
		if !IsTestPath(f) {
			remediate(repoDir, f)
		}
	}

	after, err := gitops.ChangedFiles(repoDir)
	if err != nil {
		return nil, fmt.Errorf("guard: re-enumerate changes: %w", err)
	}
	var allowed, survivors []string
	for _, f := range after {
		if IsTestPath(f) {
			allowed = append(allowed, f)
		} else {
			survivors = append(survivors, f)
		}
	}
	if len(survivors) > 0 {
		return nil, fmt.Errorf("guard: disallowed changes survived remediation: %s", strings.Join(survivors, ", "))
	}
	return allowed, nil
}

// remediate undoes one disallowed change. Revert covers tracked files; a
// staged-but-new file loses its revert target the moment it is unstaged, so
// removal is the fallback either way.
func remediate(repoDir, p string) {
	if gitops.IsTracked(repoDir, p) {
		if err := gitops.RevertFile(repoDir, p); err == nil {
			return
		}
	}
	gitops.RemoveUntracked(repoDir, p)
}
