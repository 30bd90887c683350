// Package runner locates the testable project inside a repository checkout
// and drives its package-manager toolchain: dependency installation and
// coverage-instrumented test runs. Detection follows lockfile conventions
// (pnpm-lock.yaml, yarn.lock, package-lock.json) and falls back to npm.
package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Package manager names as returned by DetectPackageManager.
const (
	Npm  = "npm"
	Yarn = "yarn"
	Pnpm = "pnpm"
)

// ErrNoProject is returned by FindProjectDir when neither the checkout root
// nor any conventional subdirectory contains a package manifest.
var ErrNoProject = errors.New("no project manifest found")

// conventionalDirs are the subdirectory names searched for a project
// manifest when the checkout root has none, in preference order.
var conventionalDirs = []string{
	"app", "web", "client", "server", "frontend", "backend", "api", "ui",
}

// manifest is the subset of package.json the runner cares about.
type manifest struct {
	Scripts map[string]string `json:"scripts"`
}

// FindProjectDir searches checkoutDir for the directory holding the project
// to test: first the root, then a fixed list of conventional subdirectory
// names. A directory whose manifest declares a test script wins over one
// that merely has a manifest. The returned path is relative to checkoutDir,
// "" meaning the root itself.
func FindProjectDir(checkoutDir string) (string, error) {
	if checkoutDir == "" {
		return "", fmt.Errorf("runner: checkoutDir is required")
	}

	candidates := append([]string{""}, conventionalDirs...)

	var fallback string
	haveFallback := false
	for _, dir := range candidates {
		m, err := readManifest(filepath.Join(checkoutDir, dir))
		if err != nil {
			continue
		}
		if hasTestScript(m) {
			return dir, nil
		}
		if !haveFallback {
			fallback = dir
			haveFallback = true
		}
	}
	if haveFallback {
		return fallback, nil
	}
	return "", fmt.Errorf("runner: %s: %w", checkoutDir, ErrNoProject)
}

// readManifest parses the package.json in dir.
func readManifest(dir string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("runner: parse %s: %w", filepath.Join(dir, "package.json"), err)
	}
	return &m, nil
}

// hasTestScript reports whether the manifest declares a usable test script.
// npm init's placeholder ("echo ... no test specified ... exit 1") does not
// count.
func hasTestScript(m *manifest) bool {
	s, ok := m.Scripts["test"]
	if !ok || strings.TrimSpace(s) == "" {
		return false
	}
	return !strings.Contains(s, "no test specified")
}

// DetectPackageManager picks the package manager for projectDir from its
// lockfile. Without any lockfile it defaults to npm.
func DetectPackageManager(projectDir string) string {
	if fileExists(filepath.Join(projectDir, "pnpm-lock.yaml")) {
		return Pnpm
	}
	if fileExists(filepath.Join(projectDir, "yarn.lock")) {
		return Yarn
	}
	return Npm
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
