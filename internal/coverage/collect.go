package coverage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Collect loads whichever coverage artifact a test run left under
// <projectDir>/coverage: coverage-summary.json first, else lcov.info.
// Paths are normalized relative to projectDir. A run that produced
// neither artifact yields an empty zero-coverage report, not an error.
func Collect(projectDir string) (*Report, error) {
	summaryPath := filepath.Join(projectDir, "coverage", "coverage-summary.json")
	if data, err := os.ReadFile(summaryPath); err == nil {
		files, err := ParseSummary(data)
		if err != nil {
			return nil, err
		}
		return buildReport(projectDir, files), nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("coverage: read %s: %w", summaryPath, err)
	}

	lcovPath := filepath.Join(projectDir, "coverage", "lcov.info")
	if data, err := os.ReadFile(lcovPath); err == nil {
		files, err := ParseLCOV(data)
		if err != nil {
			return nil, err
		}
		return buildReport(projectDir, files), nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("coverage: read %s: %w", lcovPath, err)
	}

	return &Report{}, nil
}

func buildReport(projectDir string, files []FileCoverage) *Report {
	for i := range files {
		files[i].Path = normalizePath(projectDir, files[i].Path)
	}
	return &Report{Files: files, Total: Aggregate(files)}
}

// normalizePath makes report paths comparable with tracked file paths:
// relative to the project directory, forward slashes, no leading "./".
// Absolute paths outside the project are left alone.
func normalizePath(projectDir, p string) string {
	cleaned := filepath.Clean(p)
	if filepath.IsAbs(cleaned) {
		root := filepath.Clean(projectDir)
		if rel, err := filepath.Rel(root, cleaned); err == nil && !strings.HasPrefix(rel, "..") {
			cleaned = rel
		}
	}
	return strings.TrimPrefix(filepath.ToSlash(cleaned), "./")
}
