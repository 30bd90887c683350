package runner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/seamly/stitch/internal/guard"
)

// sourceExtensions are the file extensions enumerated as source files.
var sourceExtensions = map[string]bool{
	".js":  true,
	".jsx": true,
	".ts":  true,
	".tsx": true,
	".mjs": true,
	".cjs": true,
}

// skipDirs are build and dependency directories never descended into.
// Dot-directories are skipped separately.
var skipDirs = map[string]bool{
	"node_modules": true,
	"dist":         true,
	"build":        true,
	"out":          true,
	"coverage":     true,
	"vendor":       true,
}

// ListSourceFiles walks projectDir and returns every source file eligible
// for coverage tracking, relative to projectDir with forward slashes,
// sorted. Test files, type declaration files, and anything under a build,
// dependency, or dot directory are excluded.
func ListSourceFiles(projectDir string) ([]string, error) {
	if projectDir == "" {
		return nil, fmt.Errorf("runner: projectDir is required")
	}

	var files []string
	err := filepath.WalkDir(projectDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p == projectDir {
				return nil
			}
			if skipDirs[name] || strings.HasPrefix(name, ".") || isTestDir(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[filepath.Ext(name)] || strings.HasSuffix(name, ".d.ts") {
			return nil
		}
		rel, err := filepath.Rel(projectDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if guard.IsTestPath(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("runner: list sources: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func isTestDir(name string) bool {
	switch name {
	case "test", "tests", "__tests__":
		return true
	}
	return false
}
