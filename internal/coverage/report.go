// Package coverage normalizes test coverage reports into one shape.
//
// Two artifact formats are understood: the istanbul json-summary map and
// the lcov line-coverage text format. Both reduce to a Report of per-file
// line counts, a percentage and the uncovered line numbers (where the
// format carries them).
package coverage

import (
	"math"
	"path"
)

// FileCoverage describes one source file's measured coverage.
type FileCoverage struct {
	Path           string
	LinesCovered   int
	LinesTotal     int
	Percentage     float64
	UncoveredLines []int
}

// Report is a normalized coverage result for one test run.
type Report struct {
	Files []FileCoverage
	Total float64
}

// Find locates a file's coverage by exact path, falling back to a unique
// basename match for reports that record paths differently than the
// caller tracks them. Ambiguous basenames match nothing.
func (r *Report) Find(p string) (FileCoverage, bool) {
	for _, f := range r.Files {
		if f.Path == p {
			return f, true
		}
	}

	base := path.Base(p)
	var match FileCoverage
	var hits int
	for _, f := range r.Files {
		if path.Base(f.Path) == base {
			match = f
			hits++
		}
	}
	if hits == 1 {
		return match, true
	}
	return FileCoverage{}, false
}

// Aggregate computes the overall percentage as covered lines over total
// lines, not a mean of per-file percentages.
func Aggregate(files []FileCoverage) float64 {
	var covered, total int
	for _, f := range files {
		covered += f.LinesCovered
		total += f.LinesTotal
	}
	if total == 0 {
		return 0
	}
	return Round1(100 * float64(covered) / float64(total))
}

// Round1 rounds to one decimal place, the stored precision.
func Round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// pct derives a file percentage from its line counts. A file with no
// executable lines counts as fully covered.
func pct(covered, total int) float64 {
	if total == 0 {
		return 100
	}
	return Round1(100 * float64(covered) / float64(total))
}
