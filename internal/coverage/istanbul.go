package coverage

import (
	"encoding/json"
	"fmt"
	"sort"
)

// summaryMetric is the lines block of an istanbul json-summary entry. The
// pct field is deliberately not decoded; istanbul emits the string
// "Unknown" there for empty files, and we derive the percentage from the
// counts anyway.
type summaryMetric struct {
	Total   int `json:"total"`
	Covered int `json:"covered"`
}

type summaryEntry struct {
	Lines summaryMetric `json:"lines"`
}

// ParseSummary decodes an istanbul coverage-summary.json document. The
// "total" entry is skipped; aggregates are recomputed from the file rows.
// The summary format carries no per-line detail, so UncoveredLines stays
// empty.
func ParseSummary(data []byte) ([]FileCoverage, error) {
	var doc map[string]summaryEntry
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("coverage: parse summary json: %w", err)
	}

	files := make([]FileCoverage, 0, len(doc))
	for p, entry := range doc {
		if p == "total" {
			continue
		}
		files = append(files, FileCoverage{
			Path:         p,
			LinesCovered: entry.Lines.Covered,
			LinesTotal:   entry.Lines.Total,
			Percentage:   pct(entry.Lines.Covered, entry.Lines.Total),
		})
	}

	// Map order is random; keep output stable.
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
