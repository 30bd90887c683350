package coverage

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseLCOV decodes an lcov.info tracefile. Line counts come from the
// LF/LH records when present, else from the DA records; uncovered lines
// are the DA records with zero hits.
func ParseLCOV(data []byte) ([]FileCoverage, error) {
	var files []FileCoverage
	var cur *FileCoverage
	var daTotal, daCovered int
	var haveLF, haveLH bool

	flush := func() {
		if cur == nil {
			return
		}
		if !haveLF {
			cur.LinesTotal = daTotal
		}
		if !haveLH {
			cur.LinesCovered = daCovered
		}
		sort.Ints(cur.UncoveredLines)
		cur.Percentage = pct(cur.LinesCovered, cur.LinesTotal)
		files = append(files, *cur)
		cur = nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.HasPrefix(line, "SF:"):
			flush()
			cur = &FileCoverage{Path: strings.TrimSpace(line[3:])}
			daTotal, daCovered = 0, 0
			haveLF, haveLH = false, false

		case strings.HasPrefix(line, "DA:"):
			if cur == nil {
				continue
			}
			// DA:<line>,<hits>[,<checksum>]
			parts := strings.SplitN(line[3:], ",", 3)
			if len(parts) < 2 {
				return nil, fmt.Errorf("coverage: malformed lcov DA record at line %d: %q", lineNo, line)
			}
			ln, err := strconv.Atoi(parts[0])
			if err != nil {
				return nil, fmt.Errorf("coverage: malformed lcov DA record at line %d: %q", lineNo, line)
			}
			hits, err := strconv.Atoi(parts[1])
			if err != nil {
				return nil, fmt.Errorf("coverage: malformed lcov DA record at line %d: %q", lineNo, line)
			}
			daTotal++
			if hits > 0 {
				daCovered++
			} else {
				cur.UncoveredLines = append(cur.UncoveredLines, ln)
			}

		case strings.HasPrefix(line, "LF:"):
			if cur == nil {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(line[3:]))
			if err != nil {
				return nil, fmt.Errorf("coverage: malformed lcov LF record at line %d: %q", lineNo, line)
			}
			cur.LinesTotal = n
			haveLF = true

		case strings.HasPrefix(line, "LH:"):
			if cur == nil {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(line[3:]))
			if err != nil {
				return nil, fmt.Errorf("coverage: malformed lcov LH record at line %d: %q", lineNo, line)
			}
			cur.LinesCovered = n
			haveLH = true

		case line == "end_of_record":
			flush()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("coverage: read lcov: %w", err)
	}
	flush()

	return files, nil
}
