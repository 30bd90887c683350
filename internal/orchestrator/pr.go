package orchestrator

import (
	"fmt"
	"strings"

	"github.com/seamly/stitch/internal/coverage"
	"github.com/seamly/stitch/internal/models"
)

func buildCommitMessage(paths []string, outcomes []fileOutcome) string {
	subject := fmt.Sprintf("Add tests for %d files", len(paths))
	if len(paths) == 1 {
		subject = fmt.Sprintf("Add tests for %s", paths[0])
	}
	if len(outcomes) == 0 {
		return subject
	}
	return subject + "\n\n" + summarizeOutcomes(outcomes)
}

func buildPRTitle(paths []string) string {
	if len(paths) == 1 {
		return fmt.Sprintf("Improve test coverage for %s", paths[0])
	}
	return fmt.Sprintf("Improve test coverage for %d files", len(paths))
}

// buildPRBody assembles the pull request description: a summary, a per-file
// before/after table, and a review checklist for the humans taking over.
func buildPRBody(rep *models.Repository, targetBranch string, outcomes []fileOutcome, provider string, attempts int) string {
	var b strings.Builder

	b.WriteString("## Summary\n")
	b.WriteString(fmt.Sprintf("Automated test coverage improvement for `%s`, targeting `%s`.\n", repoLabel(rep), targetBranch))
	b.WriteString(fmt.Sprintf("Tests were generated by the %s agent in %s.\n\n", provider, plural(attempts, "attempt")))

	b.WriteString("## Coverage\n")
	b.WriteString("| File | Before | After |\n")
	b.WriteString("|------|--------|-------|\n")
	for _, out := range outcomes {
		b.WriteString(fmt.Sprintf("| `%s` | %.1f%% | %.1f%% |\n", out.Path, out.Before, out.After))
	}
	b.WriteString("\n")

	b.WriteString("## Checklist\n")
	b.WriteString("- [ ] Generated tests make meaningful assertions\n")
	b.WriteString("- [ ] Suite passes in CI\n\n")

	b.WriteString("---\n")
	b.WriteString(fmt.Sprintf("Opened automatically by stitch | Agent: %s | Attempts: %d\n", provider, attempts))

	return b.String()
}

// summarizeOutcomes condenses the per-file results into one line, reporting
// the average coverage movement across targets. Used in the commit body and
// the completion notification.
func summarizeOutcomes(outcomes []fileOutcome) string {
	if len(outcomes) == 0 {
		return "no target files"
	}
	var before, after float64
	for _, out := range outcomes {
		before += out.Before
		after += out.After
	}
	n := float64(len(outcomes))
	return fmt.Sprintf("%s, coverage %.1f%% -> %.1f%%",
		plural(len(outcomes), "file"), coverage.Round1(before/n), coverage.Round1(after/n))
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
