package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"github.com/seamly/stitch/internal/coverage"
	"github.com/seamly/stitch/internal/covfile"
	"github.com/seamly/stitch/internal/gitops"
	"github.com/seamly/stitch/internal/job"
	"github.com/seamly/stitch/internal/models"
	"github.com/seamly/stitch/internal/notify"
	"github.com/seamly/stitch/internal/repo"
	"github.com/seamly/stitch/internal/runner"
)

// runAnalysis measures a repository's test coverage and replaces its stored
// per-file records. Nothing before the final store mutates persisted
// coverage, so a failure at any earlier stage leaves the previous analysis
// intact.
func (o *Orchestrator) runAnalysis(ctx context.Context, j *models.Job) error {
	rep, err := repo.ResolveOrCreate(o.DB, j.SourceURL, j.TargetBranch)
	if err != nil {
		return err
	}
	if err := job.Update(o.DB, j.ID, map[string]interface{}{"repository_id": rep.ID}); err != nil {
		return err
	}
	o.progress(j.ID, 10, "repository resolved")

	wsDir, err := gitops.EnsureWorkspace(o.Cfg.Workdir, j.ID)
	if err != nil {
		return err
	}
	defer func() {
		if err := gitops.CleanupWorkspace(o.Cfg.Workdir, wsDir); err != nil {
			log.Printf("orchestrator: job %s: cleanup workspace: %v", j.ID, err)
		}
	}()

	if err := gitops.CloneRepo(ctx, j.SourceURL, j.TargetBranch, wsDir); err != nil {
		return err
	}
	o.progress(j.ID, 20, "repository cloned")

	report, projectRel, err := o.measureCoverage(ctx, j.ID, wsDir)
	if err != nil {
		return err
	}

	sources, err := runner.ListSourceFiles(filepath.Join(wsDir, projectRel))
	if err != nil {
		return err
	}
	records := buildRecords(report, sources, projectRel)
	o.progress(j.ID, 80, "source files enumerated")

	if _, err := covfile.ReplaceForRepository(o.DB, rep.ID, records); err != nil {
		return err
	}
	o.progress(j.ID, 95, "coverage records stored")

	if err := repo.TouchAnalyzed(o.DB, rep.ID); err != nil {
		return err
	}
	below := 0
	for _, r := range records {
		if r.Percentage < o.Cfg.Coverage.Threshold {
			below++
		}
	}
	if err := job.CompleteAnalysis(o.DB, j.ID, len(records), below); err != nil {
		return err
	}

	detail := fmt.Sprintf("%d files analyzed, %d below %.0f%% (aggregate %.1f%%)",
		len(records), below, o.Cfg.Coverage.Threshold, report.Total)
	o.notifyEvent(ctx, notify.Completed(j.ID, "analysis", repoLabel(rep), detail))
	return nil
}

// measureCoverage locates the project inside the checkout, runs its test
// suite with coverage, and parses the artifacts. A checkout without any
// project manifest yields an empty report rather than a failure; a failing
// test suite is tolerated too, since it may still have written artifacts.
func (o *Orchestrator) measureCoverage(ctx context.Context, jobID, wsDir string) (*coverage.Report, string, error) {
	projectRel, err := runner.FindProjectDir(wsDir)
	if err != nil {
		if errors.Is(err, runner.ErrNoProject) {
			log.Printf("orchestrator: job %s: no project manifest, proceeding with empty report", jobID)
			return &coverage.Report{}, "", nil
		}
		return nil, "", err
	}
	o.progress(jobID, 30, "project located")

	projectAbs := filepath.Join(wsDir, projectRel)
	pm := runner.DetectPackageManager(projectAbs)
	if _, err := runner.InstallDependencies(ctx, projectAbs, pm); err != nil {
		return nil, "", err
	}
	o.progress(jobID, 45, "dependencies installed")

	if _, err := runner.RunCoverage(ctx, projectAbs, pm); err != nil {
		if ctx.Err() != nil {
			return nil, "", err
		}
		log.Printf("orchestrator: job %s: coverage run: %v", jobID, err)
	}
	o.progress(jobID, 60, "coverage run finished")

	report, err := coverage.Collect(projectAbs)
	if err != nil {
		return nil, "", err
	}
	o.progress(jobID, 70, "coverage report parsed")
	return report, projectRel, nil
}

// buildRecords merges the coverage report with the enumerated source files,
// sorted worst-covered first. A file the report never saw is recorded as
// fully uncovered with a single synthetic uncovered line, so unmeasured
// files surface as candidates instead of silently vanishing.
func buildRecords(report *coverage.Report, sources []string, projectDir string) []covfile.Record {
	records := make([]covfile.Record, 0, len(sources))
	for _, src := range sources {
		rec := covfile.Record{
			Path:           src,
			ProjectDir:     projectDir,
			Percentage:     0,
			UncoveredLines: []int{1},
		}
		if fc, ok := report.Find(src); ok {
			rec.Percentage = fc.Percentage
			rec.UncoveredLines = fc.UncoveredLines
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, k int) bool {
		if records[i].Percentage != records[k].Percentage {
			return records[i].Percentage < records[k].Percentage
		}
		return records[i].Path < records[k].Path
	})
	return records
}

func repoLabel(rep *models.Repository) string {
	if rep.Owner != "" && rep.Name != "" {
		return rep.Owner + "/" + rep.Name
	}
	return rep.URL
}
