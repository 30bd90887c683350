package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/seamly/stitch/internal/agent"
	"github.com/seamly/stitch/internal/coverage"
	"github.com/seamly/stitch/internal/covfile"
	"github.com/seamly/stitch/internal/gitops"
	"github.com/seamly/stitch/internal/guard"
	"github.com/seamly/stitch/internal/job"
	"github.com/seamly/stitch/internal/models"
	"github.com/seamly/stitch/internal/notify"
	"github.com/seamly/stitch/internal/repo"
	"github.com/seamly/stitch/internal/runner"
)

// fileOutcome pairs a target file's coverage before the run with its
// coverage after, for the pull request summary.
type fileOutcome struct {
	Path   string
	Before float64
	After  float64
}

// runImprovement generates tests for a job's target files and opens a pull
// request with the result. Target files are claimed (improving) for the
// duration of the run; any failure releases them back to pending so a later
// job can pick them up again.
func (o *Orchestrator) runImprovement(ctx context.Context, j *models.Job) error {
	if o.Host == nil {
		return fmt.Errorf("orchestrator: github host not configured, cannot open pull requests")
	}
	ids, paths, err := job.DecodeTargets(j)
	if err != nil {
		return err
	}
	rep, err := repo.Get(o.DB, j.RepositoryID)
	if err != nil {
		return err
	}
	files, err := covfile.GetBatch(o.DB, ids)
	if err != nil {
		return err
	}
	o.progress(j.ID, 5, "targets loaded")

	if err := covfile.MarkImproving(o.DB, ids); err != nil {
		return err
	}
	if err := o.improveFiles(ctx, j, rep, files, paths); err != nil {
		if resetErr := covfile.ResetToPending(o.DB, ids); resetErr != nil {
			log.Printf("orchestrator: job %s: reset targets to pending: %v", j.ID, resetErr)
		}
		return err
	}
	// The job is already complete; a failure here only leaves a stale file
	// status that the next analysis replaces anyway.
	if err := covfile.MarkImproved(o.DB, ids); err != nil {
		log.Printf("orchestrator: job %s: mark targets improved: %v", j.ID, err)
	}
	return nil
}

func (o *Orchestrator) improveFiles(ctx context.Context, j *models.Job, rep *models.Repository, files []models.CoverageFile, paths []string) error {
	wsDir, err := gitops.EnsureWorkspace(o.Cfg.Workdir, j.ID)
	if err != nil {
		return err
	}
	defer func() {
		if err := gitops.CleanupWorkspace(o.Cfg.Workdir, wsDir); err != nil {
			log.Printf("orchestrator: job %s: cleanup workspace: %v", j.ID, err)
		}
	}()

	if err := gitops.CloneRepo(ctx, rep.URL, j.TargetBranch, wsDir); err != nil {
		return err
	}
	if err := gitops.ConfigureIdentity(wsDir, "", ""); err != nil {
		return err
	}
	o.progress(j.ID, 15, "repository cloned")

	// All targets of one job share a project; the enqueue path enforces it.
	projectRel := files[0].ProjectDir
	projectAbs := filepath.Join(wsDir, projectRel)
	pm := runner.DetectPackageManager(projectAbs)
	if _, err := runner.InstallDependencies(ctx, projectAbs, pm); err != nil {
		return err
	}
	o.progress(j.ID, 30, "dependencies installed")

	branchName := gitops.GenerateBranchName(paths)
	if err := gitops.CreateBranch(wsDir, branchName); err != nil {
		return err
	}
	if err := job.Update(o.DB, j.ID, map[string]interface{}{"branch": branchName}); err != nil {
		return err
	}
	o.progress(j.ID, 35, "work branch created")

	targets := make([]agent.Target, 0, len(files))
	for _, f := range files {
		content, err := os.ReadFile(filepath.Join(wsDir, f.ProjectDir, f.Path))
		if err != nil {
			return fmt.Errorf("orchestrator: target %s missing from checkout: %w", f.Path, err)
		}
		lines, err := covfile.DecodeUncoveredLines(f.UncoveredLines)
		if err != nil {
			return err
		}
		targets = append(targets, agent.Target{
			Path:           f.Path,
			Content:        string(content),
			UncoveredLines: lines,
		})
	}
	o.progress(j.ID, 40, "target files read")

	inv, err := o.invokerFor(j.Provider)
	if err != nil {
		return err
	}
	testFiles, attempts, err := o.generateTests(ctx, j, inv, wsDir, projectRel, targets)
	if updateErr := job.Update(o.DB, j.ID, map[string]interface{}{"attempt_count": attempts}); updateErr != nil {
		log.Printf("orchestrator: job %s: record attempt count: %v", j.ID, updateErr)
	}
	if err != nil {
		return err
	}
	o.progress(j.ID, 60, "tests generated")

	// Re-measuring is best effort: a broken re-run must not throw away
	// generated tests that already passed validation and containment.
	if _, err := runner.RunCoverage(ctx, projectAbs, pm); err != nil {
		if ctx.Err() != nil {
			return err
		}
		log.Printf("orchestrator: job %s: coverage re-run: %v", j.ID, err)
	}
	rerun, err := coverage.Collect(projectAbs)
	if err != nil {
		log.Printf("orchestrator: job %s: collect re-run coverage: %v", j.ID, err)
		rerun = &coverage.Report{}
	}
	o.progress(j.ID, 75, "coverage re-measured")

	outcomes := make([]fileOutcome, 0, len(files))
	for _, f := range files {
		out := fileOutcome{Path: f.Path, Before: f.Percentage, After: f.Percentage}
		if fc, ok := rerun.Find(f.Path); ok {
			out.After = fc.Percentage
			if err := covfile.UpdateCoverage(o.DB, f.ID, fc.Percentage, fc.UncoveredLines); err != nil {
				return err
			}
		}
		outcomes = append(outcomes, out)
	}
	o.progress(j.ID, 80, "coverage records updated")

	if err := gitops.CommitAndPush(wsDir, branchName, buildCommitMessage(paths, outcomes), testFiles); err != nil {
		return err
	}
	o.progress(j.ID, 90, "changes pushed")

	prURL, err := o.Host.CreatePullRequest(ctx, rep.Owner, rep.Name,
		buildPRTitle(paths), buildPRBody(rep, j.TargetBranch, outcomes, inv.Name(), attempts),
		branchName, j.TargetBranch)
	if err != nil {
		return err
	}
	o.progress(j.ID, 95, "pull request opened")

	if err := job.CompleteImprovement(o.DB, j.ID, prURL); err != nil {
		return err
	}
	o.notifyEvent(ctx, notify.Completed(j.ID, "improvement", repoLabel(rep),
		fmt.Sprintf("%s (%s)", summarizeOutcomes(outcomes), prURL)))
	return nil
}

// generateTests drives the agent until one attempt survives validation and
// containment, up to the configured attempt budget. Each retry starts from
// a clean tree. It returns the surviving test files and the number of
// attempts consumed.
func (o *Orchestrator) generateTests(ctx context.Context, j *models.Job, inv agent.Invoker, wsDir, projectRel string, targets []agent.Target) ([]string, int, error) {
	maxAttempts := o.Cfg.Agent.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	timeout := time.Duration(o.Cfg.Agent.TimeoutMS) * time.Millisecond

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempts, err
		}
		if attempt > 1 {
			if err := gitops.DiscardChanges(wsDir); err != nil {
				return nil, attempts, err
			}
		}
		attempts = attempt

		err := inv.Generate(ctx, agent.Request{
			JobID:        j.ID,
			Attempt:      attempt,
			WorkspaceDir: wsDir,
			ProjectDir:   projectRel,
			Targets:      targets,
			Timeout:      timeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, attempts, err
			}
			lastErr = err
			log.Printf("orchestrator: job %s: attempt %d: %v", j.ID, attempt, err)
			continue
		}

		changed, err := gitops.ChangedFiles(wsDir)
		if err != nil {
			return nil, attempts, err
		}
		candidates := filterTestFiles(changed)
		if len(candidates) == 0 {
			lastErr = fmt.Errorf("orchestrator: agent produced no test files")
			continue
		}
		if err := guard.ValidateTests(wsDir, candidates); err != nil {
			lastErr = err
			continue
		}
		kept, err := guard.Contain(wsDir)
		if err != nil {
			// A workspace where disallowed changes survived remediation
			// cannot be trusted; no retry can recover it.
			return nil, attempts, err
		}
		return kept, attempts, nil
	}
	return nil, attempts, fmt.Errorf("orchestrator: generation failed after %d attempts: %w", attempts, lastErr)
}

func filterTestFiles(paths []string) []string {
	var out []string
	for _, p := range paths {
		if guard.IsTestPath(p) {
			out = append(out, p)
		}
	}
	return out
}
