// Package orchestrator runs claimed jobs through their pipelines: analysis
// measures a repository's coverage and stores the per-file results,
// improvement has an AI agent write tests for chosen files and opens a pull
// request with the outcome. One call processes one job start to finish;
// concurrency is bounded by the claim eligibility rules, not by workers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/seamly/stitch/internal/agent"
	"github.com/seamly/stitch/internal/config"
	"github.com/seamly/stitch/internal/job"
	"github.com/seamly/stitch/internal/models"
	"github.com/seamly/stitch/internal/notify"
)

// PullRequester opens pull requests on the hosting service.
type PullRequester interface {
	CreatePullRequest(ctx context.Context, owner, repo, title, body, head, base string) (string, error)
}

// ProgressFunc receives every persisted progress checkpoint, for mirroring
// to live listeners.
type ProgressFunc func(jobID string, pct int, msg string)

// Orchestrator wires the pipelines to their collaborators.
type Orchestrator struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Host     PullRequester // nil disables pull-request creation
	Notify   *notify.Multi // nil disables notifications
	Progress ProgressFunc  // nil disables mirroring

	// Agent, when set, overrides provider construction. Used by tests.
	Agent agent.Invoker
}

// New returns an Orchestrator over the given collaborators.
func New(db *gorm.DB, cfg *config.Config, host PullRequester, notifier *notify.Multi) *Orchestrator {
	return &Orchestrator{DB: db, Cfg: cfg, Host: host, Notify: notifier}
}

// ProcessNextJob claims the oldest eligible pending job and runs its
// pipeline to completion. It returns the claimed job, or nil when nothing
// is eligible. Pipeline errors fail the job and are not returned; only
// claim-level problems surface as errors.
func (o *Orchestrator) ProcessNextJob(ctx context.Context) (*models.Job, error) {
	j, err := job.ClaimNextEligible(o.DB)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	log.Printf("orchestrator: job %s started (%s)", j.ID, j.Type)

	var runErr error
	switch j.Type {
	case "analysis":
		runErr = o.runAnalysis(ctx, j)
	case "improvement":
		runErr = o.runImprovement(ctx, j)
	default:
		runErr = fmt.Errorf("orchestrator: unknown job type %q", j.Type)
	}

	if runErr != nil {
		o.failJob(ctx, j, runErr)
	} else {
		log.Printf("orchestrator: job %s completed", j.ID)
	}
	return j, nil
}

// failJob records the failure. When the job was cancelled mid-flight the
// terminal state already exists and only the log line remains.
func (o *Orchestrator) failJob(ctx context.Context, j *models.Job, cause error) {
	log.Printf("orchestrator: job %s failed: %v", j.ID, cause)
	if err := job.Fail(o.DB, j.ID, cause.Error()); err != nil {
		if cur, getErr := job.Get(o.DB, j.ID); getErr == nil && job.IsCancelled(cur) {
			log.Printf("orchestrator: job %s was cancelled mid-flight", j.ID)
			return
		}
		log.Printf("orchestrator: job %s: record failure: %v", j.ID, err)
	}
	o.notifyEvent(ctx, notify.Failed(j.ID, j.Type, j.SourceURL, cause.Error()))
}

// progress persists a checkpoint so it is externally observable mid-flight,
// then mirrors it to the log and the sink.
func (o *Orchestrator) progress(jobID string, pct int, msg string) {
	if err := job.SetProgress(o.DB, jobID, pct); err != nil {
		log.Printf("orchestrator: job %s: progress: %v", jobID, err)
	}
	log.Printf("orchestrator: job %s: %d%% %s", jobID, pct, msg)
	if o.Progress != nil {
		o.Progress(jobID, pct, msg)
	}
}

func (o *Orchestrator) notifyEvent(ctx context.Context, ev notify.Event) {
	if o.Notify == nil {
		return
	}
	o.Notify.Send(ctx, ev)
}

// invokerFor returns the agent for the provider, honoring the test override.
func (o *Orchestrator) invokerFor(provider string) (agent.Invoker, error) {
	if o.Agent != nil {
		return o.Agent, nil
	}
	return agent.New(provider, o.DB)
}
