// Package scheduler drives the job queue. It claims and runs eligible jobs
// on a fixed poll interval and enqueues periodic re-analysis of tracked
// repositories on an optional cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/seamly/stitch/internal/covfile"
	"github.com/seamly/stitch/internal/job"
	"github.com/seamly/stitch/internal/models"
	"github.com/seamly/stitch/internal/repo"
	"gorm.io/gorm"
)

// DefaultPollInterval matches the config default.
const DefaultPollInterval = 5 * time.Second

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// JobRunner abstracts the orchestrator for testability.
type JobRunner interface {
	ProcessNextJob(ctx context.Context) (*models.Job, error)
}

// Opts holds parameters for creating a Scheduler.
type Opts struct {
	DB            *gorm.DB
	Runner        JobRunner
	PollInterval  time.Duration // defaults to DefaultPollInterval
	ReanalyzeCron string        // 5-field cron expression, empty disables
}

// Scheduler owns the poll loop. One Scheduler runs per process; job-level
// concurrency limits live in the claim query, not here.
type Scheduler struct {
	db           *gorm.DB
	runner       JobRunner
	pollInterval time.Duration
	reanalyze    cron.Schedule // nil when disabled
}

// New creates a Scheduler.
func New(opts Opts) (*Scheduler, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("scheduler: db is required")
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("scheduler: runner is required")
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	s := &Scheduler{db: opts.DB, runner: opts.Runner, pollInterval: poll}
	if opts.ReanalyzeCron != "" {
		sched, err := cronParser.Parse(opts.ReanalyzeCron)
		if err != nil {
			return nil, fmt.Errorf("scheduler: parse reanalyze cron %q: %w", opts.ReanalyzeCron, err)
		}
		s.reanalyze = sched
	}
	return s, nil
}

// Recover clears state left behind by an unclean shutdown: running jobs
// fail and claimed coverage files return to pending. Call it once before
// the loop starts.
func Recover(db *gorm.DB) error {
	jobs, err := job.RecoverInterrupted(db)
	if err != nil {
		return err
	}
	files, err := covfile.ResetAllImproving(db)
	if err != nil {
		return err
	}
	if jobs > 0 || files > 0 {
		log.Printf("scheduler: recovered %d interrupted jobs, released %d claimed files", jobs, files)
	}
	return nil
}

// Run blocks until ctx is cancelled, draining the queue on every tick.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := Recover(s.db); err != nil {
		return err
	}
	log.Printf("scheduler: polling every %s", s.pollInterval)

	var nextReanalyze time.Time
	if s.reanalyze != nil {
		nextReanalyze = s.reanalyze.Next(time.Now())
		log.Printf("scheduler: next re-analysis sweep at %s", nextReanalyze.Format(time.RFC3339))
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.reanalyze != nil && time.Now().After(nextReanalyze) {
				if n, err := s.EnqueueReanalyses(); err != nil {
					log.Printf("scheduler: reanalyze sweep: %v", err)
				} else if n > 0 {
					log.Printf("scheduler: enqueued %d re-analysis jobs", n)
				}
				nextReanalyze = s.reanalyze.Next(time.Now())
			}
			if err := s.Drain(ctx); err != nil && ctx.Err() == nil {
				log.Printf("scheduler: drain: %v", err)
			}
		}
	}
}

// Drain processes queued jobs until none are eligible. Job failures are
// recorded on the job rows by the runner; only claim errors surface here.
func (s *Scheduler) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		j, err := s.runner.ProcessNextJob(ctx)
		if err != nil {
			return err
		}
		if j == nil {
			return nil
		}
	}
}

// EnqueueReanalyses creates an analysis job for every tracked repository
// that has none pending or running. Returns how many were enqueued.
func (s *Scheduler) EnqueueReanalyses() (int, error) {
	repos, err := repo.List(s.db)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, r := range repos {
		var active int64
		if err := s.db.Model(&models.Job{}).
			Where("type = ? AND source_url = ? AND status IN ?", "analysis", r.URL, []string{"pending", "running"}).
			Count(&active).Error; err != nil {
			return enqueued, fmt.Errorf("scheduler: count active analyses for %s: %w", r.URL, err)
		}
		if active > 0 {
			continue
		}
		if _, err := job.CreateAnalysis(s.db, job.CreateAnalysisOpts{SourceURL: r.URL, TargetBranch: r.Branch}); err != nil {
			log.Printf("scheduler: enqueue analysis for %s: %v", r.URL, err)
			continue
		}
		enqueued++
	}
	return enqueued, nil
}
