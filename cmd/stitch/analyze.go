package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/seamly/stitch/internal/job"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		configPath string
		branch     string
		wait       bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Queue a coverage analysis of a repository",
		Long:  "Creates an analysis job for the given repository URL. A running `stitch serve` picks it up, clones the repository, runs its test suite with coverage, and records per-file results.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, configPath, args[0], branch, wait)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "stitch.yaml", "path to Stitch config file")
	cmd.Flags().StringVar(&branch, "branch", "", "branch to analyze (defaults to main)")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the job finishes, printing progress")
	return cmd
}

func runAnalyze(cmd *cobra.Command, configPath, url, branch string, wait bool) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	j, err := job.CreateAnalysis(gormDB, job.CreateAnalysisOpts{
		SourceURL:    url,
		TargetBranch: branch,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created analysis job %s for %s (%s)\n", j.ID, j.SourceURL, j.TargetBranch)

	if !wait {
		fmt.Fprintf(out, "Follow with: stitch job show %s\n", j.ID)
		return nil
	}
	return waitForJob(cmd, gormDB, j.ID)
}

// waitForJob polls the job row until it reaches a terminal status, printing
// progress changes as they land. Ctrl+C stops watching, not the job.
func waitForJob(cmd *cobra.Command, gormDB *gorm.DB, id string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Waiting... (Ctrl+C to stop watching)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	lastProgress := -1
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "Stopped watching; the job keeps running.")
			return nil
		case <-ticker.C:
			j, err := job.Get(gormDB, id)
			if err != nil {
				return err
			}
			if j.Progress != lastProgress {
				fmt.Fprintf(out, "  %3d%%\n", j.Progress)
				lastProgress = j.Progress
			}
			switch j.Status {
			case "completed":
				switch j.Type {
				case "analysis":
					fmt.Fprintf(out, "Analysis complete: %d files, %d below threshold\n",
						j.FilesFound, j.FilesBelowThreshold)
				case "improvement":
					fmt.Fprintf(out, "Improvement complete: %s\n", j.PullRequestURL)
				}
				return nil
			case "failed":
				return fmt.Errorf("job %s failed: %s", j.ID, j.Error)
			}
		}
	}
}
