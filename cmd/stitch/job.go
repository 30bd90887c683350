package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/seamly/stitch/internal/config"
	"github.com/seamly/stitch/internal/db"
	"github.com/seamly/stitch/internal/job"
	"github.com/seamly/stitch/internal/models"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Job management commands",
	}

	cmd.AddCommand(newJobListCmd())
	cmd.AddCommand(newJobShowCmd())
	cmd.AddCommand(newJobCancelCmd())
	return cmd
}

func newJobListCmd() *cobra.Command {
	var (
		configPath string
		jobType    string
		status     string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Long:  "Lists jobs newest first, with optional filters. Output is formatted as a table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobList(cmd, configPath, job.ListFilters{
				Type:   jobType,
				Status: status,
				Limit:  limit,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "stitch.yaml", "path to Stitch config file")
	cmd.Flags().StringVar(&jobType, "type", "", "filter by type (analysis, improvement)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	return cmd
}

func runJobList(cmd *cobra.Command, configPath string, filters job.ListFilters) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	jobs, err := job.List(gormDB, filters)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPROG\tDETAIL\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
			j.ID, j.Type, j.Status, j.Progress,
			truncate(jobDetail(&j), 48),
			j.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}

// jobDetail picks the one-line description for the list view.
func jobDetail(j *models.Job) string {
	if j.Type == "improvement" {
		if _, paths, err := job.DecodeTargets(j); err == nil && len(paths) > 0 {
			return strings.Join(paths, ", ")
		}
		return "-"
	}
	return j.SourceURL
}

func newJobShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show job details",
		Long:  "Displays full details of a job including progress, error, results, and recorded agent runs.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "stitch.yaml", "path to Stitch config file")
	return cmd
}

func runJobShow(cmd *cobra.Command, configPath, id string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	j, err := job.Get(gormDB, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:          %s\n", j.ID)
	fmt.Fprintf(out, "Type:        %s\n", j.Type)
	fmt.Fprintf(out, "Status:      %s\n", j.Status)
	fmt.Fprintf(out, "Progress:    %d%%\n", j.Progress)
	if j.RepositoryID != "" {
		fmt.Fprintf(out, "Repository:  %s\n", j.RepositoryID)
	}

	switch j.Type {
	case "analysis":
		fmt.Fprintf(out, "Source URL:  %s\n", j.SourceURL)
		fmt.Fprintf(out, "Branch:      %s\n", j.TargetBranch)
		if j.Status == "completed" {
			fmt.Fprintf(out, "Files:       %d found, %d below threshold\n", j.FilesFound, j.FilesBelowThreshold)
		}
	case "improvement":
		if _, paths, err := job.DecodeTargets(j); err == nil {
			fmt.Fprintf(out, "Targets:     %s\n", strings.Join(paths, ", "))
		}
		fmt.Fprintf(out, "Provider:    %s\n", j.Provider)
		fmt.Fprintf(out, "Base branch: %s\n", j.TargetBranch)
		if j.Branch != "" {
			fmt.Fprintf(out, "Work branch: %s\n", j.Branch)
		}
		if j.AttemptCount > 0 {
			fmt.Fprintf(out, "Attempts:    %d\n", j.AttemptCount)
		}
		if j.PullRequestURL != "" {
			fmt.Fprintf(out, "Pull req:    %s\n", j.PullRequestURL)
		}
	}

	fmt.Fprintf(out, "Created:     %s\n", j.CreatedAt.Format("2006-01-02 15:04:05"))
	if j.StartedAt != nil {
		fmt.Fprintf(out, "Started:     %s\n", j.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if j.CompletedAt != nil {
		fmt.Fprintf(out, "Completed:   %s\n", j.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if j.Error != "" {
		fmt.Fprintf(out, "\nError:\n%s\n", j.Error)
	}

	var runs []models.AgentRun
	if err := gormDB.Where("job_id = ?", id).Order("attempt ASC, id ASC").Find(&runs).Error; err != nil {
		return fmt.Errorf("query agent runs: %w", err)
	}
	if len(runs) > 0 {
		fmt.Fprintln(out, "\nAgent runs:")
		for _, r := range runs {
			status := fmt.Sprintf("exit %d", r.ExitCode)
			if r.TimedOut {
				status = "timed out"
			}
			fmt.Fprintf(out, "  [%s] attempt=%d provider=%s %s (%dms)\n",
				r.CreatedAt.Format("2006-01-02 15:04"), r.Attempt, r.Provider, status, r.DurationMs)
		}
	}

	return nil
}

func newJobCancelCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a job",
		Long:  "Cancels a pending or running job. A running pipeline stops at its next checkpoint.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := job.Cancel(gormDB, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled job %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "stitch.yaml", "path to Stitch config file")
	return cmd
}

// connectFromConfig loads config and returns a GORM DB connection.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	return cfg, gormDB, nil
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
