package main

import (
	"fmt"
	"strings"

	"github.com/seamly/stitch/internal/covfile"
	"github.com/seamly/stitch/internal/job"
	"github.com/spf13/cobra"
)

func newImproveCmd() *cobra.Command {
	var (
		configPath string
		provider   string
		wait       bool
	)

	cmd := &cobra.Command{
		Use:   "improve <file-id>...",
		Short: "Queue test generation for coverage files",
		Long:  "Creates an improvement job targeting the given coverage file IDs (see `stitch repo files`). All targets must belong to the same repository. A running `stitch serve` has the agent write tests and opens a pull request.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImprove(cmd, configPath, args, provider, wait)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "stitch.yaml", "path to Stitch config file")
	cmd.Flags().StringVar(&provider, "provider", "", "agent provider (claude, codex; defaults to config)")
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the job finishes, printing progress")
	return cmd
}

func runImprove(cmd *cobra.Command, configPath string, fileIDs []string, provider string, wait bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if provider == "" {
		provider = cfg.Agent.Provider
	}

	// The repository comes from the targets themselves; the create path
	// rejects batches that span repositories.
	first, err := covfile.Get(gormDB, fileIDs[0])
	if err != nil {
		return err
	}

	j, err := job.CreateImprovement(gormDB, job.CreateImprovementOpts{
		RepositoryID: first.RepositoryID,
		FileIDs:      fileIDs,
		Provider:     provider,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, paths, _ := job.DecodeTargets(j)
	fmt.Fprintf(out, "Created improvement job %s (%s)\n", j.ID, j.Provider)
	fmt.Fprintf(out, "Targets: %s\n", strings.Join(paths, ", "))

	if !wait {
		fmt.Fprintf(out, "Follow with: stitch job show %s\n", j.ID)
		return nil
	}
	return waitForJob(cmd, gormDB, j.ID)
}
