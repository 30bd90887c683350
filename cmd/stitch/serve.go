package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seamly/stitch/internal/dashboard"
	"github.com/seamly/stitch/internal/db"
	"github.com/seamly/stitch/internal/githost"
	"github.com/seamly/stitch/internal/notify"
	"github.com/seamly/stitch/internal/orchestrator"
	"github.com/seamly/stitch/internal/scheduler"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Stitch service",
		Long:  "Starts the job scheduler and the web dashboard in one process. The scheduler claims queued jobs and runs their pipelines; the dashboard serves the API, the UI, and a live progress stream.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "stitch.yaml", "path to Stitch config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	var host orchestrator.PullRequester
	if cfg.GitHub.Token != "" {
		host = githost.NewClient(cfg.GitHub.Token)
	} else {
		fmt.Fprintln(out, "No GitHub token configured; improvement jobs will fail at the pull-request stage.")
	}

	notifier := notify.FromConfig(cfg.Notify)
	hub := dashboard.NewHub()

	orch := orchestrator.New(gormDB, cfg, host, notifier)
	orch.Progress = hub.PublishProgress

	sched, err := scheduler.New(scheduler.Opts{
		DB:            gormDB,
		Runner:        orch,
		PollInterval:  time.Duration(cfg.Scheduler.PollIntervalSeconds) * time.Second,
		ReanalyzeCron: cfg.Scheduler.ReanalyzeCron,
	})
	if err != nil {
		return err
	}

	schedDone := make(chan error, 1)
	go func() {
		schedDone <- sched.Run(ctx)
	}()

	fmt.Fprintf(out, "Stitch serving (poll every %ds)\n", cfg.Scheduler.PollIntervalSeconds)

	dashErr := dashboard.Start(ctx, dashboard.StartOpts{
		DB:                gormDB,
		Port:              cfg.Dashboard.Port,
		Out:               out,
		Hub:               hub,
		DefaultProvider:   cfg.Agent.Provider,
		CoverageThreshold: cfg.Coverage.Threshold,
	})

	cancel()
	if err := <-schedDone; err != nil {
		return err
	}
	return dashErr
}
