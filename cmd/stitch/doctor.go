package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/seamly/stitch/internal/agent"
	"github.com/seamly/stitch/internal/config"
	"github.com/seamly/stitch/internal/db"
	"github.com/seamly/stitch/internal/githost"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system prerequisites and configuration",
		Long:  "Runs diagnostic checks on Stitch prerequisites: config, binaries, database, schema, workdir, agent CLI, and GitHub credentials.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "stitch.yaml", "path to Stitch config file")
	return cmd
}

type checkResult struct {
	name   string
	status string // "PASS", "FAIL", "WARN"
	detail string
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Stitch Doctor")
	fmt.Fprintln(out, "=============")

	var results []checkResult

	cfg, cfgResult := checkConfig(configPath)
	results = append(results, cfgResult)

	for _, bin := range []string{"git", "node", "npm"} {
		results = append(results, checkBinary(bin))
	}

	if cfg != nil {
		results = append(results, checkDatabase(cfg))
		results = append(results, checkSchema(cfg))
		results = append(results, checkWorkdir(cfg.Workdir))
		results = append(results, checkAgent(cfg.Agent.Provider))
		results = append(results, checkGitHub(cfg.GitHub.Token))
	}

	passed, failed, warned := 0, 0, 0
	for _, r := range results {
		printCheckResult(out, r)
		switch r.status {
		case "PASS":
			passed++
		case "FAIL":
			failed++
		case "WARN":
			warned++
		}
	}

	fmt.Fprintf(out, "\n%d passed, %d failed, %d warning\n", passed, failed, warned)

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func printCheckResult(out io.Writer, r checkResult) {
	fmt.Fprintf(out, "[%s] %s: %s\n", r.status, r.name, r.detail)
}

func checkConfig(path string) (*config.Config, checkResult) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, checkResult{"Config file", "FAIL", fmt.Sprintf("%s: %v", path, err)}
	}
	return cfg, checkResult{"Config file", "PASS", path}
}

func checkBinary(name string) checkResult {
	path, err := exec.LookPath(name)
	if err != nil {
		return checkResult{name, "FAIL", "not found in PATH"}
	}

	out, err := exec.Command(path, "--version").Output()
	if err != nil {
		return checkResult{name, "PASS", "found (version unknown)"}
	}
	version := strings.TrimSpace(strings.Split(string(out), "\n")[0])
	return checkResult{name, "PASS", version}
}

func checkDatabase(cfg *config.Config) checkResult {
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return checkResult{"Database", "FAIL", err.Error()}
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return checkResult{"Database", "FAIL", fmt.Sprintf("get sql.DB: %v", err)}
	}
	if err := sqlDB.Ping(); err != nil {
		return checkResult{"Database", "FAIL", fmt.Sprintf("ping failed: %v", err)}
	}
	return checkResult{"Database", "PASS", databaseLabel(cfg)}
}

func databaseLabel(cfg *config.Config) string {
	if cfg.Database.Driver == "mysql" {
		return fmt.Sprintf("mysql %s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	}
	return fmt.Sprintf("sqlite %s", cfg.Database.Path)
}

func checkSchema(cfg *config.Config) checkResult {
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return checkResult{"Schema", "FAIL", fmt.Sprintf("connect: %v", err)}
	}

	expected := db.AllModels()
	migrated := 0
	for _, m := range expected {
		if gormDB.Migrator().HasTable(m) {
			migrated++
		}
	}
	if migrated == len(expected) {
		return checkResult{"Schema", "PASS", fmt.Sprintf("%d/%d tables migrated", migrated, len(expected))}
	}
	return checkResult{"Schema", "WARN", fmt.Sprintf("%d/%d tables migrated, run `stitch db init`", migrated, len(expected))}
}

func checkWorkdir(workdir string) checkResult {
	if err := os.MkdirAll(workdir, 0755); err != nil {
		return checkResult{"Workdir", "FAIL", fmt.Sprintf("%s: %v", workdir, err)}
	}
	probe, err := os.CreateTemp(workdir, "doctor-*")
	if err != nil {
		return checkResult{"Workdir", "FAIL", fmt.Sprintf("%s not writable: %v", workdir, err)}
	}
	probe.Close()
	os.Remove(probe.Name())
	return checkResult{"Workdir", "PASS", workdir}
}

func checkAgent(provider string) checkResult {
	inv, err := agent.New(provider, nil)
	if err != nil {
		return checkResult{"Agent", "FAIL", err.Error()}
	}
	if !inv.IsAvailable() {
		return checkResult{"Agent", "WARN", fmt.Sprintf("%s CLI not found (improvement jobs need it)", inv.Name())}
	}
	return checkResult{"Agent", "PASS", fmt.Sprintf("%s CLI found", inv.Name())}
}

func checkGitHub(token string) checkResult {
	if token == "" {
		return checkResult{"GitHub token", "WARN", "not set (pull-request creation disabled)"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	login, err := githost.NewClient(token).TokenUser(ctx)
	if err != nil {
		return checkResult{"GitHub token", "FAIL", fmt.Sprintf("verify: %v", err)}
	}
	return checkResult{"GitHub token", "PASS", fmt.Sprintf("authenticated as %s", login)}
}
