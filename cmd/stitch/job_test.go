package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/seamly/stitch/internal/config"
	"github.com/seamly/stitch/internal/db"
	"github.com/seamly/stitch/internal/job"
	"github.com/seamly/stitch/internal/models"
	"gorm.io/gorm"
)

// writeTestConfig writes a minimal config backed by a throwaway sqlite
// database and returns the config path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf("database:\n  driver: sqlite\n  path: %s\nworkdir: %s\n",
		filepath.Join(dir, "stitch.db"), filepath.Join(dir, "work"))
	cfgPath := filepath.Join(dir, "stitch.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

// openConfigDB opens and migrates the database a test config points at, so
// commands executed against the same config find the schema in place.
func openConfigDB(t *testing.T, cfgPath string) *gorm.DB {
	t.Helper()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gormDB
}

// runCommand executes the root command with args and returns its combined
// output, failing the test on error.
func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("command %v failed: %v\noutput: %s", args, err, buf.String())
	}
	return buf.String()
}

// runCommandErr executes the root command with args expecting failure, and
// returns the error.
func runCommandErr(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		t.Fatalf("command %v succeeded, expected error\noutput: %s", args, buf.String())
	}
	return err
}

func TestJobCmdHelp(t *testing.T) {
	out := runCommand(t, "job", "--help")
	for _, sub := range []string{"list", "show", "cancel"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected job help to list %q, got: %s", sub, out)
		}
	}
}

func TestNewJobCmd(t *testing.T) {
	cmd := newJobCmd()
	if cmd.Use != "job" {
		t.Errorf("expected Use 'job', got %q", cmd.Use)
	}
	if !cmd.HasSubCommands() {
		t.Error("expected job command to have subcommands")
	}
}

func TestJobListEmpty(t *testing.T) {
	cfgPath := writeTestConfig(t)
	openConfigDB(t, cfgPath)

	out := runCommand(t, "job", "list", "-c", cfgPath)
	if !strings.Contains(out, "No jobs found.") {
		t.Errorf("expected empty listing message, got: %s", out)
	}
}

func TestJobList(t *testing.T) {
	cfgPath := writeTestConfig(t)
	gormDB := openConfigDB(t, cfgPath)

	j, err := job.CreateAnalysis(gormDB, job.CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("create analysis: %v", err)
	}

	out := runCommand(t, "job", "list", "-c", cfgPath)
	if !strings.Contains(out, j.ID) {
		t.Errorf("expected listing to contain job ID %s, got: %s", j.ID, out)
	}
	if !strings.Contains(out, "analysis") || !strings.Contains(out, "pending") {
		t.Errorf("expected type and status columns, got: %s", out)
	}

	// A status filter nothing matches yields the empty message.
	out = runCommand(t, "job", "list", "-c", cfgPath, "--status", "completed")
	if !strings.Contains(out, "No jobs found.") {
		t.Errorf("expected no completed jobs, got: %s", out)
	}
}

func TestJobShow(t *testing.T) {
	cfgPath := writeTestConfig(t)
	gormDB := openConfigDB(t, cfgPath)

	j, err := job.CreateAnalysis(gormDB, job.CreateAnalysisOpts{
		SourceURL:    "https://github.com/org/app.git",
		TargetBranch: "develop",
	})
	if err != nil {
		t.Fatalf("create analysis: %v", err)
	}
	run := models.AgentRun{
		JobID:      j.ID,
		Provider:   "claude",
		Attempt:    1,
		DurationMs: 1200,
	}
	if err := gormDB.Create(&run).Error; err != nil {
		t.Fatalf("seed agent run: %v", err)
	}

	out := runCommand(t, "job", "show", j.ID, "-c", cfgPath)
	if !strings.Contains(out, j.ID) {
		t.Errorf("expected detail to contain job ID, got: %s", out)
	}
	if !strings.Contains(out, "https://github.com/org/app.git") {
		t.Errorf("expected detail to contain source URL, got: %s", out)
	}
	if !strings.Contains(out, "develop") {
		t.Errorf("expected detail to contain target branch, got: %s", out)
	}
	if !strings.Contains(out, "attempt=1") || !strings.Contains(out, "provider=claude") {
		t.Errorf("expected agent run line, got: %s", out)
	}
}

func TestJobShowNotFound(t *testing.T) {
	cfgPath := writeTestConfig(t)
	openConfigDB(t, cfgPath)

	err := runCommandErr(t, "job", "show", "job-missing", "-c", cfgPath)
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got: %v", err)
	}
}

func TestJobCancel(t *testing.T) {
	cfgPath := writeTestConfig(t)
	gormDB := openConfigDB(t, cfgPath)

	j, err := job.CreateAnalysis(gormDB, job.CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("create analysis: %v", err)
	}

	out := runCommand(t, "job", "cancel", j.ID, "-c", cfgPath)
	if !strings.Contains(out, "Cancelled job "+j.ID) {
		t.Errorf("expected cancel confirmation, got: %s", out)
	}

	got, err := job.Get(gormDB, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != "failed" {
		t.Errorf("expected status failed after cancel, got %s", got.Status)
	}
	if got.Error != job.CancelledMessage {
		t.Errorf("expected cancellation message, got %q", got.Error)
	}

	// Cancelling a terminal job is rejected.
	if err := runCommandErr(t, "job", "cancel", j.ID, "-c", cfgPath); err == nil {
		t.Error("expected error cancelling a terminal job")
	}
}

func TestJobListMissingConfig(t *testing.T) {
	err := runCommandErr(t, "job", "list", "-c", "/nonexistent/stitch.yaml")
	if !strings.Contains(err.Error(), "load config") {
		t.Errorf("expected load config error, got: %v", err)
	}
}

func TestJobDetail(t *testing.T) {
	analysis := &models.Job{Type: "analysis", SourceURL: "https://github.com/org/app.git"}
	if got := jobDetail(analysis); got != "https://github.com/org/app.git" {
		t.Errorf("expected source URL for analysis detail, got %q", got)
	}

	improvement := &models.Job{Type: "improvement", TargetPaths: `["src/a.ts","src/b.ts"]`}
	if got := jobDetail(improvement); got != "src/a.ts, src/b.ts" {
		t.Errorf("expected joined target paths, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"this is a longer string", 10, "this is..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
