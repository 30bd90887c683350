package job

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/seamly/stitch/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Repository{},
		&models.CoverageFile{},
		&models.Job{},
		&models.AgentRun{},
	); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

func seedRepo(t *testing.T, db *gorm.DB, id, url, branch string) {
	t.Helper()
	repo := models.Repository{ID: id, URL: url, Branch: branch, DefaultBranch: branch}
	if err := db.Create(&repo).Error; err != nil {
		t.Fatalf("seed repo: %v", err)
	}
}

func seedFile(t *testing.T, db *gorm.DB, id, repoID, path string, pct float64) {
	t.Helper()
	f := models.CoverageFile{
		ID:           id,
		RepositoryID: repoID,
		Path:         path,
		Percentage:   pct,
		Status:       "pending",
	}
	if err := db.Create(&f).Error; err != nil {
		t.Fatalf("seed file: %v", err)
	}
}

func TestGenerateID_Format(t *testing.T) {
	id, err := GenerateID()
	if err != nil {
		t.Fatalf("GenerateID() error: %v", err)
	}
	if !strings.HasPrefix(id, "job-") {
		t.Errorf("ID %q missing job- prefix", id)
	}
	// job- (4 chars) + 8 hex chars = 12 total
	if len(id) != 12 {
		t.Errorf("ID length = %d, want 12; id = %q", len(id), id)
	}
}

func TestGenerateID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateID()
		if err != nil {
			t.Fatalf("GenerateID() iteration %d: %v", i, err)
		}
		if seen[id] {
			t.Fatalf("duplicate ID %q on iteration %d", id, i)
		}
		seen[id] = true
	}
}

func TestCreateAnalysis(t *testing.T) {
	db := openTestDB(t)

	j, err := CreateAnalysis(db, CreateAnalysisOpts{
		SourceURL: "https://github.com/org/app.git",
	})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}

	if j.Type != "analysis" {
		t.Errorf("Type = %q, want %q", j.Type, "analysis")
	}
	if j.Status != "pending" {
		t.Errorf("Status = %q, want %q", j.Status, "pending")
	}
	if j.TargetBranch != "main" {
		t.Errorf("TargetBranch = %q, want %q (default)", j.TargetBranch, "main")
	}
	if !strings.HasPrefix(j.ID, "job-") {
		t.Errorf("ID = %q, want job- prefix", j.ID)
	}
}

func TestCreateAnalysis_ExplicitBranch(t *testing.T) {
	db := openTestDB(t)

	j, err := CreateAnalysis(db, CreateAnalysisOpts{
		SourceURL:    "git@github.com:org/app.git",
		TargetBranch: "develop",
	})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}
	if j.TargetBranch != "develop" {
		t.Errorf("TargetBranch = %q, want %q", j.TargetBranch, "develop")
	}
}

func TestCreateAnalysis_MissingURL(t *testing.T) {
	db := openTestDB(t)

	_, err := CreateAnalysis(db, CreateAnalysisOpts{})
	if err == nil {
		t.Fatal("expected error for missing source URL")
	}
	if !strings.Contains(err.Error(), "source URL is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "source URL is required")
	}
}

func TestCreateAnalysis_InvalidURL(t *testing.T) {
	db := openTestDB(t)

	_, err := CreateAnalysis(db, CreateAnalysisOpts{SourceURL: "ftp://example.com/repo"})
	if err == nil {
		t.Fatal("expected error for invalid source URL")
	}
	if !strings.Contains(err.Error(), "invalid source URL") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "invalid source URL")
	}
}

func TestCreateImprovement(t *testing.T) {
	db := openTestDB(t)
	seedRepo(t, db, "repo-00000001", "https://github.com/org/app.git", "main")
	seedFile(t, db, "file-00000001", "repo-00000001", "src/a.ts", 40)
	seedFile(t, db, "file-00000002", "repo-00000001", "src/b.ts", 55)

	j, err := CreateImprovement(db, CreateImprovementOpts{
		RepositoryID: "repo-00000001",
		FileIDs:      []string{"file-00000001", "file-00000002"},
		Provider:     "claude",
	})
	if err != nil {
		t.Fatalf("CreateImprovement: %v", err)
	}

	if j.Type != "improvement" {
		t.Errorf("Type = %q, want %q", j.Type, "improvement")
	}
	if j.Status != "pending" {
		t.Errorf("Status = %q, want %q", j.Status, "pending")
	}
	if j.SourceURL != "https://github.com/org/app.git" {
		t.Errorf("SourceURL = %q, want repo URL", j.SourceURL)
	}
	if j.TargetBranch != "main" {
		t.Errorf("TargetBranch = %q, want %q", j.TargetBranch, "main")
	}
	// The work branch is derived from target paths during the pipeline,
	// not at creation time.
	if j.Branch != "" {
		t.Errorf("Branch = %q, want empty at creation", j.Branch)
	}

	ids, paths, err := DecodeTargets(j)
	if err != nil {
		t.Fatalf("DecodeTargets: %v", err)
	}
	if len(ids) != 2 || ids[0] != "file-00000001" {
		t.Errorf("ids = %v, want both file IDs", ids)
	}
	if len(paths) != 2 {
		t.Fatalf("len(paths) = %d, want 2", len(paths))
	}
	if paths[0] != "src/a.ts" && paths[1] != "src/a.ts" {
		t.Errorf("paths = %v, want to include src/a.ts", paths)
	}
}

func TestCreateImprovement_UsesDefaultBranch(t *testing.T) {
	db := openTestDB(t)
	repo := models.Repository{
		ID:            "repo-00000001",
		URL:           "https://github.com/org/app.git",
		Branch:        "develop",
		DefaultBranch: "main",
	}
	if err := db.Create(&repo).Error; err != nil {
		t.Fatalf("seed repo: %v", err)
	}
	seedFile(t, db, "file-00000001", "repo-00000001", "src/a.ts", 40)

	j, err := CreateImprovement(db, CreateImprovementOpts{
		RepositoryID: "repo-00000001",
		FileIDs:      []string{"file-00000001"},
		Provider:     "claude",
	})
	if err != nil {
		t.Fatalf("CreateImprovement: %v", err)
	}
	if j.TargetBranch != "main" {
		t.Errorf("TargetBranch = %q, want default branch %q", j.TargetBranch, "main")
	}
}

func TestCreateImprovement_RepoNotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := CreateImprovement(db, CreateImprovementOpts{
		RepositoryID: "repo-missing1",
		FileIDs:      []string{"file-00000001"},
		Provider:     "claude",
	})
	if err == nil {
		t.Fatal("expected error for missing repository")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("error = %v, want to wrap gorm.ErrRecordNotFound", err)
	}
}

func TestCreateImprovement_FileFromOtherRepo(t *testing.T) {
	db := openTestDB(t)
	seedRepo(t, db, "repo-00000001", "https://github.com/org/app.git", "main")
	seedRepo(t, db, "repo-00000002", "https://github.com/org/other.git", "main")
	seedFile(t, db, "file-00000001", "repo-00000002", "src/a.ts", 40)

	_, err := CreateImprovement(db, CreateImprovementOpts{
		RepositoryID: "repo-00000001",
		FileIDs:      []string{"file-00000001"},
		Provider:     "claude",
	})
	if err == nil {
		t.Fatal("expected error for file belonging to another repository")
	}
	if !strings.Contains(err.Error(), "target files not found") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "target files not found")
	}
	if !strings.Contains(err.Error(), "file-00000001") {
		t.Errorf("error = %q, want to name the missing file", err.Error())
	}
}

func TestCreateImprovement_EmptyFiles(t *testing.T) {
	db := openTestDB(t)

	_, err := CreateImprovement(db, CreateImprovementOpts{
		RepositoryID: "repo-00000001",
		Provider:     "claude",
	})
	if err == nil {
		t.Fatal("expected error for empty file list")
	}
	if !strings.Contains(err.Error(), "at least one target file is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "at least one target file is required")
	}
}

func TestCreateImprovement_UnknownProvider(t *testing.T) {
	db := openTestDB(t)

	_, err := CreateImprovement(db, CreateImprovementOpts{
		RepositoryID: "repo-00000001",
		FileIDs:      []string{"file-00000001"},
		Provider:     "gemini",
	})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), `unknown provider "gemini"`) {
		t.Errorf("error = %q, want to contain %q", err.Error(), `unknown provider "gemini"`)
	}
}

func TestGet(t *testing.T) {
	db := openTestDB(t)

	created, err := CreateAnalysis(db, CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}

	got, err := Get(db, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %q, want %q", got.ID, created.ID)
	}
}

func TestGet_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := Get(db, "job-missing1")
	if err == nil {
		t.Fatal("expected error for missing job")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("error = %v, want to wrap gorm.ErrRecordNotFound", err)
	}
}

func TestList_Filters(t *testing.T) {
	db := openTestDB(t)
	base := time.Now().Add(-time.Hour)

	rows := []models.Job{
		{ID: "job-00000001", Type: "analysis", Status: "completed", CreatedAt: base},
		{ID: "job-00000002", Type: "improvement", Status: "pending", RepositoryID: "repo-00000001", CreatedAt: base.Add(time.Minute)},
		{ID: "job-00000003", Type: "improvement", Status: "running", RepositoryID: "repo-00000002", CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed job: %v", err)
		}
	}

	all, err := List(db, ListFilters{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	if all[0].ID != "job-00000003" {
		t.Errorf("all[0].ID = %q, want newest first", all[0].ID)
	}

	improvements, err := List(db, ListFilters{Type: "improvement"})
	if err != nil {
		t.Fatalf("List by type: %v", err)
	}
	if len(improvements) != 2 {
		t.Errorf("len(improvements) = %d, want 2", len(improvements))
	}

	pending, err := List(db, ListFilters{Status: "pending"})
	if err != nil {
		t.Fatalf("List by status: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "job-00000002" {
		t.Errorf("pending = %v, want only job-00000002", pending)
	}

	byRepo, err := List(db, ListFilters{RepositoryID: "repo-00000002"})
	if err != nil {
		t.Fatalf("List by repo: %v", err)
	}
	if len(byRepo) != 1 || byRepo[0].ID != "job-00000003" {
		t.Errorf("byRepo = %v, want only job-00000003", byRepo)
	}

	limited, err := List(db, ListFilters{Limit: 2})
	if err != nil {
		t.Fatalf("List with limit: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(limited) = %d, want 2", len(limited))
	}
}

func TestStart(t *testing.T) {
	db := openTestDB(t)
	j, err := CreateAnalysis(db, CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}

	if err := Start(db, j.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	got, err := Get(db, j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "running" {
		t.Errorf("Status = %q, want %q", got.Status, "running")
	}
	if got.StartedAt == nil {
		t.Error("StartedAt should be stamped on transition to running")
	}
}

func TestStart_AlreadyRunning(t *testing.T) {
	db := openTestDB(t)
	j, err := CreateAnalysis(db, CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}
	if err := Start(db, j.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err = Start(db, j.ID)
	if err == nil {
		t.Fatal("expected error starting a running job")
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("error = %v, want to wrap ErrInvalidTransition", err)
	}
}

func TestUpdate_InvalidTransition(t *testing.T) {
	db := openTestDB(t)
	j, err := CreateAnalysis(db, CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}

	err = Update(db, j.ID, map[string]interface{}{"status": "completed"})
	if err == nil {
		t.Fatal("expected error for pending -> completed")
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("error = %v, want to wrap ErrInvalidTransition", err)
	}
}

func TestCompleteAnalysis(t *testing.T) {
	db := openTestDB(t)
	j, err := CreateAnalysis(db, CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}
	if err := Start(db, j.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := CompleteAnalysis(db, j.ID, 42, 7); err != nil {
		t.Fatalf("CompleteAnalysis: %v", err)
	}

	got, _ := Get(db, j.ID)
	if got.Status != "completed" {
		t.Errorf("Status = %q, want %q", got.Status, "completed")
	}
	if got.Progress != 100 {
		t.Errorf("Progress = %d, want 100", got.Progress)
	}
	if got.FilesFound != 42 {
		t.Errorf("FilesFound = %d, want 42", got.FilesFound)
	}
	if got.FilesBelowThreshold != 7 {
		t.Errorf("FilesBelowThreshold = %d, want 7", got.FilesBelowThreshold)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be stamped on completion")
	}
}

func TestCompleteAnalysis_WrongType(t *testing.T) {
	db := openTestDB(t)
	seedRepo(t, db, "repo-00000001", "https://github.com/org/app.git", "main")
	seedFile(t, db, "file-00000001", "repo-00000001", "src/a.ts", 40)

	j, err := CreateImprovement(db, CreateImprovementOpts{
		RepositoryID: "repo-00000001",
		FileIDs:      []string{"file-00000001"},
		Provider:     "claude",
	})
	if err != nil {
		t.Fatalf("CreateImprovement: %v", err)
	}
	if err := Start(db, j.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err = CompleteAnalysis(db, j.ID, 0, 0)
	if err == nil {
		t.Fatal("expected error completing an improvement job as analysis")
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("error = %v, want to wrap ErrInvalidTransition", err)
	}
}

func TestCompleteAnalysis_NotRunning(t *testing.T) {
	db := openTestDB(t)
	j, err := CreateAnalysis(db, CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}

	err = CompleteAnalysis(db, j.ID, 1, 0)
	if err == nil {
		t.Fatal("expected error completing a pending job")
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("error = %v, want to wrap ErrInvalidTransition", err)
	}
}

func TestCompleteImprovement(t *testing.T) {
	db := openTestDB(t)
	seedRepo(t, db, "repo-00000001", "https://github.com/org/app.git", "main")
	seedFile(t, db, "file-00000001", "repo-00000001", "src/a.ts", 40)

	j, err := CreateImprovement(db, CreateImprovementOpts{
		RepositoryID: "repo-00000001",
		FileIDs:      []string{"file-00000001"},
		Provider:     "claude",
	})
	if err != nil {
		t.Fatalf("CreateImprovement: %v", err)
	}
	if err := Start(db, j.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := CompleteImprovement(db, j.ID, "https://github.com/org/app/pull/12"); err != nil {
		t.Fatalf("CompleteImprovement: %v", err)
	}

	got, _ := Get(db, j.ID)
	if got.Status != "completed" {
		t.Errorf("Status = %q, want %q", got.Status, "completed")
	}
	if got.PullRequestURL != "https://github.com/org/app/pull/12" {
		t.Errorf("PullRequestURL = %q, want PR link", got.PullRequestURL)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be stamped on completion")
	}
}

func TestCompleteImprovement_WrongType(t *testing.T) {
	db := openTestDB(t)
	j, err := CreateAnalysis(db, CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}
	if err := Start(db, j.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	err = CompleteImprovement(db, j.ID, "https://github.com/org/app/pull/12")
	if err == nil {
		t.Fatal("expected error completing an analysis job as improvement")
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("error = %v, want to wrap ErrInvalidTransition", err)
	}
}

func TestFail_Running(t *testing.T) {
	db := openTestDB(t)
	j, err := CreateAnalysis(db, CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}
	if err := Start(db, j.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := Fail(db, j.ID, "clone failed: repository not found"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	got, _ := Get(db, j.ID)
	if got.Status != "failed" {
		t.Errorf("Status = %q, want %q", got.Status, "failed")
	}
	if got.Error != "clone failed: repository not found" {
		t.Errorf("Error = %q, want failure message", got.Error)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be stamped on failure")
	}
}

func TestFail_Pending(t *testing.T) {
	db := openTestDB(t)
	j, err := CreateAnalysis(db, CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}

	if err := Fail(db, j.ID, "repository has no reachable remote"); err != nil {
		t.Fatalf("Fail on pending: %v", err)
	}

	got, _ := Get(db, j.ID)
	if got.Status != "failed" {
		t.Errorf("Status = %q, want %q", got.Status, "failed")
	}
}

func TestCancel_Pending(t *testing.T) {
	db := openTestDB(t)
	j, err := CreateAnalysis(db, CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}

	if err := Cancel(db, j.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got, _ := Get(db, j.ID)
	if got.Status != "failed" {
		t.Errorf("Status = %q, want %q", got.Status, "failed")
	}
	if got.Error != CancelledMessage {
		t.Errorf("Error = %q, want %q", got.Error, CancelledMessage)
	}
	if !IsCancelled(got) {
		t.Error("IsCancelled() = false, want true")
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be stamped on cancellation")
	}
}

func TestCancel_Running(t *testing.T) {
	db := openTestDB(t)
	j, err := CreateAnalysis(db, CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}
	if err := Start(db, j.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := Cancel(db, j.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, _ := Get(db, j.ID)
	if got.Status != "failed" {
		t.Errorf("Status = %q, want %q", got.Status, "failed")
	}
	if got.Error != CancelledMessage {
		t.Errorf("Error = %q, want %q", got.Error, CancelledMessage)
	}
}

func TestCancel_Terminal(t *testing.T) {
	db := openTestDB(t)
	j, err := CreateAnalysis(db, CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}
	if err := Cancel(db, j.ID); err != nil {
		t.Fatalf("first Cancel: %v", err)
	}

	err = Cancel(db, j.ID)
	if err == nil {
		t.Fatal("expected error cancelling a terminal job")
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("error = %v, want to wrap ErrInvalidTransition", err)
	}
}

func TestSetProgress(t *testing.T) {
	db := openTestDB(t)
	j, err := CreateAnalysis(db, CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}
	if err := Start(db, j.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := SetProgress(db, j.ID, 40); err != nil {
		t.Fatalf("SetProgress: %v", err)
	}
	got, _ := Get(db, j.ID)
	if got.Progress != 40 {
		t.Errorf("Progress = %d, want 40", got.Progress)
	}

	// Out-of-range values are clamped.
	if err := SetProgress(db, j.ID, 150); err != nil {
		t.Fatalf("SetProgress over: %v", err)
	}
	got, _ = Get(db, j.ID)
	if got.Progress != 100 {
		t.Errorf("Progress = %d, want 100 (clamped)", got.Progress)
	}

	if err := SetProgress(db, j.ID, 0); err != nil {
		t.Fatalf("SetProgress zero: %v", err)
	}
	got, _ = Get(db, j.ID)
	if got.Progress != 0 {
		t.Errorf("Progress = %d, want 0", got.Progress)
	}
}

func TestSetProgress_IgnoredWhenNotRunning(t *testing.T) {
	db := openTestDB(t)
	j, err := CreateAnalysis(db, CreateAnalysisOpts{SourceURL: "https://github.com/org/app.git"})
	if err != nil {
		t.Fatalf("CreateAnalysis: %v", err)
	}

	// Pending: progress stays untouched.
	if err := SetProgress(db, j.ID, 40); err != nil {
		t.Fatalf("SetProgress on pending: %v", err)
	}
	got, _ := Get(db, j.ID)
	if got.Progress != 0 {
		t.Errorf("Progress = %d, want 0 on pending job", got.Progress)
	}

	// Terminal: progress is frozen.
	if err := Start(db, j.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := Fail(db, j.ID, "boom"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if err := SetProgress(db, j.ID, 90); err != nil {
		t.Fatalf("SetProgress on failed: %v", err)
	}
	got, _ = Get(db, j.ID)
	if got.Progress == 90 {
		t.Error("Progress mutated on a terminal job")
	}
}

func TestDecodeTargets_Empty(t *testing.T) {
	ids, paths, err := DecodeTargets(&models.Job{ID: "job-00000001"})
	if err != nil {
		t.Fatalf("DecodeTargets: %v", err)
	}
	if ids != nil || paths != nil {
		t.Errorf("ids = %v, paths = %v, want both nil", ids, paths)
	}
}

func TestDecodeTargets_Malformed(t *testing.T) {
	_, _, err := DecodeTargets(&models.Job{ID: "job-00000001", TargetFileIDs: "{not json"})
	if err == nil {
		t.Fatal("expected error for malformed target file IDs")
	}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{"pending", "running", true},
		{"pending", "failed", true},
		{"running", "completed", true},
		{"running", "failed", true},

		{"pending", "completed", false},
		{"running", "pending", false},
		{"completed", "running", false},
		{"completed", "failed", false},
		{"failed", "pending", false},
		{"failed", "running", false},
	}
	for _, tt := range tests {
		got := isValidTransition(tt.from, tt.to)
		if got != tt.want {
			t.Errorf("isValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
