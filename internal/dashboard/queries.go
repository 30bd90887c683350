package dashboard

import (
	"log"
	"time"

	"github.com/seamly/stitch/internal/covfile"
	"github.com/seamly/stitch/internal/job"
	"github.com/seamly/stitch/internal/models"
	"github.com/seamly/stitch/internal/repo"
	"gorm.io/gorm"
)

// JobRow holds job data for list and detail responses.
type JobRow struct {
	ID                  string     `json:"id"`
	Type                string     `json:"type"`
	Status              string     `json:"status"`
	Progress            int        `json:"progress"`
	Error               string     `json:"error,omitempty"`
	RepositoryID        string     `json:"repository_id,omitempty"`
	SourceURL           string     `json:"source_url,omitempty"`
	TargetBranch        string     `json:"target_branch,omitempty"`
	FilesFound          int        `json:"files_found,omitempty"`
	FilesBelowThreshold int        `json:"files_below_threshold,omitempty"`
	TargetPaths         []string   `json:"target_paths,omitempty"`
	Provider            string     `json:"provider,omitempty"`
	Branch              string     `json:"branch,omitempty"`
	PullRequestURL      string     `json:"pull_request_url,omitempty"`
	AttemptCount        int        `json:"attempt_count,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// RunRow holds one agent invocation for the job detail response.
type RunRow struct {
	Attempt     int       `json:"attempt"`
	Provider    string    `json:"provider"`
	PromptLines int       `json:"prompt_lines"`
	Output      string    `json:"output"`
	ExitCode    int       `json:"exit_code"`
	TimedOut    bool      `json:"timed_out"`
	DurationMs  int       `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// JobDetail is a JobRow plus its recorded agent runs.
type JobDetail struct {
	JobRow
	Runs []RunRow `json:"runs"`
}

func jobRow(j *models.Job) JobRow {
	row := JobRow{
		ID:                  j.ID,
		Type:                j.Type,
		Status:              j.Status,
		Progress:            j.Progress,
		Error:               j.Error,
		RepositoryID:        j.RepositoryID,
		SourceURL:           j.SourceURL,
		TargetBranch:        j.TargetBranch,
		FilesFound:          j.FilesFound,
		FilesBelowThreshold: j.FilesBelowThreshold,
		Provider:            j.Provider,
		Branch:              j.Branch,
		PullRequestURL:      j.PullRequestURL,
		AttemptCount:        j.AttemptCount,
		CreatedAt:           j.CreatedAt,
		StartedAt:           j.StartedAt,
		CompletedAt:         j.CompletedAt,
	}
	if j.Type == "improvement" {
		if _, paths, err := job.DecodeTargets(j); err == nil {
			row.TargetPaths = paths
		}
	}
	return row
}

// JobList returns jobs matching the filters as response rows.
func JobList(db *gorm.DB, filters job.ListFilters) ([]JobRow, error) {
	jobs, err := job.List(db, filters)
	if err != nil {
		return nil, err
	}
	rows := make([]JobRow, len(jobs))
	for i := range jobs {
		rows[i] = jobRow(&jobs[i])
	}
	return rows, nil
}

// GetJobDetail returns one job with its agent runs, oldest attempt first.
func GetJobDetail(db *gorm.DB, id string) (*JobDetail, error) {
	j, err := job.Get(db, id)
	if err != nil {
		return nil, err
	}

	var runs []models.AgentRun
	if err := db.Where("job_id = ?", id).Order("attempt ASC, id ASC").Find(&runs).Error; err != nil {
		return nil, err
	}

	detail := &JobDetail{JobRow: jobRow(j), Runs: make([]RunRow, len(runs))}
	for i, r := range runs {
		detail.Runs[i] = RunRow{
			Attempt:     r.Attempt,
			Provider:    r.Provider,
			PromptLines: r.PromptLines,
			Output:      r.Output,
			ExitCode:    r.ExitCode,
			TimedOut:    r.TimedOut,
			DurationMs:  r.DurationMs,
			CreatedAt:   r.CreatedAt,
		}
	}
	return detail, nil
}

// RepoRow holds repository data plus coverage counts for display.
type RepoRow struct {
	ID             string     `json:"id"`
	URL            string     `json:"url"`
	Owner          string     `json:"owner,omitempty"`
	Name           string     `json:"name,omitempty"`
	Branch         string     `json:"branch"`
	LastAnalyzedAt *time.Time `json:"last_analyzed_at,omitempty"`
	Files          int64      `json:"files"`
	BelowThreshold int64      `json:"below_threshold"`
}

// RepoSummary returns every tracked repository with its file counts.
func RepoSummary(db *gorm.DB, threshold float64) ([]RepoRow, error) {
	repos, err := repo.List(db)
	if err != nil {
		return nil, err
	}

	rows := make([]RepoRow, len(repos))
	for i, r := range repos {
		row := RepoRow{
			ID:             r.ID,
			URL:            r.URL,
			Owner:          r.Owner,
			Name:           r.Name,
			Branch:         r.Branch,
			LastAnalyzedAt: r.LastAnalyzedAt,
		}
		if err := db.Model(&models.CoverageFile{}).
			Where("repository_id = ?", r.ID).Count(&row.Files).Error; err != nil {
			return nil, err
		}
		if err := db.Model(&models.CoverageFile{}).
			Where("repository_id = ? AND percentage < ?", r.ID, threshold).Count(&row.BelowThreshold).Error; err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

// FileRow holds one coverage file for display, worst-covered first.
type FileRow struct {
	ID             string    `json:"id"`
	Path           string    `json:"path"`
	ProjectDir     string    `json:"project_dir,omitempty"`
	Percentage     float64   `json:"percentage"`
	UncoveredLines []int     `json:"uncovered_lines"`
	Status         string    `json:"status"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FileList returns a repository's coverage files as response rows.
func FileList(db *gorm.DB, filters covfile.ListFilters) ([]FileRow, error) {
	files, err := covfile.List(db, filters)
	if err != nil {
		return nil, err
	}

	rows := make([]FileRow, len(files))
	for i, f := range files {
		lines, err := covfile.DecodeUncoveredLines(f.UncoveredLines)
		if err != nil {
			// A corrupt row should not take down the whole listing.
			log.Printf("dashboard: decode uncovered lines for %s: %v", f.ID, err)
			lines = nil
		}
		if lines == nil {
			lines = []int{}
		}
		rows[i] = FileRow{
			ID:             f.ID,
			Path:           f.Path,
			ProjectDir:     f.ProjectDir,
			Percentage:     f.Percentage,
			UncoveredLines: lines,
			Status:         f.Status,
			UpdatedAt:      f.UpdatedAt,
		}
	}
	return rows, nil
}
