// Package job provides job lifecycle operations.
package job

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seamly/stitch/internal/models"
	"gorm.io/gorm"
)

// ErrInvalidTransition is returned when a status change violates the job
// state machine, including wrong-type completion calls.
var ErrInvalidTransition = errors.New("invalid status transition")

// CancelledMessage is the error text recorded on user-cancelled jobs.
const CancelledMessage = "Cancelled by user"

// CreateAnalysisOpts holds parameters for creating an analysis job.
type CreateAnalysisOpts struct {
	SourceURL    string
	TargetBranch string // defaults to main
}

// CreateImprovementOpts holds parameters for creating an improvement job.
type CreateImprovementOpts struct {
	RepositoryID string
	FileIDs      []string
	Provider     string // claude or codex
}

// ListFilters holds optional filters for listing jobs.
type ListFilters struct {
	Type         string
	Status       string
	RepositoryID string
	Limit        int
}

// ValidTransitions maps each status to its valid next statuses.
// completed and failed are terminal; cancellation is a fail() with
// CancelledMessage, so pending jobs may also fail.
var ValidTransitions = map[string][]string{
	"pending": {"running", "failed"},
	"running": {"completed", "failed"},
}

// GenerateID creates a unique job ID in job-xxxxxxxx format (8-char hex).
func GenerateID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("job: generate ID: %w", err)
	}
	return "job-" + hex.EncodeToString(b), nil
}

// CreateAnalysis creates a pending analysis job for a repository URL.
func CreateAnalysis(db *gorm.DB, opts CreateAnalysisOpts) (*models.Job, error) {
	if opts.SourceURL == "" {
		return nil, fmt.Errorf("job: source URL is required")
	}
	if !isValidSourceURL(opts.SourceURL) {
		return nil, fmt.Errorf("job: invalid source URL: %s", opts.SourceURL)
	}
	if opts.TargetBranch == "" {
		opts.TargetBranch = "main"
	}

	id, err := generateUniqueID(db)
	if err != nil {
		return nil, err
	}

	j := models.Job{
		ID:           id,
		Type:         "analysis",
		Status:       "pending",
		SourceURL:    opts.SourceURL,
		TargetBranch: opts.TargetBranch,
	}
	if err := db.Create(&j).Error; err != nil {
		return nil, fmt.Errorf("job: create analysis: %w", err)
	}
	return &j, nil
}

// CreateImprovement creates a pending improvement job targeting coverage
// files of a single repository. All target files must exist and belong to
// the repository.
func CreateImprovement(db *gorm.DB, opts CreateImprovementOpts) (*models.Job, error) {
	if opts.RepositoryID == "" {
		return nil, fmt.Errorf("job: repository ID is required")
	}
	if len(opts.FileIDs) == 0 {
		return nil, fmt.Errorf("job: at least one target file is required")
	}
	if !isValidProvider(opts.Provider) {
		return nil, fmt.Errorf("job: unknown provider %q", opts.Provider)
	}

	var repo models.Repository
	if err := db.Where("id = ?", opts.RepositoryID).First(&repo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job: repository not found %s: %w", opts.RepositoryID, gorm.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("job: check repository %s: %w", opts.RepositoryID, err)
	}

	var files []models.CoverageFile
	if err := db.Where("id IN ? AND repository_id = ?", opts.FileIDs, opts.RepositoryID).Find(&files).Error; err != nil {
		return nil, fmt.Errorf("job: check target files: %w", err)
	}
	if len(files) != len(opts.FileIDs) {
		found := make(map[string]bool, len(files))
		for _, f := range files {
			found[f.ID] = true
		}
		var missing []string
		for _, fid := range opts.FileIDs {
			if !found[fid] {
				missing = append(missing, fid)
			}
		}
		return nil, fmt.Errorf("job: target files not found in repository %s: %s", opts.RepositoryID, strings.Join(missing, ", "))
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}

	idsJSON, err := encodeJSON(opts.FileIDs)
	if err != nil {
		return nil, fmt.Errorf("job: marshal target file IDs: %w", err)
	}
	pathsJSON, err := encodeJSON(paths)
	if err != nil {
		return nil, fmt.Errorf("job: marshal target paths: %w", err)
	}

	base := repo.DefaultBranch
	if base == "" {
		base = repo.Branch
	}

	id, err := generateUniqueID(db)
	if err != nil {
		return nil, err
	}

	j := models.Job{
		ID:            id,
		Type:          "improvement",
		Status:        "pending",
		RepositoryID:  opts.RepositoryID,
		SourceURL:     repo.URL,
		TargetBranch:  base,
		TargetFileIDs: idsJSON,
		TargetPaths:   pathsJSON,
		Provider:      opts.Provider,
	}
	if err := db.Create(&j).Error; err != nil {
		return nil, fmt.Errorf("job: create improvement: %w", err)
	}
	return &j, nil
}

// Get retrieves a job by ID.
func Get(db *gorm.DB, id string) (*models.Job, error) {
	var j models.Job
	if err := db.Where("id = ?", id).First(&j).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job: not found %s: %w", id, gorm.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("job: get %s: %w", id, err)
	}
	return &j, nil
}

// List returns jobs matching the given filters, newest first.
func List(db *gorm.DB, filters ListFilters) ([]models.Job, error) {
	q := db.Model(&models.Job{})

	if filters.Type != "" {
		q = q.Where("type = ?", filters.Type)
	}
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.RepositoryID != "" {
		q = q.Where("repository_id = ?", filters.RepositoryID)
	}
	if filters.Limit > 0 {
		q = q.Limit(filters.Limit)
	}

	var jobs []models.Job
	if err := q.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("job: list: %w", err)
	}
	return jobs, nil
}

// Update modifies job fields. Status transitions are validated against
// ValidTransitions; running and terminal statuses stamp started_at and
// completed_at respectively.
func Update(db *gorm.DB, id string, updates map[string]interface{}) error {
	var j models.Job
	if err := db.Where("id = ?", id).First(&j).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("job: not found %s: %w", id, gorm.ErrRecordNotFound)
		}
		return fmt.Errorf("job: get %s for update: %w", id, err)
	}

	if newStatus, ok := updates["status"].(string); ok {
		if !isValidTransition(j.Status, newStatus) {
			return fmt.Errorf("job: %w from %q to %q; valid transitions: %v",
				ErrInvalidTransition, j.Status, newStatus, ValidTransitions[j.Status])
		}
		now := time.Now()
		if newStatus == "running" {
			updates["started_at"] = now
		}
		if isTerminal(newStatus) {
			updates["completed_at"] = now
		}
	}

	if err := db.Model(&models.Job{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("job: update %s: %w", id, err)
	}
	return nil
}

// Start transitions a pending job to running.
func Start(db *gorm.DB, id string) error {
	return Update(db, id, map[string]interface{}{
		"status": "running",
	})
}

// CompleteAnalysis marks a running analysis job completed with its result
// counts. Calling it on an improvement job is a contract violation.
func CompleteAnalysis(db *gorm.DB, id string, filesFound, filesBelowThreshold int) error {
	j, err := Get(db, id)
	if err != nil {
		return err
	}
	if j.Type != "analysis" {
		return fmt.Errorf("job: %w: completeAnalysis on %s job %s", ErrInvalidTransition, j.Type, id)
	}
	return Update(db, id, map[string]interface{}{
		"status":                "completed",
		"progress":              100,
		"files_found":           filesFound,
		"files_below_threshold": filesBelowThreshold,
	})
}

// CompleteImprovement marks a running improvement job completed with its
// pull request URL. Calling it on an analysis job is a contract violation.
func CompleteImprovement(db *gorm.DB, id, pullRequestURL string) error {
	j, err := Get(db, id)
	if err != nil {
		return err
	}
	if j.Type != "improvement" {
		return fmt.Errorf("job: %w: completeImprovement on %s job %s", ErrInvalidTransition, j.Type, id)
	}
	return Update(db, id, map[string]interface{}{
		"status":           "completed",
		"progress":         100,
		"pull_request_url": pullRequestURL,
	})
}

// Fail marks a pending or running job failed with an error message.
func Fail(db *gorm.DB, id, message string) error {
	return Update(db, id, map[string]interface{}{
		"status": "failed",
		"error":  message,
	})
}

// Cancel is an externally triggered failure. It is cooperative: a running
// pipeline observes the terminal status at its next checkpoint and stops.
func Cancel(db *gorm.DB, id string) error {
	return Fail(db, id, CancelledMessage)
}

// SetProgress records the completion percentage of a running job. Progress
// is only mutable while the job runs; other statuses are left untouched.
func SetProgress(db *gorm.DB, id string, pct int) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if err := db.Model(&models.Job{}).
		Where("id = ? AND status = ?", id, "running").
		Update("progress", pct).Error; err != nil {
		return fmt.Errorf("job: set progress %s: %w", id, err)
	}
	return nil
}

// DecodeTargets unpacks the improvement payload of a job.
func DecodeTargets(j *models.Job) (ids, paths []string, err error) {
	if j.TargetFileIDs != "" {
		if err := json.Unmarshal([]byte(j.TargetFileIDs), &ids); err != nil {
			return nil, nil, fmt.Errorf("job: decode target file IDs for %s: %w", j.ID, err)
		}
	}
	if j.TargetPaths != "" {
		if err := json.Unmarshal([]byte(j.TargetPaths), &paths); err != nil {
			return nil, nil, fmt.Errorf("job: decode target paths for %s: %w", j.ID, err)
		}
	}
	return ids, paths, nil
}

// IsCancelled reports whether a job was failed by user cancellation.
func IsCancelled(j *models.Job) bool {
	return j.Status == "failed" && j.Error == CancelledMessage
}

// isValidTransition checks whether a status transition is allowed.
func isValidTransition(from, to string) bool {
	valid, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, v := range valid {
		if v == to {
			return true
		}
	}
	return false
}

// isTerminal reports whether a status ends the job lifecycle.
func isTerminal(status string) bool {
	return status == "completed" || status == "failed"
}

// isValidProvider checks the provider against the supported agent CLIs.
func isValidProvider(provider string) bool {
	return provider == "claude" || provider == "codex"
}

// isValidSourceURL accepts http(s) and ssh git remotes.
func isValidSourceURL(url string) bool {
	return strings.HasPrefix(url, "http://") ||
		strings.HasPrefix(url, "https://") ||
		strings.HasPrefix(url, "ssh://") ||
		strings.HasPrefix(url, "git@")
}

// encodeJSON marshals a value to a JSON string.
func encodeJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// generateUniqueID generates an ID and retries once on collision.
func generateUniqueID(db *gorm.DB) (string, error) {
	for range 2 {
		id, err := GenerateID()
		if err != nil {
			return "", err
		}
		var count int64
		if err := db.Model(&models.Job{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return "", fmt.Errorf("job: check ID uniqueness: %w", err)
		}
		if count == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("job: failed to generate unique ID after retries")
}
