// Package covfile provides coverage file record operations.
//
// Coverage rows are a snapshot of the most recent analysis: each analysis
// replaces a repository's whole set instead of merging into it, so deleted
// and renamed source files never linger.
package covfile

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/seamly/stitch/internal/models"
	"gorm.io/gorm"
)

// Record is one analyzed source file to be stored for a repository.
type Record struct {
	Path           string
	Percentage     float64
	UncoveredLines []int
	ProjectDir     string
}

// ListFilters holds optional filters for listing coverage files.
type ListFilters struct {
	RepositoryID string
	Status       string
	Below        *float64 // keep only files under this percentage
}

// GenerateID creates a unique coverage file ID in file-xxxxxxxx format.
func GenerateID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("covfile: generate ID: %w", err)
	}
	return "file-" + hex.EncodeToString(b), nil
}

// ReplaceForRepository swaps the repository's coverage rows for a fresh
// snapshot in one transaction. All new rows start pending.
func ReplaceForRepository(db *gorm.DB, repositoryID string, records []Record) ([]models.CoverageFile, error) {
	if repositoryID == "" {
		return nil, fmt.Errorf("covfile: repository ID is required")
	}

	rows := make([]models.CoverageFile, 0, len(records))
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("repository_id = ?", repositoryID).
			Delete(&models.CoverageFile{}).Error; err != nil {
			return fmt.Errorf("covfile: delete rows for %s: %w", repositoryID, err)
		}

		for _, rec := range records {
			id, err := generateUniqueID(tx)
			if err != nil {
				return err
			}
			lines, err := EncodeUncoveredLines(rec.UncoveredLines)
			if err != nil {
				return fmt.Errorf("covfile: marshal uncovered lines for %s: %w", rec.Path, err)
			}
			row := models.CoverageFile{
				ID:             id,
				RepositoryID:   repositoryID,
				Path:           rec.Path,
				Percentage:     rec.Percentage,
				UncoveredLines: lines,
				Status:         "pending",
				ProjectDir:     rec.ProjectDir,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("covfile: insert %s: %w", rec.Path, err)
			}
			rows = append(rows, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Get retrieves a coverage file by ID.
func Get(db *gorm.DB, id string) (*models.CoverageFile, error) {
	var f models.CoverageFile
	if err := db.Where("id = ?", id).First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("covfile: not found %s: %w", id, gorm.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("covfile: get %s: %w", id, err)
	}
	return &f, nil
}

// GetBatch loads all requested coverage files. Any missing ID fails the
// whole batch with the missing IDs named in the error.
func GetBatch(db *gorm.DB, ids []string) ([]models.CoverageFile, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("covfile: at least one ID is required")
	}

	var files []models.CoverageFile
	if err := db.Where("id IN ?", ids).Find(&files).Error; err != nil {
		return nil, fmt.Errorf("covfile: get batch: %w", err)
	}
	if len(files) != len(ids) {
		found := make(map[string]bool, len(files))
		for _, f := range files {
			found[f.ID] = true
		}
		var missing []string
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return nil, fmt.Errorf("covfile: not found %s: %w", strings.Join(missing, ", "), gorm.ErrRecordNotFound)
	}

	// The IN clause loses request order; restore it.
	byID := make(map[string]models.CoverageFile, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}
	ordered := make([]models.CoverageFile, len(ids))
	for i, id := range ids {
		ordered[i] = byID[id]
	}
	return ordered, nil
}

// List returns coverage files matching the filters, least covered first.
func List(db *gorm.DB, filters ListFilters) ([]models.CoverageFile, error) {
	q := db.Model(&models.CoverageFile{})

	if filters.RepositoryID != "" {
		q = q.Where("repository_id = ?", filters.RepositoryID)
	}
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.Below != nil {
		q = q.Where("percentage < ?", *filters.Below)
	}

	var files []models.CoverageFile
	if err := q.Order("percentage ASC, path ASC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("covfile: list: %w", err)
	}
	return files, nil
}

// MarkImproving flags the files as targets of a running improvement job.
func MarkImproving(db *gorm.DB, ids []string) error {
	return setStatus(db, ids, "improving")
}

// MarkImproved flags the files as covered by a merged improvement.
func MarkImproved(db *gorm.DB, ids []string) error {
	return setStatus(db, ids, "improved")
}

// ResetToPending returns the files to the eligible pool, used when an
// improvement job fails partway.
func ResetToPending(db *gorm.DB, ids []string) error {
	return setStatus(db, ids, "pending")
}

// ResetAllImproving returns every improving file to pending. Called at
// service start so files stranded by a crashed job become eligible again.
func ResetAllImproving(db *gorm.DB) (int64, error) {
	result := db.Model(&models.CoverageFile{}).
		Where("status = ?", "improving").
		Update("status", "pending")
	if result.Error != nil {
		return 0, fmt.Errorf("covfile: reset improving: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// UpdateCoverage records a file's new measurement after an improvement run.
func UpdateCoverage(db *gorm.DB, id string, percentage float64, uncoveredLines []int) error {
	lines, err := EncodeUncoveredLines(uncoveredLines)
	if err != nil {
		return fmt.Errorf("covfile: marshal uncovered lines for %s: %w", id, err)
	}
	result := db.Model(&models.CoverageFile{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"percentage":      percentage,
			"uncovered_lines": lines,
		})
	if result.Error != nil {
		return fmt.Errorf("covfile: update coverage %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("covfile: not found %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// EncodeUncoveredLines marshals line numbers to the stored JSON form.
// A nil or empty slice encodes as an empty array, never null.
func EncodeUncoveredLines(lines []int) (string, error) {
	if lines == nil {
		lines = []int{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeUncoveredLines unmarshals the stored JSON form. An empty string
// decodes as no lines.
func DecodeUncoveredLines(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var lines []int
	if err := json.Unmarshal([]byte(s), &lines); err != nil {
		return nil, fmt.Errorf("covfile: decode uncovered lines: %w", err)
	}
	return lines, nil
}

// setStatus applies a status to a batch of files. An empty batch is a
// no-op.
func setStatus(db *gorm.DB, ids []string, status string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := db.Model(&models.CoverageFile{}).
		Where("id IN ?", ids).
		Update("status", status).Error; err != nil {
		return fmt.Errorf("covfile: set status %s: %w", status, err)
	}
	return nil
}

// generateUniqueID generates an ID and retries once on collision.
func generateUniqueID(db *gorm.DB) (string, error) {
	for range 2 {
		id, err := GenerateID()
		if err != nil {
			return "", err
		}
		var count int64
		if err := db.Model(&models.CoverageFile{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return "", fmt.Errorf("covfile: check ID uniqueness: %w", err)
		}
		if count == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("covfile: failed to generate unique ID after retries")
}
