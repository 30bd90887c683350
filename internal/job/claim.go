package job

import (
	"fmt"
	"time"

	"github.com/seamly/stitch/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimNextEligible atomically finds the oldest pending job that is allowed
// to run and marks it running. It uses SELECT ... FOR UPDATE SKIP LOCKED for
// concurrency safety.
//
// Eligibility rules: at most one analysis job runs at a time, and at most
// one improvement job runs per repository. Pending jobs excluded by those
// rules stay queued without losing their place.
//
// Note: SQLite serializes writers, so the row lock only matters on MySQL.
func ClaimNextEligible(db *gorm.DB) (*models.Job, error) {
	var claimed models.Job

	err := db.Transaction(func(tx *gorm.DB) error {
		var runningAnalysis int64
		if err := tx.Model(&models.Job{}).
			Where("status = ? AND type = ?", "running", "analysis").
			Count(&runningAnalysis).Error; err != nil {
			return fmt.Errorf("job: count running analyses: %w", err)
		}

		// Subquery: repositories that already have a running improvement.
		busyRepos := tx.Model(&models.Job{}).
			Select("repository_id").
			Where("status = ? AND type = ?", "running", "improvement")

		q := tx.Where("status = ?", "pending")
		if runningAnalysis > 0 {
			q = q.Where("type <> ?", "analysis")
		}
		q = q.Where("type <> ? OR repository_id NOT IN (?)", "improvement", busyRepos)

		// SQLite has no FOR UPDATE syntax; its single-writer lock suffices.
		if tx.Dialector.Name() == "mysql" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		result := q.
			Order("created_at ASC").
			Limit(1).
			Find(&claimed)

		if result.Error != nil {
			return fmt.Errorf("job: find eligible job: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("job: no eligible jobs: %w", gorm.ErrRecordNotFound)
		}

		now := time.Now()
		if err := tx.Model(&models.Job{}).Where("id = ?", claimed.ID).Updates(map[string]interface{}{
			"status":     "running",
			"started_at": now,
		}).Error; err != nil {
			return fmt.Errorf("job: claim %s: %w", claimed.ID, err)
		}
		claimed.Status = "running"
		claimed.StartedAt = &now

		return nil
	})

	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

// RecoverInterrupted fails any job left in running state by a previous
// process, so a restart never strands work as permanently in-flight.
// Returns the number of jobs recovered.
func RecoverInterrupted(db *gorm.DB) (int64, error) {
	result := db.Model(&models.Job{}).
		Where("status = ?", "running").
		Updates(map[string]interface{}{
			"status":       "failed",
			"error":        "Interrupted by service restart",
			"completed_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("job: recover interrupted: %w", result.Error)
	}
	return result.RowsAffected, nil
}
