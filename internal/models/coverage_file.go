package models

import "time"

// CoverageFile records the measured coverage of one source file within a
// repository, as of the most recent analysis. The full set for a repository
// is replaced wholesale on every analysis run.
type CoverageFile struct {
	ID             string  `gorm:"primaryKey;size:16"`
	RepositoryID   string  `gorm:"size:16;not null;uniqueIndex:idx_file_repo_path"`
	Path           string  `gorm:"size:255;not null;uniqueIndex:idx_file_repo_path"`
	Percentage     float64 // 0-100, one decimal
	UncoveredLines string  `gorm:"type:text"` // JSON array of line numbers
	Status         string  `gorm:"size:16;default:pending;index"`
	ProjectDir     string  `gorm:"size:255"` // monorepo sub-project, "" for root
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Repository Repository `gorm:"foreignKey:RepositoryID"`
}
