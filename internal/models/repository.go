package models

import "time"

// Repository is a tracked source repository at a specific branch.
type Repository struct {
	ID             string `gorm:"primaryKey;size:16"`
	URL            string `gorm:"size:255;not null;uniqueIndex:idx_repo_url_branch"`
	Owner          string `gorm:"size:128"`
	Name           string `gorm:"size:128"`
	Branch         string `gorm:"size:128;not null;uniqueIndex:idx_repo_url_branch"`
	DefaultBranch  string `gorm:"size:128"`
	LastAnalyzedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Files []CoverageFile `gorm:"foreignKey:RepositoryID"`
}
