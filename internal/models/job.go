package models

import "time"

// Job is a unit of background work: an analysis pass over a repository or
// an improvement run against a set of under-covered files. The two kinds
// share a table; Type selects which payload columns are meaningful.
type Job struct {
	ID           string `gorm:"primaryKey;size:16"`
	Type         string `gorm:"size:16;not null;index"`
	Status       string `gorm:"size:16;default:pending;index"`
	Progress     int    `gorm:"default:0"`
	Error        string `gorm:"type:text"`
	RepositoryID string `gorm:"size:16;index"`

	// Analysis payload.
	SourceURL           string `gorm:"size:255"`
	TargetBranch        string `gorm:"size:128"`
	FilesFound          int
	FilesBelowThreshold int

	// Improvement payload.
	TargetFileIDs  string `gorm:"type:text"` // JSON array of CoverageFile IDs
	TargetPaths    string `gorm:"type:text"` // JSON array of file paths
	Provider       string `gorm:"size:16"`
	Branch         string `gorm:"size:128"`
	PullRequestURL string `gorm:"size:255"`
	AttemptCount   int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}
