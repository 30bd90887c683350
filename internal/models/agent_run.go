package models

import "time"

// AgentRun captures one agent invocation per generation attempt for debugging.
type AgentRun struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	JobID       string `gorm:"size:16;index:idx_job_attempt"`
	Attempt     int    `gorm:"index:idx_job_attempt"`
	Provider    string `gorm:"size:16"`
	PromptLines int
	Output      string `gorm:"type:mediumtext"` // combined output, tail-capped
	ExitCode    int
	TimedOut    bool
	DurationMs  int
	CreatedAt   time.Time
}
