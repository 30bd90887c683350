// Package notify fans job lifecycle events out to chat platforms. Delivery
// is best effort: a notification is never allowed to fail the job that
// triggered it.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/seamly/stitch/internal/config"
)

// Sidebar colors for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorError   = "#e53935"
)

// Event is one job lifecycle notification.
type Event struct {
	JobID      string
	JobType    string // "analysis" or "improvement"
	Repository string
	Severity   string // "success", "info", "error"
	Title      string
	Body       string
}

// Notifier delivers events to one platform.
type Notifier interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Completed returns the success event for a finished job.
func Completed(jobID, jobType, repository, detail string) Event {
	return Event{
		JobID:      jobID,
		JobType:    jobType,
		Repository: repository,
		Severity:   "success",
		Title:      fmt.Sprintf("%s completed for %s", jobNoun(jobType), repository),
		Body:       detail,
	}
}

// Failed returns the error event for a failed job.
func Failed(jobID, jobType, repository, errMsg string) Event {
	return Event{
		JobID:      jobID,
		JobType:    jobType,
		Repository: repository,
		Severity:   "error",
		Title:      fmt.Sprintf("%s failed for %s", jobNoun(jobType), repository),
		Body:       errMsg,
	}
}

func jobNoun(jobType string) string {
	switch jobType {
	case "analysis":
		return "Analysis"
	case "improvement":
		return "Improvement"
	default:
		return "Job"
	}
}

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// Multi fans an event out to every configured notifier. Platform errors are
// logged and swallowed.
type Multi struct {
	notifiers []Notifier
}

// NewMulti returns a Multi over the given notifiers.
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

// Send delivers the event to every notifier.
func (m *Multi) Send(ctx context.Context, ev Event) {
	for _, n := range m.notifiers {
		if err := n.Send(ctx, ev); err != nil {
			log.Printf("notify: %s: %v", n.Name(), err)
		}
	}
}

// FromConfig builds the fanout from config. Platforms without credentials
// configured are simply absent.
func FromConfig(cfg config.NotifyConfig) *Multi {
	var notifiers []Notifier
	if cfg.Slack.BotToken != "" && cfg.Slack.Channel != "" {
		notifiers = append(notifiers, NewSlack(cfg.Slack.BotToken, cfg.Slack.Channel))
	}
	if cfg.Discord.BotToken != "" && cfg.Discord.ChannelID != "" {
		d, err := NewDiscord(cfg.Discord.BotToken, cfg.Discord.ChannelID)
		if err != nil {
			log.Printf("notify: discord disabled: %v", err)
		} else {
			notifiers = append(notifiers, d)
		}
	}
	return NewMulti(notifiers...)
}
