package notify

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts events as attachment messages to a single channel.
type Slack struct {
	client  slackClient
	channel string
}

// NewSlack returns a Slack notifier posting to channel with the bot token.
func NewSlack(botToken, channel string) *Slack {
	return &Slack{
		client:  slackapi.New(botToken),
		channel: channel,
	}
}

func (s *Slack) Name() string { return "slack" }

// Send posts the event as a colored attachment.
func (s *Slack) Send(ctx context.Context, ev Event) error {
	if s.channel == "" {
		return fmt.Errorf("notify: slack channel is required")
	}

	att := slackapi.Attachment{
		Title:    ev.Title,
		Text:     ev.Body,
		Color:    severityColor(ev.Severity),
		Fallback: ev.Title,
		Fields: []slackapi.AttachmentField{
			{Title: "Job", Value: ev.JobID, Short: true},
			{Title: "Repository", Value: ev.Repository, Short: true},
		},
	}

	_, _, err := s.client.PostMessageContext(ctx, s.channel,
		slackapi.MsgOptionText(ev.Title, false),
		slackapi.MsgOptionAttachments(att),
	)
	if err != nil {
		return fmt.Errorf("notify: slack post: %w", err)
	}
	return nil
}
