package notify

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	slackapi "github.com/slack-go/slack"

	"github.com/seamly/stitch/internal/config"
)

type mockSlackClient struct {
	posted  []string // channel IDs
	postErr error
}

func (m *mockSlackClient) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	if m.postErr != nil {
		return "", "", m.postErr
	}
	m.posted = append(m.posted, channelID)
	return channelID, "1234567890.123456", nil
}

type mockDiscordSession struct {
	embeds  []*discordgo.MessageEmbed
	sendErr error
}

func (m *mockDiscordSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.embeds = append(m.embeds, embed)
	return &discordgo.Message{}, nil
}

func TestCompletedEvent(t *testing.T) {
	ev := Completed("job-00000001", "analysis", "org/app", "42 files, 7 below threshold")
	if ev.Severity != "success" {
		t.Errorf("severity = %q, want success", ev.Severity)
	}
	if ev.Title != "Analysis completed for org/app" {
		t.Errorf("title = %q", ev.Title)
	}
	if !strings.Contains(ev.Body, "below threshold") {
		t.Errorf("body = %q", ev.Body)
	}
}

func TestFailedEvent(t *testing.T) {
	ev := Failed("job-00000002", "improvement", "org/app", "agent produced no tests")
	if ev.Severity != "error" {
		t.Errorf("severity = %q, want error", ev.Severity)
	}
	if ev.Title != "Improvement failed for org/app" {
		t.Errorf("title = %q", ev.Title)
	}
}

func TestSeverityColor(t *testing.T) {
	tests := []struct {
		severity string
		want     string
	}{
		{"success", ColorSuccess},
		{"error", ColorError},
		{"info", ColorInfo},
		{"anything", ColorInfo},
	}
	for _, tt := range tests {
		if got := severityColor(tt.severity); got != tt.want {
			t.Errorf("severityColor(%q) = %q, want %q", tt.severity, got, tt.want)
		}
	}
}

func TestSlackSend(t *testing.T) {
	client := &mockSlackClient{}
	s := &Slack{client: client, channel: "C1"}

	err := s.Send(context.Background(), Completed("job-00000001", "analysis", "org/app", "done"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.posted) != 1 || client.posted[0] != "C1" {
		t.Errorf("posted = %v, want one message to C1", client.posted)
	}
}

func TestSlackSend_NoChannel(t *testing.T) {
	s := &Slack{client: &mockSlackClient{}}
	if err := s.Send(context.Background(), Event{}); err == nil {
		t.Fatal("expected error for missing channel")
	}
}

func TestDiscordSend(t *testing.T) {
	sess := &mockDiscordSession{}
	d := &Discord{sess: sess, channelID: "123"}

	ev := Failed("job-00000002", "improvement", "org/app", "tests failed")
	if err := d.Send(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sess.embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(sess.embeds))
	}
	embed := sess.embeds[0]
	if embed.Title != ev.Title {
		t.Errorf("embed title = %q, want %q", embed.Title, ev.Title)
	}
	if embed.Color != embedColorError {
		t.Errorf("embed color = %#x, want error color", embed.Color)
	}
	if len(embed.Fields) != 2 || embed.Fields[0].Value != "job-00000002" {
		t.Errorf("embed fields = %+v", embed.Fields)
	}
}

func TestMultiSend_SwallowsErrors(t *testing.T) {
	bad := &Slack{client: &mockSlackClient{postErr: fmt.Errorf("rate limited")}, channel: "C1"}
	goodSess := &mockDiscordSession{}
	good := &Discord{sess: goodSess, channelID: "123"}

	m := NewMulti(bad, good)
	m.Send(context.Background(), Completed("job-00000001", "analysis", "org/app", "done"))

	if len(goodSess.embeds) != 1 {
		t.Error("healthy notifier should still receive the event")
	}
}

func TestFromConfig(t *testing.T) {
	m := FromConfig(config.NotifyConfig{
		Slack: config.SlackConfig{BotToken: "xoxb-1", Channel: "C1"},
	})
	if len(m.notifiers) != 1 || m.notifiers[0].Name() != "slack" {
		t.Errorf("notifiers = %d, want slack only", len(m.notifiers))
	}

	m = FromConfig(config.NotifyConfig{})
	if len(m.notifiers) != 0 {
		t.Errorf("notifiers = %d, want none", len(m.notifiers))
	}
}
