package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Embed sidebar colors, the integer form of the severity palette.
const (
	embedColorSuccess = 0x36a64f
	embedColorInfo    = 0x2196f3
	embedColorError   = 0xe53935
)

// discordSession abstracts the discordgo methods we use, enabling test mocks.
type discordSession interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts events as embeds to a single channel. Sending embeds is a
// plain REST call, so no gateway connection is opened.
type Discord struct {
	sess      discordSession
	channelID string
}

// NewDiscord returns a Discord notifier posting to channelID with the bot token.
func NewDiscord(botToken, channelID string) (*Discord, error) {
	dg, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("notify: discord session: %w", err)
	}
	return &Discord{sess: dg, channelID: channelID}, nil
}

func (d *Discord) Name() string { return "discord" }

// Send posts the event as a colored embed.
func (d *Discord) Send(ctx context.Context, ev Event) error {
	if d.channelID == "" {
		return fmt.Errorf("notify: discord channel is required")
	}

	embed := &discordgo.MessageEmbed{
		Title:       ev.Title,
		Description: ev.Body,
		Color:       embedColor(ev.Severity),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Job", Value: ev.JobID, Inline: true},
			{Name: "Repository", Value: ev.Repository, Inline: true},
		},
	}

	if _, err := d.sess.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("notify: discord send: %w", err)
	}
	return nil
}

func embedColor(severity string) int {
	switch severity {
	case "success":
		return embedColorSuccess
	case "error":
		return embedColorError
	default:
		return embedColorInfo
	}
}
