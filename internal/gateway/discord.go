package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordAdapter posts task notifications to one Discord channel.
type DiscordAdapter struct {
	token     string
	channelID string
	session   *discordgo.Session
	logger    *zap.Logger
}

// NewDiscordAdapter creates a Discord adapter.
func NewDiscordAdapter(token, channelID string, logger *zap.Logger) *DiscordAdapter {
	return &DiscordAdapter{
		token:     token,
		channelID: channelID,
		logger:    logger,
	}
}

func (a *DiscordAdapter) Platform() string { return "discord" }

// Connect opens the Discord gateway websocket. The bot only sends; no
// message intents are requested.
func (a *DiscordAdapter) Connect(_ context.Context) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsNone

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	a.session = session

	a.logger.Info("discord adapter connected",
		zap.String("user", session.State.User.Username),
		zap.Int("guilds", len(session.State.Guilds)))
	return nil
}

// Notify posts the notification to the configured channel.
func (a *DiscordAdapter) Notify(_ context.Context, n *Notification) error {
	if a.session == nil {
		return fmt.Errorf("discord not connected")
	}
	content := fmt.Sprintf("**%s**", n.Title)
	if n.Body != "" {
		content += "\n" + n.Body
	}
	if _, err := a.session.ChannelMessageSend(a.channelID, content); err != nil {
		return fmt.Errorf("discord notify: %w", err)
	}
	return nil
}

// Close shuts down the Discord session.
func (a *DiscordAdapter) Close() error {
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}
