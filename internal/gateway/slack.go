package gateway

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackAdapter posts task notifications to one Slack channel.
type SlackAdapter struct {
	client    *slack.Client
	channelID string
	logger    *zap.Logger
}

// NewSlackAdapter creates a Slack adapter. token is the Bot User OAuth Token
// (xoxb-...).
func NewSlackAdapter(token, channelID string, logger *zap.Logger) *SlackAdapter {
	return &SlackAdapter{
		client:    slack.New(token),
		channelID: channelID,
		logger:    logger,
	}
}

func (a *SlackAdapter) Platform() string { return "slack" }

// Connect verifies the token with an auth test.
func (a *SlackAdapter) Connect(ctx context.Context) error {
	resp, err := a.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	a.logger.Info("slack adapter authenticated",
		zap.String("bot", resp.User),
		zap.String("team", resp.Team))
	return nil
}

// Notify posts the notification to the configured channel.
func (a *SlackAdapter) Notify(ctx context.Context, n *Notification) error {
	text := fmt.Sprintf("*%s*", n.Title)
	if n.Body != "" {
		text += "\n" + n.Body
	}
	_, _, err := a.client.PostMessageContext(ctx, a.channelID,
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("slack notify: %w", err)
	}
	return nil
}

// Close is a no-op; the Slack client holds no long-lived connection.
func (a *SlackAdapter) Close() error {
	return nil
}
