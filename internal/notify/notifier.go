// Package notify delivers operational alerts for failed workflow sessions.
package notify

import (
	"context"
	"fmt"

	slacklib "github.com/slack-go/slack"

	"github.com/rfpflow/rfpflow/internal/workflow"
)

// SlackAPI abstracts the subset of the Slack client used by SlackNotifier.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackNotifier posts session failure alerts to an operations channel.
type SlackNotifier struct {
	api     SlackAPI
	channel string
}

var _ workflow.FailureNotifier = (*SlackNotifier)(nil)

// NewSlackNotifier creates a notifier posting to the given channel ID.
func NewSlackNotifier(api SlackAPI, channel string) *SlackNotifier {
	return &SlackNotifier{api: api, channel: channel}
}

// NotifyFailure posts one alert message for a failed session.
func (n *SlackNotifier) NotifyFailure(ctx context.Context, sessionID, message string) error {
	text := fmt.Sprintf(":rotating_light: RFP workflow session `%s` failed: %s", sessionID, message)

	_, _, err := n.api.PostMessageContext(ctx, n.channel, slacklib.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("notify.SlackNotifier.NotifyFailure: %w", err)
	}

	return nil
}

// Nop is a no-op notifier used when Slack is not configured.
type Nop struct{}

var _ workflow.FailureNotifier = Nop{}

func (Nop) NotifyFailure(context.Context, string, string) error { return nil }
