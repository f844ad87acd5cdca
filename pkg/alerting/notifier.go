package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"
)

// NotifierConfig holds the parameters needed to construct a Notifier.
type NotifierConfig struct {
	Token   string
	Channel string
}

// Notifier delivers critical events to Slack.
// Nil-safe: all methods are no-ops when the notifier is nil.
type Notifier struct {
	api     *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Slack notifier. Returns nil if Token or Channel is
// empty, which disables Slack delivery while leaving the log contract intact.
func NewNotifier(cfg NotifierConfig) *Notifier {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Notifier{
		api:     goslack.New(cfg.Token),
		channel: cfg.Channel,
		logger:  slog.Default().With("component", "alert-notifier"),
	}
}

// NewNotifierWithAPIURL creates a notifier that targets a custom API URL.
// Useful for testing with a mock server.
func NewNotifierWithAPIURL(cfg NotifierConfig, apiURL string) *Notifier {
	return &Notifier{
		api:     goslack.New(cfg.Token, goslack.OptionAPIURL(apiURL)),
		channel: cfg.Channel,
		logger:  slog.Default().With("component", "alert-notifier"),
	}
}

// NotifyCritical posts the critical event to the configured channel.
// Fail-open: errors are logged, never returned.
func (n *Notifier) NotifyCritical(ctx context.Context, ev CriticalEvent) {
	if n == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	blocks := buildCriticalMessage(ev)
	_, _, err := n.api.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionBlocks(blocks...))
	if err != nil {
		n.logger.Error("Failed to send critical alert to Slack",
			"conversation_id", ev.ConversationID,
			"error", err)
	}
}

// buildCriticalMessage renders the event as Slack Block Kit blocks.
func buildCriticalMessage(ev CriticalEvent) []goslack.Block {
	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType,
			":rotating_light: Final conversation update failed", false, false))

	fields := []*goslack.TextBlockObject{
		mrkdwnField("Conversation", ev.ConversationID),
		mrkdwnField("Channel", ev.ChannelMethod),
		mrkdwnField("Company / Project", ev.CompanyID+" / "+ev.ProjectID),
		mrkdwnField("Provider Message", ev.ProviderMessageID),
		mrkdwnField("Thread", ev.ThreadID),
		mrkdwnField("Error", errString(ev.UpdateError)),
	}
	details := goslack.NewSectionBlock(nil, fields, nil)

	note := goslack.NewContextBlock("",
		goslack.NewTextBlockObject(goslack.MarkdownType,
			"The provider message was sent. The conversation record needs manual repair.",
			false, false))

	return []goslack.Block{header, details, note}
}

func mrkdwnField(label, value string) *goslack.TextBlockObject {
	if value == "" {
		value = "_unknown_"
	}
	return goslack.NewTextBlockObject(goslack.MarkdownType,
		fmt.Sprintf("*%s:*\n%s", label, value), false, false)
}
