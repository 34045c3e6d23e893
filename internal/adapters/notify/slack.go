package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/slack-go/slack"
	"github.com/viralforge/mesh/services/financial-rails/M92-payment-attribution-service/internal/ports"
)

// SlackNotifier posts notifications to an operations channel. Security alerts
// go to a separate channel when one is configured.
type SlackNotifier struct {
	client        *slack.Client
	channel       string
	alertsChannel string
}

type SlackOptions struct {
	Token         string
	Channel       string
	AlertsChannel string
	APIURL        string
}

func NewSlackNotifier(opts SlackOptions) (*SlackNotifier, error) {
	if strings.TrimSpace(opts.Token) == "" || strings.TrimSpace(opts.Channel) == "" {
		return nil, errors.New("slack token and channel are required")
	}
	var clientOpts []slack.Option
	if opts.APIURL != "" {
		clientOpts = append(clientOpts, slack.OptionAPIURL(opts.APIURL))
	}
	alerts := opts.AlertsChannel
	if alerts == "" {
		alerts = opts.Channel
	}
	return &SlackNotifier{
		client:        slack.New(opts.Token, clientOpts...),
		channel:       opts.Channel,
		alertsChannel: alerts,
	}, nil
}

func (n *SlackNotifier) Notify(ctx context.Context, msg ports.Notification) error {
	channel := n.channel
	if msg.Kind == ports.NotificationSecurityAlert {
		channel = n.alertsChannel
	}
	_, _, err := n.client.PostMessageContext(ctx, channel,
		slack.MsgOptionText(headline(msg), false),
		slack.MsgOptionAttachments(slack.Attachment{Fields: attachmentFields(msg)}),
	)
	if err != nil {
		return fmt.Errorf("slack post %s: %w", msg.Kind, err)
	}
	return nil
}

func headline(msg ports.Notification) string {
	if msg.Recipient == "" {
		return fmt.Sprintf("[%s] %s", msg.Kind, msg.Subject)
	}
	return fmt.Sprintf("[%s] %s (to %s)", msg.Kind, msg.Subject, msg.Recipient)
}

func attachmentFields(msg ports.Notification) []slack.AttachmentField {
	keys := make([]string, 0, len(msg.Fields))
	for k := range msg.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]slack.AttachmentField, 0, len(keys))
	for _, k := range keys {
		out = append(out, slack.AttachmentField{Title: k, Value: msg.Fields[k], Short: true})
	}
	return out
}

var _ ports.Notifier = (*SlackNotifier)(nil)
