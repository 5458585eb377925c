package notification

import (
	"context"
	"fmt"
	"strconv"

	"github.com/slack-go/slack"
)

// SlackAlerter posts operator alerts to a Slack incoming webhook: SLA breaches of
// P0/P1 messages and gateways turning unhealthy. Everything else is ignored.
type SlackAlerter struct {
	webhookURL string
	post       func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

// NewSlackAlerter creates a SlackAlerter for the webhook URL.
func NewSlackAlerter(webhookURL string) *SlackAlerter {
	return &SlackAlerter{webhookURL: webhookURL, post: slack.PostWebhookContext}
}

// Deliver posts an alert when n warrants one.
func (a *SlackAlerter) Deliver(ctx context.Context, n Notification) error {
	var msg *slack.WebhookMessage
	switch {
	case n.IsSLABreach():
		msg = slaBreachMessage(n)
	case n.Kind == KindGatewayHealthChanged && n.Health != nil && !n.Health.Healthy:
		msg = unhealthyGatewayMessage(n)
	default:
		return nil
	}

	if err := a.post(ctx, a.webhookURL, msg); err != nil {
		return fmt.Errorf("failed to post slack alert: %w", err)
	}
	return nil
}

func slaBreachMessage(n Notification) *slack.WebhookMessage {
	title := fmt.Sprintf("%s message %s", n.Priority, n.Kind)
	fields := []slack.AttachmentField{
		{Title: "Channel", Value: string(n.Channel), Short: true},
		{Title: "Attempts", Value: strconv.Itoa(n.Attempts), Short: true},
	}
	if n.MessageID != nil {
		fields = append(fields, slack.AttachmentField{Title: "Message", Value: n.MessageID.String()})
	}
	if n.Gateway != "" {
		fields = append(fields, slack.AttachmentField{Title: "Gateway", Value: n.Gateway, Short: true})
	}
	if n.Reason != "" {
		fields = append(fields, slack.AttachmentField{Title: "Reason", Value: n.Reason})
	}

	return &slack.WebhookMessage{
		Text: ":rotating_light: " + title,
		Attachments: []slack.Attachment{{
			Title:    title,
			Color:    "danger",
			Fallback: title,
			Fields:   fields,
		}},
	}
}

func unhealthyGatewayMessage(n Notification) *slack.WebhookMessage {
	h := n.Health
	title := fmt.Sprintf("gateway %s/%s unhealthy", h.Channel, h.Gateway)
	fields := []slack.AttachmentField{
		{Title: "Circuit open", Value: strconv.FormatBool(h.CircuitOpen), Short: true},
		{Title: "Success rate 1h", Value: strconv.FormatFloat(h.SuccessRate1h*100, 'f', 1, 64) + "%", Short: true},
		{Title: "Consecutive failures", Value: strconv.Itoa(h.ConsecutiveFailures), Short: true},
	}
	if h.FailureReason != nil {
		fields = append(fields, slack.AttachmentField{Title: "Last failure", Value: *h.FailureReason})
	}

	return &slack.WebhookMessage{
		Text: ":warning: " + title,
		Attachments: []slack.Attachment{{
			Title:    title,
			Color:    "warning",
			Fallback: title,
			Fields:   fields,
		}},
	}
}
