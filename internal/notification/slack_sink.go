package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/genstudio/internal/providers/slack"
)

type SlackSink struct {
	provider slack.Provider
	channel  string
}

func NewSlackSink(provider slack.Provider, channel string) *SlackSink {
	return &SlackSink{provider: provider, channel: channel}
}

func (s *SlackSink) Name() string {
	return "slack"
}

func (s *SlackSink) Send(ctx context.Context, event Event) error {
	return s.provider.PostMessage(ctx, s.channel, FormatMessage(event))
}

// FormatMessage renders event as a single Slack line.
func FormatMessage(event Event) string {
	var b strings.Builder
	switch event.Type {
	case EventJobCompleted:
		fmt.Fprintf(&b, ":white_check_mark: %s job %s completed (%s, %d credits)", event.Kind, event.JobID, event.ModelKey, event.CreditsCost)
		if event.ResultURL != "" {
			fmt.Fprintf(&b, " %s", event.ResultURL)
		}
	case EventJobFailed:
		fmt.Fprintf(&b, ":x: %s job %s failed (%s): %s", event.Kind, event.JobID, event.ModelKey, event.ErrorMessage)
	case EventRefundFailed:
		fmt.Fprintf(&b, ":rotating_light: refund of %d credits for job %s (user %d) failed: %s",
			event.CreditsCost, event.JobID, event.UserID, event.ErrorMessage)
	default:
		fmt.Fprintf(&b, "%s job %s", event.Type, event.JobID)
	}
	if event.CorrelationID != "" {
		fmt.Fprintf(&b, " [%s]", event.CorrelationID)
	}
	return b.String()
}
