package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/genstudio/internal/providers/email"
)

// EmailSink mails operators about events that need manual follow-up. Other
// events are skipped.
type EmailSink struct {
	provider   email.Provider
	recipients []string
}

func NewEmailSink(provider email.Provider, recipients []string) *EmailSink {
	return &EmailSink{provider: provider, recipients: recipients}
}

func (s *EmailSink) Name() string {
	return "email"
}

func (s *EmailSink) Send(ctx context.Context, event Event) error {
	if event.Type != EventRefundFailed || len(s.recipients) == 0 {
		return nil
	}
	subject := fmt.Sprintf("[genstudio] refund failed for job %s", event.JobID)
	return s.provider.Send(ctx, s.recipients, subject, formatRefundFailure(event))
}

func formatRefundFailure(event Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A refund could not be applied and the user balance needs a manual correction.\n\n")
	fmt.Fprintf(&b, "Job:     %s\n", event.JobID)
	fmt.Fprintf(&b, "User:    %d\n", event.UserID)
	fmt.Fprintf(&b, "Model:   %s (%s)\n", event.ModelKey, event.Kind)
	fmt.Fprintf(&b, "Credits: %d\n", event.CreditsCost)
	fmt.Fprintf(&b, "Error:   %s\n", event.ErrorMessage)
	if !event.OccurredAt.IsZero() {
		fmt.Fprintf(&b, "At:      %s\n", event.OccurredAt.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if event.CorrelationID != "" {
		fmt.Fprintf(&b, "Trace:   %s\n", event.CorrelationID)
	}
	return b.String()
}
