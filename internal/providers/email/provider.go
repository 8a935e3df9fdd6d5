package email

import (
	"context"
	"strings"
)

type Provider interface {
	Send(ctx context.Context, to []string, subject string, textBody string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, textBody string) error {
	return nil
}

// New returns an SMTP provider, or NoOp when no SMTP host is configured.
func New(cfg Config) Provider {
	if strings.TrimSpace(cfg.Host) == "" {
		return &NoOpProvider{}
	}
	return NewSMTP(cfg)
}
