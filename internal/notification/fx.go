package notification

import (
	"context"

	"github.com/smallbiznis/genstudio/internal/config"
	"github.com/smallbiznis/genstudio/internal/providers/email"
	"github.com/smallbiznis/genstudio/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(New),
	fx.Provide(func(d *Dispatcher) Publisher { return d }),
)

func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *Dispatcher {
	notifyCfg := cfg.Notification
	sinks := []Sink{NewSlackSink(slack.New(notifyCfg.SlackWebhookURL), notifyCfg.SlackChannel)}
	if notifyCfg.SMTPHost != "" && len(notifyCfg.AlertEmails) > 0 {
		sinks = append(sinks, NewEmailSink(email.New(email.Config{
			Host:     notifyCfg.SMTPHost,
			Port:     notifyCfg.SMTPPort,
			Username: notifyCfg.SMTPUsername,
			Password: notifyCfg.SMTPPassword,
			From:     notifyCfg.SMTPFrom,
		}), notifyCfg.AlertEmails))
	}
	dispatcher := NewDispatcher(log, notifyCfg.BufferSize, sinks...)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			dispatcher.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return dispatcher.Close(ctx)
		},
	})
	return dispatcher
}
