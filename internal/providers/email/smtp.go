package email

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

var ErrNoRecipients = errors.New("email: no recipients")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg      Config
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now      func() time.Time
}

func NewSMTP(cfg Config) *SMTPProvider {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPProvider{cfg: cfg, sendMail: smtp.SendMail, now: time.Now}
}

func (p *SMTPProvider) Send(ctx context.Context, to []string, subject string, textBody string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	return p.sendMail(addr, auth, p.cfg.From, to, buildMessage(p.cfg.From, to, subject, textBody, p.now()))
}

func buildMessage(from string, to []string, subject, body string, date time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", strings.NewReplacer("\r", " ", "\n", " ").Replace(subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
