package email

import (
	"context"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutHostIsNoOp(t *testing.T) {
	assert.IsType(t, &NoOpProvider{}, New(Config{}))
	assert.IsType(t, &SMTPProvider{}, New(Config{Host: "smtp.example.com"}))
}

func TestSMTPProviderSend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	var gotAuth smtp.Auth

	p := NewSMTP(Config{Host: "smtp.example.com", Username: "ops", Password: "pw", From: "alerts@genstudio.test"})
	p.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	p.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, msg
		return nil
	}

	err := p.Send(context.Background(), []string{"ops@genstudio.test", "oncall@genstudio.test"}, "refund\nfailed", "line one\nline two")
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "alerts@genstudio.test", gotFrom)
	assert.Len(t, gotTo, 2)
	msg := string(gotMsg)
	assert.Contains(t, msg, "To: ops@genstudio.test, oncall@genstudio.test\r\n")
	assert.Contains(t, msg, "Subject: refund failed\r\n")
	assert.Contains(t, msg, "Date: Sun, 01 Mar 2026 10:00:00 +0000\r\n")
	assert.Contains(t, msg, "\r\n\r\nline one\r\nline two")
}

func TestSMTPProviderSendGuards(t *testing.T) {
	p := NewSMTP(Config{Host: "smtp.example.com"})
	p.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send should not be attempted")
		return nil
	}

	assert.ErrorIs(t, p.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Send(ctx, []string{"a@b.c"}, "s", "b"), context.Canceled)
}
