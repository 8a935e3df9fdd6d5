package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Provider interface {
	PostMessage(ctx context.Context, channelID string, message string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	return nil
}

// WebhookProvider posts to a Slack incoming webhook.
type WebhookProvider struct {
	url    string
	client *http.Client
}

func NewWebhookProvider(webhookURL string, client *http.Client) *WebhookProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookProvider{url: strings.TrimSpace(webhookURL), client: client}
}

type webhookMessage struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

func (p *WebhookProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	payload, err := json.Marshal(webhookMessage{Channel: channelID, Text: message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// New returns a webhook provider, or NoOp when no webhook is configured.
func New(webhookURL string) Provider {
	if strings.TrimSpace(webhookURL) == "" {
		return &NoOpProvider{}
	}
	return NewWebhookProvider(webhookURL, nil)
}
