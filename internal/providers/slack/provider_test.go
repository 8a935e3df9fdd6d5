package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookProviderPostsMessage(t *testing.T) {
	var got webhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	err := NewWebhookProvider(srv.URL, srv.Client()).PostMessage(context.Background(), "#alerts", "job failed")
	require.NoError(t, err)
	assert.Equal(t, "#alerts", got.Channel)
	assert.Equal(t, "job failed", got.Text)
}

func TestWebhookProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer srv.Close()

	err := NewWebhookProvider(srv.URL, nil).PostMessage(context.Background(), "", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_token")
}

func TestNewWithoutURLIsNoOp(t *testing.T) {
	provider := New("  ")
	assert.IsType(t, &NoOpProvider{}, provider)
	assert.NoError(t, provider.PostMessage(context.Background(), "", "x"))
}
