package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	providerdomain "github.com/smallbiznis/genstudio/internal/provider/domain"
	"github.com/smallbiznis/genstudio/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	key         string
	contentType string
	data        []byte
	err         error
}

func (s *memoryStore) Put(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.key, s.contentType, s.data = key, contentType, data
	return "https://media.example.com/" + key, nil
}

func newTestAdapter(t *testing.T, store *memoryStore, handler http.HandlerFunc) providerdomain.Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	adapter, err := NewFactory(store).NewAdapter(providerdomain.AdapterConfig{
		APIKey:         "xi-key",
		BaseURL:        srv.URL,
		Timeout:        time.Second,
		RetryBaseDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return adapter
}

func TestSubmitStoresAudio(t *testing.T) {
	store := &memoryStore{}
	adapter := newTestAdapter(t, store, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/voice-7", r.URL.Path)
		assert.Equal(t, defaultOutputFormat, r.URL.Query().Get("output_format"))
		assert.Equal(t, "xi-key", r.Header.Get("xi-api-key"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "narrate this", body["text"])
		assert.Equal(t, defaultModel, body["model_id"])
		settings := body["voice_settings"].(map[string]any)
		assert.Equal(t, 0.5, settings["stability"])
		assert.Equal(t, 0.75, settings["similarity_boost"])

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fake-mp3"))
	})

	jobID := snowflake.ID(42)
	result, err := adapter.Submit(context.Background(), providerdomain.SubmitRequest{
		JobID:      jobID,
		Kind:       media.KindAudio,
		Parameters: map[string]any{"text": "narrate this", "voice_id": "voice-7"},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Status)
	assert.Equal(t, providerdomain.StateCompleted, result.Status.State)
	assert.Equal(t, "https://media.example.com/audio/eleven_multilingual_v2/42.mp3", result.Status.ResultURL)
	assert.Equal(t, "audio/eleven_multilingual_v2/42.mp3", store.key)
	assert.Equal(t, "audio/mpeg", store.contentType)
	assert.Equal(t, []byte("ID3fake-mp3"), store.data)
}

func TestSubmitHTTPErrorIsPermanent(t *testing.T) {
	adapter := newTestAdapter(t, &memoryStore{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":{"status":"invalid_api_key"}}`))
	})

	_, err := adapter.Submit(context.Background(), providerdomain.SubmitRequest{Parameters: map[string]any{"text": "x"}})
	require.Error(t, err)
	assert.False(t, providerdomain.IsRetryable(err))
	assert.Contains(t, err.Error(), "invalid_api_key")
}

func TestSubmitStoreFailureIsRetryable(t *testing.T) {
	adapter := newTestAdapter(t, &memoryStore{err: errors.New("disk full")}, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mp3"))
	})

	_, err := adapter.Submit(context.Background(), providerdomain.SubmitRequest{Parameters: map[string]any{"text": "x"}})
	require.Error(t, err)
	assert.True(t, providerdomain.IsRetryable(err))
}

func TestFactoryValidation(t *testing.T) {
	_, err := NewFactory(&memoryStore{}).NewAdapter(providerdomain.AdapterConfig{})
	assert.ErrorIs(t, err, providerdomain.ErrInvalidConfig)

	_, err = NewFactory(nil).NewAdapter(providerdomain.AdapterConfig{APIKey: "k"})
	assert.ErrorIs(t, err, providerdomain.ErrInvalidConfig)
}
