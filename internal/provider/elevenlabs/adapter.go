package elevenlabs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	providerdomain "github.com/smallbiznis/genstudio/internal/provider/domain"
	"github.com/smallbiznis/genstudio/internal/provider/httpclient"
	"github.com/smallbiznis/genstudio/internal/storage"
	"go.uber.org/zap"
)

const (
	ProviderName   = "elevenlabs"
	defaultBaseURL = "https://api.elevenlabs.io"

	defaultModel        = "eleven_multilingual_v2"
	defaultVoice        = "JBFqnCBsd6RMkjVDRZzb"
	defaultOutputFormat = "mp3_44100_128"
)

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	Speed           float64 `json:"speed,omitempty"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
	LanguageCode  string        `json:"language_code,omitempty"`
}

// Factory builds adapters that persist the synthesized audio through store,
// since ElevenLabs returns raw bytes instead of a hosted URL.
type Factory struct {
	store storage.Store
}

func NewFactory(store storage.Store) *Factory {
	return &Factory{store: store}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewAdapter(cfg providerdomain.AdapterConfig) (providerdomain.Adapter, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: elevenlabs api key is required", providerdomain.ErrInvalidConfig)
	}
	if f.store == nil {
		return nil, fmt.Errorf("%w: elevenlabs requires a media store", providerdomain.ErrInvalidConfig)
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Adapter{
		log:   log.Named("provider.elevenlabs"),
		store: f.store,
		client: httpclient.New(httpclient.Config{
			Provider:       ProviderName,
			BaseURL:        baseURL,
			Timeout:        cfg.Timeout,
			MaxRetries:     cfg.MaxRetries,
			RetryBaseDelay: cfg.RetryBaseDelay,
			Header:         http.Header{"xi-api-key": []string{apiKey}},
			HTTPClient:     cfg.HTTPClient,
			Log:            log,
			Metrics:        cfg.Metrics,
		}),
	}, nil
}

type Adapter struct {
	log    *zap.Logger
	store  storage.Store
	client *httpclient.Client
}

func (a *Adapter) Provider() string {
	return ProviderName
}

func (a *Adapter) Submit(ctx context.Context, req providerdomain.SubmitRequest) (*providerdomain.SubmitResult, error) {
	text := str(req.Parameters["text"])
	if text == "" {
		text = str(req.Parameters["prompt"])
	}
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", providerdomain.ErrInvalidParameters)
	}

	settings := voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	if v, ok := number(req.Parameters["stability"]); ok {
		settings.Stability = v
	}
	if v, ok := number(req.Parameters["similarity_boost"]); ok {
		settings.SimilarityBoost = v
	}
	if v, ok := number(req.Parameters["style"]); ok {
		settings.Style = v
	}
	if v, ok := number(req.Parameters["speed"]); ok {
		settings.Speed = v
	}

	voiceID := firstNonEmpty(str(req.Parameters["voice_id"]), defaultVoice)
	body := speechRequest{
		Text:          text,
		ModelID:       firstNonEmpty(req.ProviderModel, defaultModel),
		VoiceSettings: settings,
		LanguageCode:  str(req.Parameters["language_code"]),
	}

	resp, err := a.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/v1/text-to-speech/" + url.PathEscape(voiceID),
		Query:  url.Values{"output_format": []string{defaultOutputFormat}},
		Body:   body,
		Header: http.Header{"Accept": []string{"audio/mpeg"}},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return nil, providerdomain.Permanent(ProviderName, resp.StatusCode, "empty_audio", "response has no audio")
	}

	key := storage.ObjectKey("audio", body.ModelID, req.JobID.String(), "mp3")
	resultURL, err := a.store.Put(ctx, key, "audio/mpeg", resp.Body)
	if err != nil {
		return nil, providerdomain.Retryable(ProviderName, 0, fmt.Errorf("store audio: %w", err))
	}

	a.log.Info("elevenlabs audio stored",
		zap.String("job_id", req.JobID.String()),
		zap.String("voice_id", voiceID),
		zap.Int("bytes", len(resp.Body)),
	)
	return &providerdomain.SubmitResult{
		ExternalJobID: key,
		Status: &providerdomain.JobStatus{
			State:     providerdomain.StateCompleted,
			ResultURL: resultURL,
		},
	}, nil
}

func (a *Adapter) PollStatus(ctx context.Context, req providerdomain.PollRequest) (*providerdomain.JobStatus, error) {
	return nil, providerdomain.ErrPollingUnsupported
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ providerdomain.Adapter = (*Adapter)(nil)
