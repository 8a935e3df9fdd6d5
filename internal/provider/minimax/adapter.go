package minimax

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	providerdomain "github.com/smallbiznis/genstudio/internal/provider/domain"
	"github.com/smallbiznis/genstudio/internal/provider/httpclient"
	"github.com/smallbiznis/genstudio/pkg/media"
	"go.uber.org/zap"
)

const (
	ProviderName   = "minimax"
	defaultBaseURL = "https://api.minimax.io"

	pathSpeech = "/v1/t2a_v2"
	pathMusic  = "/v1/music_generation"

	defaultVoice       = "English_expressive_narrator"
	defaultSpeechModel = "speech-2.6-hd"
	defaultMusicModel  = "music-2.0"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewAdapter(cfg providerdomain.AdapterConfig) (providerdomain.Adapter, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: minimax api key is required", providerdomain.ErrInvalidConfig)
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
		log: log.Named("provider.minimax"),
		client: httpclient.New(httpclient.Config{
			Provider:       ProviderName,
			BaseURL:        baseURL,
			Timeout:        cfg.Timeout,
			MaxRetries:     cfg.MaxRetries,
			RetryBaseDelay: cfg.RetryBaseDelay,
			Header:         http.Header{"Authorization": []string{"Bearer " + apiKey}},
			HTTPClient:     cfg.HTTPClient,
			Log:            log,
			Metrics:        cfg.Metrics,
		}),
	}, nil
}

// Adapter generates speech and music synchronously. Every successful Submit
// returns a terminal status, so there is nothing to poll.
type Adapter struct {
	log    *zap.Logger
	client *httpclient.Client
}

func (a *Adapter) Provider() string {
	return ProviderName
}

func (a *Adapter) Submit(ctx context.Context, req providerdomain.SubmitRequest) (*providerdomain.SubmitResult, error) {
	var (
		path string
		body any
	)
	switch req.Kind {
	case media.KindMusic:
		music, err := buildMusicRequest(req.ProviderModel, req.Parameters)
		if err != nil {
			return nil, err
		}
		path, body = pathMusic, music
	default:
		speech, err := buildSpeechRequest(req.ProviderModel, req.Parameters)
		if err != nil {
			return nil, err
		}
		path, body = pathSpeech, speech
	}

	var resp audioResponse
	if _, err := a.client.DoJSON(ctx, httpclient.Request{Method: http.MethodPost, Path: path, Body: body}, &resp); err != nil {
		return nil, err
	}
	if resp.BaseResp.StatusCode != 0 {
		return nil, &providerdomain.DispatchError{
			Provider:   ProviderName,
			StatusCode: http.StatusOK,
			Code:       strconv.Itoa(resp.BaseResp.StatusCode),
			Message:    fmt.Sprintf("error %d: %s", resp.BaseResp.StatusCode, resp.BaseResp.StatusMsg),
			Retryable:  retryableStatus(resp.BaseResp.StatusCode),
		}
	}
	if resp.Data == nil || strings.TrimSpace(resp.Data.Audio) == "" {
		return nil, providerdomain.Permanent(ProviderName, http.StatusOK, "missing_audio", "response has no audio")
	}

	a.log.Info("minimax audio generated",
		zap.String("job_id", req.JobID.String()),
		zap.String("trace_id", resp.TraceID),
		zap.String("kind", string(req.Kind)),
	)
	return &providerdomain.SubmitResult{
		ExternalJobID: resp.TraceID,
		Status: &providerdomain.JobStatus{
			State:     providerdomain.StateCompleted,
			ResultURL: resp.Data.Audio,
		},
	}, nil
}

func (a *Adapter) PollStatus(ctx context.Context, req providerdomain.PollRequest) (*providerdomain.JobStatus, error) {
	return nil, providerdomain.ErrPollingUnsupported
}

func buildSpeechRequest(model string, params map[string]any) (speechRequest, error) {
	text := str(params["text"])
	if text == "" {
		text = str(params["prompt"])
	}
	if text == "" {
		return speechRequest{}, fmt.Errorf("%w: text is required", providerdomain.ErrInvalidParameters)
	}

	voice := voiceSetting{
		VoiceID: firstNonEmpty(str(params["voice_id"]), defaultVoice),
		Speed:   number(params["speed"]),
		Vol:     number(params["volume"]),
		Pitch:   int(number(params["pitch"])),
		Emotion: str(params["emotion"]),
	}
	return speechRequest{
		Model:         firstNonEmpty(model, defaultSpeechModel),
		Text:          text,
		Stream:        false,
		LanguageBoost: str(params["language_boost"]),
		VoiceSetting:  voice,
		AudioSetting:  audioSetting{Format: "mp3", SampleRate: 32000, Bitrate: 128000, Channel: 1},
		OutputFormat:  "url",
	}, nil
}

func buildMusicRequest(model string, params map[string]any) (musicRequest, error) {
	lyrics := str(params["lyrics"])
	prompt := str(params["prompt"])
	if lyrics == "" && prompt == "" {
		return musicRequest{}, fmt.Errorf("%w: lyrics or prompt is required", providerdomain.ErrInvalidParameters)
	}
	if lyrics == "" {
		lyrics = "[Instrumental]"
	}
	return musicRequest{
		Model:        firstNonEmpty(model, defaultMusicModel),
		Lyrics:       lyrics,
		Prompt:       prompt,
		OutputFormat: "url",
		AudioSetting: audioSetting{Format: "mp3", SampleRate: 44100, Bitrate: 256000},
	}, nil
}

// retryableStatus reports MiniMax business codes for rate limiting and
// server-side faults.
func retryableStatus(code int) bool {
	switch code {
	case 1000, 1001, 1002, 1024, 1039:
		return true
	}
	return false
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f
	}
	return 0
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
