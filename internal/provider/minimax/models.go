package minimax

type baseResp struct {
	StatusCode int    `json:"status_code"`
	StatusMsg  string `json:"status_msg"`
}

type voiceSetting struct {
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed,omitempty"`
	Vol     float64 `json:"vol,omitempty"`
	Pitch   int     `json:"pitch,omitempty"`
	Emotion string  `json:"emotion,omitempty"`
}

type audioSetting struct {
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Bitrate    int    `json:"bitrate"`
	Channel    int    `json:"channel,omitempty"`
}

type speechRequest struct {
	Model         string       `json:"model"`
	Text          string       `json:"text"`
	Stream        bool         `json:"stream"`
	LanguageBoost string       `json:"language_boost,omitempty"`
	VoiceSetting  voiceSetting `json:"voice_setting"`
	AudioSetting  audioSetting `json:"audio_setting"`
	OutputFormat  string       `json:"output_format"`
}

type musicRequest struct {
	Model        string       `json:"model"`
	Lyrics       string       `json:"lyrics"`
	Prompt       string       `json:"prompt,omitempty"`
	OutputFormat string       `json:"output_format"`
	AudioSetting audioSetting `json:"audio_setting"`
}

type audioResponse struct {
	Data *struct {
		Audio  string `json:"audio"`
		Status int    `json:"status"`
	} `json:"data"`
	TraceID  string   `json:"trace_id"`
	BaseResp baseResp `json:"base_resp"`
}
