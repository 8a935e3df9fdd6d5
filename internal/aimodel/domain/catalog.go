package domain

import "github.com/smallbiznis/genstudio/pkg/media"

const (
	ProviderKie        = "kie"
	ProviderMiniMax    = "minimax"
	ProviderElevenLabs = "elevenlabs"
)

func maxSeconds(v int) *int { return &v }

// DefaultCatalog is the model set registered on a fresh database.
func DefaultCatalog() []AIModel {
	catalog := []AIModel{
		{ModelKey: "veo3", Kind: media.KindVideo, Provider: ProviderKie, ProviderModel: "veo3_fast", DisplayName: "Veo 3.1", MaxDurationSeconds: maxSeconds(8)},
		{ModelKey: "sora2", Kind: media.KindVideo, Provider: ProviderKie, ProviderModel: "sora-2-text-to-video", DisplayName: "Sora 2", MaxDurationSeconds: maxSeconds(15)},
		{ModelKey: "sora2-pro", Kind: media.KindVideo, Provider: ProviderKie, ProviderModel: "sora-2-pro-text-to-video", DisplayName: "Sora 2 Pro", MaxDurationSeconds: maxSeconds(15)},
		{ModelKey: "kling-2.6", Kind: media.KindVideo, Provider: ProviderKie, ProviderModel: "kling-2.6/text-to-video", DisplayName: "Kling 2.6", MaxDurationSeconds: maxSeconds(10)},
		{ModelKey: "kling-motion", Kind: media.KindVideo, Provider: ProviderKie, ProviderModel: "kling-2.6/motion-control", DisplayName: "Kling 2.6 Motion Control", MaxDurationSeconds: maxSeconds(30)},
		{ModelKey: "grok-imagine", Kind: media.KindVideo, Provider: ProviderKie, ProviderModel: "grok-imagine/text-to-video", DisplayName: "Grok Imagine", MaxDurationSeconds: maxSeconds(6)},
		{ModelKey: "seedance-lite", Kind: media.KindVideo, Provider: ProviderKie, ProviderModel: "bytedance/v1-lite-text-to-video", DisplayName: "Seedance 1.0 Lite", MaxDurationSeconds: maxSeconds(6)},
		{ModelKey: "hailuo-2.3", Kind: media.KindVideo, Provider: ProviderKie, ProviderModel: "hailuo/02-text-to-video-standard", DisplayName: "Hailuo 2.3", MaxDurationSeconds: maxSeconds(10)},
		{ModelKey: "wan-2.6", Kind: media.KindVideo, Provider: ProviderKie, ProviderModel: "wan/2-6-text-to-video", DisplayName: "Wan 2.6", MaxDurationSeconds: maxSeconds(15)},
		{ModelKey: "runway-gen3", Kind: media.KindVideo, Provider: ProviderKie, ProviderModel: "runway-gen3-alpha", DisplayName: "Runway Gen-3 Alpha", MaxDurationSeconds: maxSeconds(10)},

		{ModelKey: "flux-2-pro", Kind: media.KindImage, Provider: ProviderKie, ProviderModel: "flux-2/pro-text-to-image", DisplayName: "Flux 2 Pro"},
		{ModelKey: "seedream-4.5", Kind: media.KindImage, Provider: ProviderKie, ProviderModel: "seedream/4.5-text-to-image", DisplayName: "Seedream 4.5"},
		{ModelKey: "nano-banana", Kind: media.KindImage, Provider: ProviderKie, ProviderModel: "google/nano-banana", DisplayName: "Nano Banana"},
		{ModelKey: "nano-banana-pro", Kind: media.KindImage, Provider: ProviderKie, ProviderModel: "nano-banana-pro", DisplayName: "Nano Banana Pro"},
		{ModelKey: "qwen-image", Kind: media.KindImage, Provider: ProviderKie, ProviderModel: "qwen/text-to-image", DisplayName: "Qwen Image"},

		{ModelKey: "minimax-speech", Kind: media.KindAudio, Provider: ProviderMiniMax, ProviderModel: "speech-2.6-hd", DisplayName: "MiniMax Speech"},
		{ModelKey: "elevenlabs-tts", Kind: media.KindAudio, Provider: ProviderElevenLabs, ProviderModel: "eleven_multilingual_v2", DisplayName: "ElevenLabs Multilingual v2"},
		{ModelKey: "minimax-music", Kind: media.KindMusic, Provider: ProviderMiniMax, ProviderModel: "music-2.0", DisplayName: "MiniMax Music"},
	}
	for i := range catalog {
		catalog[i].IsActive = true
	}
	return catalog
}
