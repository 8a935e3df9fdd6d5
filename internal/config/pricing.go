package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PricingConfig is the credit price table for every generation kind and model.
type PricingConfig struct {
	Defaults map[string]int64 `mapstructure:"defaults"`
	Models   []ModelPrice     `mapstructure:"models"`
}

// ModelPrice prices a single model. Variants are keyed by the values of
// VariantKeys joined with "-" in declaration order.
type ModelPrice struct {
	Key         string                      `mapstructure:"key"`
	Kind        string                      `mapstructure:"kind"`
	Base        int64                       `mapstructure:"base"`
	Required    []string                    `mapstructure:"required"`
	VariantKeys []string                    `mapstructure:"variantKeys"`
	Defaults    map[string]string           `mapstructure:"defaults"`
	Variants    map[string]int64            `mapstructure:"variants"`
	Surcharges  map[string]map[string]int64 `mapstructure:"surcharges"`
	PerSecond   map[string]int64            `mapstructure:"perSecond"`
}

// Model returns the price entry for key, matched case-insensitively.
func (c PricingConfig) Model(key string) (ModelPrice, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, m := range c.Models {
		if strings.ToLower(strings.TrimSpace(m.Key)) == key {
			return m, true
		}
	}
	return ModelPrice{}, false
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		Defaults: map[string]int64{
			"image": 10,
			"video": 50,
			"audio": 10,
			"music": 30,
		},
		Models: []ModelPrice{
			{
				Key:         "veo3",
				Kind:        "video",
				Base:        60,
				VariantKeys: []string{"quality"},
				Defaults:    map[string]string{"quality": "fast"},
				Variants:    map[string]int64{"fast": 60, "quality": 250, "high": 250},
				Surcharges:  map[string]map[string]int64{"resolution": {"4k": 120}},
			},
			{
				Key:         "sora2",
				Kind:        "video",
				Base:        24,
				VariantKeys: []string{"duration"},
				Defaults:    map[string]string{"duration": "10"},
				Variants:    map[string]int64{"10": 24, "15": 30},
			},
			{
				Key:         "sora2-pro",
				Kind:        "video",
				Base:        150,
				VariantKeys: []string{"quality", "duration"},
				Defaults:    map[string]string{"quality": "standard", "duration": "10"},
				Variants: map[string]int64{
					"standard-10": 150,
					"standard-15": 270,
					"high-10":     330,
					"high-15":     630,
				},
			},
			{
				Key:         "kling-2.6",
				Kind:        "video",
				Base:        55,
				VariantKeys: []string{"duration", "sound"},
				Defaults:    map[string]string{"duration": "5"},
				Variants: map[string]int64{
					"5":        55,
					"5-audio":  110,
					"10":       110,
					"10-audio": 220,
				},
			},
			{
				Key:       "kling-motion",
				Kind:      "video",
				Base:      30,
				Required:  []string{"duration"},
				Defaults:  map[string]string{"resolution": "720p"},
				PerSecond: map[string]int64{"720p": 6, "1080p": 9},
			},
			{Key: "grok-imagine", Kind: "video", Base: 15},
			{
				Key:         "seedance-lite",
				Kind:        "video",
				Base:        20,
				VariantKeys: []string{"duration"},
				Defaults:    map[string]string{"duration": "3"},
				Variants:    map[string]int64{"3": 20, "6": 35},
			},
			{Key: "hailuo-2.3", Kind: "video", Base: 25},
			{
				Key:         "wan-2.6",
				Kind:        "video",
				Base:        70,
				VariantKeys: []string{"duration"},
				Defaults:    map[string]string{"duration": "5"},
				Variants:    map[string]int64{"5": 70, "10": 140, "15": 210},
			},
			{Key: "runway-gen3", Kind: "video", Base: 60},

			{Key: "flux-2-pro", Kind: "image", Base: 12},
			{Key: "seedream-4.5", Kind: "image", Base: 14},
			{Key: "nano-banana", Kind: "image", Base: 10},
			{Key: "nano-banana-pro", Kind: "image", Base: 15},
			{Key: "qwen-image", Kind: "image", Base: 8},

			{Key: "minimax-speech", Kind: "audio", Base: 10},
			{Key: "elevenlabs-tts", Kind: "audio", Base: 10},

			{Key: "minimax-music", Kind: "music", Base: 30},
		},
	}
}

// PricingConfigHolder keeps the active price table and swaps it on file change.
type PricingConfigHolder struct {
	current atomic.Value // holds PricingConfig
}

// NewStaticPricingConfigHolder pins cfg without watching any file.
func NewStaticPricingConfigHolder(cfg PricingConfig) *PricingConfigHolder {
	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPricingConfigHolder(log *zap.Logger) (*PricingConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("pricing.config")

	v := viper.New()
	if path := strings.TrimSpace(os.Getenv("GENSTUDIO_PRICING_PATH")); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pricing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/genstudio")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("GENSTUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
		log.Info("pricing file not found, using defaults")
		return NewStaticPricingConfigHolder(DefaultPricingConfig()), nil
	}

	cfg, err := decodePricing(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPricingConfigHolder(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePricing(v)
		if err != nil {
			log.Warn("pricing reload ignored", zap.String("file", filepath.Base(e.Name)), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("pricing reloaded", zap.String("file", filepath.Base(e.Name)))
	})

	return holder, nil
}

func (h *PricingConfigHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

func decodePricing(v *viper.Viper) (PricingConfig, error) {
	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return PricingConfig{}, err
	}
	if err := validatePricingConfig(cfg); err != nil {
		return PricingConfig{}, err
	}
	return cfg, nil
}

func validatePricingConfig(cfg PricingConfig) error {
	for _, kind := range []string{"image", "video", "audio", "music"} {
		if cfg.Defaults[kind] <= 0 {
			return fmt.Errorf("pricing.defaults.%s must be positive", kind)
		}
	}
	seen := make(map[string]struct{}, len(cfg.Models))
	for _, m := range cfg.Models {
		key := strings.ToLower(strings.TrimSpace(m.Key))
		if key == "" {
			return errors.New("pricing.models key cannot be empty")
		}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("pricing.models duplicate key %q", key)
		}
		seen[key] = struct{}{}
		if m.Base < 0 {
			return fmt.Errorf("pricing.models %q base cannot be negative", key)
		}
	}
	return nil
}
