package scheduler

import (
	"time"

	"github.com/smallbiznis/genstudio/internal/config"
	"github.com/smallbiznis/genstudio/internal/provider/httpclient"
	"github.com/smallbiznis/genstudio/pkg/media"
)

// Config controls poller intervals, batch sizes and staleness windows.
// pendingGrace covers the commit and bookkeeping around a dispatch.
const pendingGrace = 30 * time.Second

type Config struct {
	RunInterval     time.Duration
	BatchSize       int
	PollConcurrency int
	JobTimeout      time.Duration
	PendingTimeout  time.Duration
	// DispatchBudget is the longest a provider submit may run. Pending jobs
	// younger than that are never swept.
	DispatchBudget time.Duration
	StaleAfter      map[media.Kind]time.Duration
	LockTTL         time.Duration
	EnabledJobs     []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     5 * time.Second,
		BatchSize:       25,
		PollConcurrency: 5,
		JobTimeout:      30 * time.Second,
		PendingTimeout:  3 * time.Minute,
		StaleAfter: map[media.Kind]time.Duration{
			media.KindImage: 5 * time.Minute,
			media.KindAudio: 5 * time.Minute,
			media.KindMusic: 10 * time.Minute,
			media.KindVideo: 20 * time.Minute,
		},
		LockTTL: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PollConcurrency <= 0 {
		c.PollConcurrency = defaults.PollConcurrency
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.PendingTimeout <= 0 {
		c.PendingTimeout = defaults.PendingTimeout
	}
	if floor := c.DispatchBudget + pendingGrace; c.DispatchBudget > 0 && c.PendingTimeout < floor {
		c.PendingTimeout = floor
	}
	stale := make(map[media.Kind]time.Duration, len(defaults.StaleAfter))
	for kind, d := range defaults.StaleAfter {
		stale[kind] = d
	}
	for kind, d := range c.StaleAfter {
		if d > 0 {
			stale[kind] = d
		}
	}
	c.StaleAfter = stale
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	// The lock must outlive a full cycle or two instances overlap.
	if c.LockTTL < c.JobTimeout {
		c.LockTTL = 2 * c.JobTimeout
	}
	return c
}

// ProvideConfig maps the poller section of the app config.
func ProvideConfig(cfg config.Config) Config {
	p := cfg.Poller
	return Config{
		RunInterval:     p.RunInterval,
		BatchSize:       p.BatchSize,
		PollConcurrency: p.PollConcurrency,
		PendingTimeout:  p.PendingTimeout,
		DispatchBudget:  DispatchBudget(cfg.Providers),
		StaleAfter: map[media.Kind]time.Duration{
			media.KindImage: p.StaleImage,
			media.KindVideo: p.StaleVideo,
			media.KindAudio: p.StaleAudio,
			media.KindMusic: p.StaleMusic,
		},
		LockTTL: p.LockTTL,
	}
}

// DispatchBudget is the worst-case submit time across the configured providers.
func DispatchBudget(cfg config.ProvidersConfig) time.Duration {
	var budget time.Duration
	for _, pc := range []config.ProviderConfig{cfg.Kie, cfg.MiniMax, cfg.ElevenLabs} {
		d := httpclient.MaxDuration(httpclient.Config{
			Timeout:        pc.Timeout,
			MaxRetries:     pc.MaxRetries,
			RetryBaseDelay: pc.RetryBaseDelay,
		})
		if d > budget {
			budget = d
		}
	}
	return budget
}
