package observability

import (
	"strings"

	"github.com/smallbiznis/genstudio/internal/config"
)

// Config is the slice of app config the logger, tracer and meter share.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "genstudio"
	}
	t := cfg.Telemetry
	return Config{
		ServiceName:          name,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             t.LogLevel,
		LogFormat:            t.LogFormat,
		OtelEnabled:          t.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: t.OtelProtocol,
		OtelSamplingRatio:    t.SamplingRatio,
	}
}

// Debug turns on development logging for debug level or a local environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
