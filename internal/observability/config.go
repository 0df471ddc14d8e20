package observability

import (
	"strings"

	"github.com/smallbiznis/millroll/internal/config"
)

// Config is the observability view of the process configuration. Plant is
// stamped on every log line and metric so several lines can share one
// collector.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Plant       string

	LogLevel  string
	LogFormat string

	OtelEnabled       bool
	OtelEndpoint      string
	OtelProtocol      string
	OtelSamplingRatio float64
}

func LoadConfig(cfg config.Config, plant *config.PlantConfigHolder) Config {
	out := Config{
		ServiceName:       strings.TrimSpace(cfg.AppName),
		Environment:       strings.TrimSpace(cfg.Environment),
		Version:           strings.TrimSpace(cfg.AppVersion),
		LogLevel:          cfg.LogLevel,
		LogFormat:         cfg.LogFormat,
		OtelEnabled:       cfg.OtelEnabled,
		OtelEndpoint:      strings.TrimSpace(cfg.OTLPEndpoint),
		OtelProtocol:      cfg.OTLPProtocol,
		OtelSamplingRatio: cfg.OtelSamplingRatio,
	}
	if out.ServiceName == "" {
		out.ServiceName = "millroll"
	}
	if plant != nil {
		out.Plant = plant.Get().Plant
	}
	return out
}

// Debug is true for debug logging or any non-shared environment.
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
