package extractparameters

import (
	"time"

	"catalog-assistant/internal/common/config"
)

type Config struct {
	Timeout  time.Duration
	CacheTTL time.Duration
}

func LoadConfig(p config.PipelineConfig) *Config {
	cfg := &Config{
		Timeout:  config.GetDuration(p.ExtractionTimeoutMs),
		CacheTTL: config.GetDuration(p.ExtractionCacheTTLMs),
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return cfg
}
