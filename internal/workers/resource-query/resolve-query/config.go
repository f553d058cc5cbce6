package resolvequery

import (
	"time"

	"catalog-assistant/internal/common/config"
)

type Config struct {
	AgentID        string
	RestyleEnabled bool
	RestyleTimeout time.Duration
	JobTimeout     time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	c := &Config{
		AgentID:        cfg.App.AgentID,
		RestyleEnabled: cfg.Pipeline.RestyleEnabled,
		RestyleTimeout: config.GetDuration(cfg.Pipeline.RestyleTimeoutMs),
		JobTimeout:     config.GetDuration(config.GetWorkerConfig(cfg, TaskType).Timeout),
	}
	if c.RestyleTimeout <= 0 {
		c.RestyleTimeout = 10 * time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	return c
}
