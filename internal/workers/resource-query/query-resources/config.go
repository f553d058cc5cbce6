package queryresources

import (
	"time"

	"catalog-assistant/internal/common/config"
)

const defaultStatementTimeout = 5 * time.Second

type Config struct {
	Timeout time.Duration
}

// LoadConfig takes the statement budget from connection.statement_timeout_ms.
func LoadConfig(c config.ConnectionConfig) *Config {
	timeout := config.GetDuration(c.StatementTimeoutMs)
	if timeout <= 0 {
		timeout = defaultStatementTimeout
	}
	return &Config{
		Timeout: timeout,
	}
}
