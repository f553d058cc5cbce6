package config

import "fmt"

// Config is the root application configuration.
type Config struct {
	App        AppConfig               `mapstructure:"app"`
	Camunda    CamundaConfig           `mapstructure:"camunda"`
	Database   DatabaseConfig          `mapstructure:"database"`
	Connection ConnectionConfig        `mapstructure:"connection"`
	Pipeline   PipelineConfig          `mapstructure:"pipeline"`
	Workers    map[string]WorkerConfig `mapstructure:"workers"`
	APIs       APIsConfig              `mapstructure:"apis"`
	Logging    LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name            string `mapstructure:"name"`
	Version         string `mapstructure:"version"`
	Environment     string `mapstructure:"environment"`
	AgentID         string `mapstructure:"agent_id"`
	AgentName       string `mapstructure:"agent_name"`
	HTTPAddr        string `mapstructure:"http_addr"`
	ShutdownGraceMs int    `mapstructure:"shutdown_grace_ms"`
}

type CamundaConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BrokerAddress string `mapstructure:"broker_address"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Driver         string `mapstructure:"driver"` // "postgres" (lib/pq) or "pgx"
	DSN            string `mapstructure:"dsn"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the explicit DSN when set, otherwise a key/value connection string.
func (p PostgresConfig) GetDSN() string {
	if p.DSN != "" {
		return p.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ConnectionConfig drives the store connection manager. Durations are milliseconds.
type ConnectionConfig struct {
	MaxAttempts           int  `mapstructure:"max_attempts"`
	RetryDelayMs          int  `mapstructure:"retry_delay_ms"`
	ProbeIntervalMs       int  `mapstructure:"probe_interval_ms"`
	StatementTimeoutMs    int  `mapstructure:"statement_timeout_ms"`
	FailFastWhenUnhealthy bool `mapstructure:"fail_fast_when_unhealthy"`
}

// PipelineConfig holds per-stage budgets for the query pipeline.
type PipelineConfig struct {
	ExtractionTimeoutMs  int  `mapstructure:"extraction_timeout_ms"`
	ExtractionCacheTTLMs int  `mapstructure:"extraction_cache_ttl_ms"`
	RestyleEnabled       bool `mapstructure:"restyle_enabled"`
	RestyleTimeoutMs     int  `mapstructure:"restyle_timeout_ms"`
	SuggestTimeoutMs     int  `mapstructure:"suggest_timeout_ms"`
	MemoryTTLMs          int  `mapstructure:"memory_ttl_ms"`
	MemoryMaxRecords     int  `mapstructure:"memory_max_records"`
}

// WorkerConfig holds the settings applicable to a Zeebe job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

// APIsConfig holds settings for the model capability.
type APIsConfig struct {
	GenAI GenAIConfig `mapstructure:"genai"`
}

type GenAIConfig struct {
	Provider   string        `mapstructure:"provider"` // "http", "gemini" or "none"
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    int           `mapstructure:"timeout"` // milliseconds
	MaxRetries int           `mapstructure:"max_retries"`
	SmallModel string        `mapstructure:"small_model"`
	LargeModel string        `mapstructure:"large_model"`
	Breaker    BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxFailures   int `mapstructure:"max_failures"`
	OpenTimeoutMs int `mapstructure:"open_timeout_ms"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
