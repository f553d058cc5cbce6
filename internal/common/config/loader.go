package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml (plus config.<APP_ENVIRONMENT>.yaml), .env files
// and environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific yaml file.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	registerDefaults(v)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// registerDefaults makes every key known to viper so AutomaticEnv can override it.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "catalog-assistant")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.agent_id", "catalog")
	v.SetDefault("app.agent_name", "Catalog")
	v.SetDefault("app.http_addr", ":8080")
	v.SetDefault("app.shutdown_grace_ms", 10000)

	v.SetDefault("camunda.enabled", false)
	v.SetDefault("camunda.broker_address", "")

	v.SetDefault("database.postgres.driver", "postgres")
	v.SetDefault("database.postgres.dsn", "")
	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "")
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_connections", 10)
	v.SetDefault("database.postgres.max_idle", 5)

	v.SetDefault("database.redis.enabled", false)
	v.SetDefault("database.redis.address", "")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("database.elasticsearch.enabled", false)
	v.SetDefault("database.elasticsearch.addresses", []string{})
	v.SetDefault("database.elasticsearch.username", "")
	v.SetDefault("database.elasticsearch.password", "")
	v.SetDefault("database.elasticsearch.index", "resources")

	v.SetDefault("connection.max_attempts", 5)
	v.SetDefault("connection.retry_delay_ms", 5000)
	v.SetDefault("connection.probe_interval_ms", 60000)
	v.SetDefault("connection.statement_timeout_ms", 5000)
	v.SetDefault("connection.fail_fast_when_unhealthy", false)

	v.SetDefault("pipeline.extraction_timeout_ms", 5000)
	v.SetDefault("pipeline.extraction_cache_ttl_ms", 600000)
	v.SetDefault("pipeline.restyle_enabled", false)
	v.SetDefault("pipeline.restyle_timeout_ms", 8000)
	v.SetDefault("pipeline.suggest_timeout_ms", 2000)
	v.SetDefault("pipeline.memory_ttl_ms", 86400000)
	v.SetDefault("pipeline.memory_max_records", 200)

	v.SetDefault("apis.genai.provider", "none")
	v.SetDefault("apis.genai.base_url", "")
	v.SetDefault("apis.genai.api_key", "")
	v.SetDefault("apis.genai.timeout", 10000)
	v.SetDefault("apis.genai.max_retries", 1)
	v.SetDefault("apis.genai.small_model", "gemini-2.0-flash-lite")
	v.SetDefault("apis.genai.large_model", "gemini-2.0-flash")
	v.SetDefault("apis.genai.breaker.max_failures", 5)
	v.SetDefault("apis.genai.breaker.open_timeout_ms", 30000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// loadEnvFile loads the first .env found near the working directory or the module root.
func loadEnvFile() string {
	candidates := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		candidates = append(candidates, filepath.Join(rootDir, ".env"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders left in yaml string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from their conventional variable names.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.DSN == "" {
		if val := os.Getenv("DATABASE_URL"); val != "" {
			cfg.Database.Postgres.DSN = val
		}
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.APIs.GenAI.APIKey == "" {
		if val := os.Getenv("GENAI_API_KEY"); val != "" {
			cfg.APIs.GenAI.APIKey = val
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Postgres.Driver == "" {
		cfg.Database.Postgres.Driver = "postgres"
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Connection.MaxAttempts <= 0 {
		cfg.Connection.MaxAttempts = 5
	}
	if cfg.Connection.StatementTimeoutMs <= 0 {
		cfg.Connection.StatementTimeoutMs = 5000
	}
	if cfg.Connection.ProbeIntervalMs <= 0 {
		cfg.Connection.ProbeIntervalMs = 60000
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "resources"
	}
	if cfg.Pipeline.MemoryMaxRecords <= 0 {
		cfg.Pipeline.MemoryMaxRecords = 200
	}

	if cfg.Workers == nil {
		cfg.Workers = make(map[string]WorkerConfig)
	}
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func validateConfig(cfg *Config) error {
	pg := cfg.Database.Postgres
	if pg.DSN == "" {
		if pg.Host == "" {
			return fmt.Errorf("database.postgres.host or dsn is required")
		}
		if pg.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if pg.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	}
	switch pg.Driver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("database.postgres.driver must be postgres or pgx, got %q", pg.Driver)
	}

	if cfg.Database.Redis.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when redis is enabled")
	}
	if cfg.Database.Elasticsearch.Enabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required when elasticsearch is enabled")
	}
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}

	switch cfg.APIs.GenAI.Provider {
	case "", "none":
	case "http":
		if cfg.APIs.GenAI.BaseURL == "" {
			return fmt.Errorf("apis.genai.base_url is required for the http provider")
		}
	case "gemini":
		if cfg.APIs.GenAI.APIKey == "" {
			return fmt.Errorf("apis.genai.api_key is required for the gemini provider")
		}
	default:
		return fmt.Errorf("apis.genai.provider must be http, gemini or none, got %q", cfg.APIs.GenAI.Provider)
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig returns the named worker's settings, or defaults when absent.
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       false,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}
