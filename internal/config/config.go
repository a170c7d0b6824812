package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Server   ServerConfig
	Agent    AgentConfig
	Slack    SlackConfig
	Catalog  CatalogConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Secret     string //nolint:gosec // G117: JWT signing secret config
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// AgentConfig holds agent service connection settings.
type AgentConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SlackConfig holds the operational alerting settings.
type SlackConfig struct {
	BotToken     string
	AlertChannel string
}

// CatalogConfig holds product catalog cache settings.
type CatalogConfig struct {
	CacheTTL time.Duration
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("RFPFLOW_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("RFPFLOW_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("RFPFLOW_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	accessTTL, err := getEnvDuration("RFPFLOW_JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	refreshTTL, err := getEnvDuration("RFPFLOW_JWT_REFRESH_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("RFPFLOW_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("RFPFLOW_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	agentTimeout, err := getEnvDuration("RFPFLOW_AGENT_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	catalogTTL, err := getEnvDuration("RFPFLOW_CATALOG_CACHE_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("RFPFLOW_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("RFPFLOW_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("RFPFLOW_DB_USER", "rfpflow"),
			Password: getEnv("RFPFLOW_DB_PASSWORD", ""),
			DBName:   getEnv("RFPFLOW_DB_NAME", "rfpflow_dev"),
			SSLMode:  getEnv("RFPFLOW_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("RFPFLOW_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("RFPFLOW_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:     getEnv("RFPFLOW_JWT_SECRET", ""),
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
		},
		Server: ServerConfig{
			Addr:         getEnv("RFPFLOW_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Agent: AgentConfig{
			BaseURL: getEnv("RFPFLOW_AGENT_BASE_URL", "http://localhost:8100"),
			Timeout: agentTimeout,
		},
		Slack: SlackConfig{
			BotToken:     getEnv("RFPFLOW_SLACK_BOT_TOKEN", ""),
			AlertChannel: getEnv("RFPFLOW_SLACK_ALERT_CHANNEL", ""),
		},
		Catalog: CatalogConfig{
			CacheTTL: catalogTTL,
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("RFPFLOW_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("RFPFLOW_JWT_SECRET must be at least 32 characters")
	}

	if c.Database.SSLMode == "disable" {
		log.Warn().Msg("RFPFLOW_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("RFPFLOW_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("RFPFLOW_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("RFPFLOW_JWT_ACCESS_TTL must be positive, got %s", c.JWT.AccessTTL)
	}
	if c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("RFPFLOW_JWT_REFRESH_TTL must be positive, got %s", c.JWT.RefreshTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("RFPFLOW_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("RFPFLOW_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Agent.BaseURL == "" {
		return errors.New("RFPFLOW_AGENT_BASE_URL is required")
	}
	if c.Agent.Timeout <= 0 {
		return fmt.Errorf("RFPFLOW_AGENT_TIMEOUT must be positive, got %s", c.Agent.Timeout)
	}
	if c.Slack.BotToken != "" && c.Slack.AlertChannel == "" {
		return errors.New("RFPFLOW_SLACK_ALERT_CHANNEL is required when RFPFLOW_SLACK_BOT_TOKEN is set")
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
