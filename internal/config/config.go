// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the routing gateway.
type Config struct {
	// Server
	Port     string
	LogLevel string

	// Management API
	AdminAPIKey string // Required for /api/v1 endpoints; empty = disabled (fail-secure)

	// Route endpoint
	RouteAPIKey string // Optional shared key for /v1/route; empty = open

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// Rate limiting (per caller, fixed window)
	RateLimitMax    int64
	RateLimitWindow time.Duration

	// Routing policy. The scoring weights are business policy, not a
	// structural invariant, so they stay overridable here.
	WeightQuality  float64
	WeightCost     float64
	WeightHealth   float64
	WeightPriority float64

	AttemptTimeout time.Duration // bound on each candidate call
	ProbeInterval  time.Duration // cadence of the background health probe

	// Provider API Keys (passed through, never stored)
	OpenAIKey    string
	AnthropicKey string
	GeminiKey    string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("GATEWAY_PORT", "8080"),
		LogLevel: getEnv("GATEWAY_LOG_LEVEL", "info"),

		AdminAPIKey: os.Getenv("GATEWAY_ADMIN_API_KEY"),
		RouteAPIKey: os.Getenv("GATEWAY_ROUTE_API_KEY"),

		DBHost:     getEnv("POSTGRES_HOST", "localhost"),
		DBName:     getEnv("POSTGRES_DB", "llmrouter"),
		DBUser:     getEnv("POSTGRES_USER", "router_user"),
		DBPassword: getEnv("POSTGRES_PASSWORD", ""),
		DBSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		GeminiKey:    os.Getenv("GOOGLE_API_KEY"),
	}

	dbPort, err := strconv.Atoi(getEnv("POSTGRES_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_PORT: %w", err)
	}
	cfg.DBPort = dbPort

	redisPort, err := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	cfg.RedisPort = redisPort

	cfg.RateLimitMax, err = getEnvInt64("GATEWAY_RATE_LIMIT_MAX", 120)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitWindow, err = getEnvDuration("GATEWAY_RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}

	cfg.WeightQuality, err = getEnvFloat("GATEWAY_WEIGHT_QUALITY", 0.4)
	if err != nil {
		return nil, err
	}
	cfg.WeightCost, err = getEnvFloat("GATEWAY_WEIGHT_COST", 0.3)
	if err != nil {
		return nil, err
	}
	cfg.WeightHealth, err = getEnvFloat("GATEWAY_WEIGHT_HEALTH", 0.2)
	if err != nil {
		return nil, err
	}
	cfg.WeightPriority, err = getEnvFloat("GATEWAY_WEIGHT_PRIORITY", 0.1)
	if err != nil {
		return nil, err
	}

	cfg.AttemptTimeout, err = getEnvDuration("GATEWAY_ATTEMPT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.ProbeInterval, err = getEnvDuration("GATEWAY_PROBE_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// RedactedDSN returns the DSN with the password masked for safe logging.
func (c *Config) RedactedDSN() string {
	return fmt.Sprintf("postgres://%s:***@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// RedisAddr returns the Redis address in host:port format.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
