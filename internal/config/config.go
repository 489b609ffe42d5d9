// Package config provides application configuration management.
// It loads settings from environment variables and provides defaults for
// server mode, timeouts, and session settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Messenger Platform Configuration
	PageID      string // Facebook page ID the webhook serves
	PageToken   string // Page access token for the Send API
	VerifyToken string // Shared secret for webhook subscription verification

	// Wit.ai Configuration
	WitToken string // Server access token for the converse engine

	// Third-party API Credentials
	ForecastToken       string // forecast.io API token
	UntappdClientID     string // Untappd API client ID
	UntappdClientSecret string // Untappd API client secret

	// Upstream Base URLs (overridable for tests)
	MessengerBaseURL string
	WitBaseURL       string
	BreweryBaseURL   string
	UntappdBaseURL   string
	ForecastBaseURL  string

	// Metrics Authentication
	MetricsUsername string // Username for /metrics endpoint Basic Auth (default: "prometheus")
	MetricsPassword string // Password for /metrics endpoint Basic Auth (empty = no auth)

	// Error Reporting
	SentryDSN         string // Sentry DSN (empty = disabled)
	SentryEnvironment string // Deployment environment label

	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Session Configuration
	DataDir    string        // Data directory for the SQLite session store
	SessionTTL time.Duration // Idle expiry for stored sessions (default: 24h)

	// Bot Configuration (embedded)
	Bot BotConfig
}

// BotConfig holds bot-specific configuration
type BotConfig struct {
	// Timeouts
	TurnTimeout time.Duration // Timeout for one full conversation turn (NLU loop + actions)
	APITimeout  time.Duration // Timeout for a single upstream REST call

	// NLU Loop
	MaxSteps int // Maximum converse-loop steps per turn (default: 10)

	// Retries
	APIMaxRetries int // Maximum retries for upstream REST calls (default: 3)

	// Outbound Rate Limit (Token Bucket Algorithm)
	SendRateRPS   float64 // Outbound Send API calls per second (default: 25)
	SendRateBurst float64 // Burst capacity for outbound sends (default: 50)

	// Messenger API Constraints
	MaxMessageLength int // Send API text limit; longer messages are split (default: 320)
}

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		// Messenger Platform Configuration
		PageID:      getEnv("FB_PAGE_ID", ""),
		PageToken:   getEnv("FB_PAGE_TOKEN", ""),
		VerifyToken: getEnv("FB_VERIFY_TOKEN", ""),

		// Wit.ai Configuration
		WitToken: getEnv("WIT_TOKEN", ""),

		// Third-party API Credentials
		ForecastToken:       getEnv("FORECAST_TOKEN", ""),
		UntappdClientID:     getEnv("UNTAPPD_CLIENT_ID", ""),
		UntappdClientSecret: getEnv("UNTAPPD_CLIENT_SECRET", ""),

		// Upstream Base URLs
		MessengerBaseURL: getEnv("MESSENGER_BASE_URL", "https://graph.facebook.com"),
		WitBaseURL:       getEnv("WIT_BASE_URL", "https://api.wit.ai"),
		BreweryBaseURL:   getEnv("BREWERY_BASE_URL", "http://apis.mondorobot.com"),
		UntappdBaseURL:   getEnv("UNTAPPD_BASE_URL", "https://api.untappd.com"),
		ForecastBaseURL:  getEnv("FORECAST_BASE_URL", "https://api.forecast.io"),

		// Metrics Authentication
		MetricsUsername: getEnv("METRICS_USERNAME", "prometheus"),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),

		// Error Reporting
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "production"),

		// Server Configuration
		Port:            getEnv("PORT", "8445"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		// Session Configuration
		DataDir:    getEnv("DATA_DIR", getDefaultDataDir()),
		SessionTTL: getDurationEnv("SESSION_TTL", 24*time.Hour),

		// Bot Configuration
		Bot: BotConfig{
			TurnTimeout:      getDurationEnv("TURN_TIMEOUT", TurnProcessing),
			APITimeout:       getDurationEnv("API_TIMEOUT", APIRequest),
			MaxSteps:         getIntEnv("WIT_MAX_STEPS", 10),
			APIMaxRetries:    getIntEnv("API_MAX_RETRIES", 3),
			SendRateRPS:      getFloatEnv("SEND_RATE_RPS", 25.0),
			SendRateBurst:    getFloatEnv("SEND_RATE_BURST", 50.0),
			MaxMessageLength: MessengerMaxTextLength,
		},
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set.
// The verify token is intentionally not required here: the verification
// endpoint rejects requests at call time when it is missing.
func (c *Config) Validate() error {
	var errs []error

	if c.PageID == "" {
		errs = append(errs, errors.New("FB_PAGE_ID is required"))
	}
	if c.PageToken == "" {
		errs = append(errs, errors.New("FB_PAGE_TOKEN is required"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR is required"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be positive, got %v", c.SessionTTL))
	}
	if err := c.Bot.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("bot config: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks bot-specific configuration values.
func (c *BotConfig) Validate() error {
	var errs []error

	if c.TurnTimeout <= 0 {
		errs = append(errs, fmt.Errorf("TURN_TIMEOUT must be positive, got %v", c.TurnTimeout))
	}
	if c.APITimeout <= 0 {
		errs = append(errs, fmt.Errorf("API_TIMEOUT must be positive, got %v", c.APITimeout))
	}
	if c.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("WIT_MAX_STEPS must be positive, got %d", c.MaxSteps))
	}
	if c.APIMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("API_MAX_RETRIES cannot be negative, got %d", c.APIMaxRetries))
	}
	if c.SendRateRPS <= 0 {
		errs = append(errs, fmt.Errorf("SEND_RATE_RPS must be positive, got %v", c.SendRateRPS))
	}
	if c.MaxMessageLength <= 1 {
		errs = append(errs, fmt.Errorf("max message length must exceed 1, got %d", c.MaxMessageLength))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HasWit returns true if the converse engine is configured.
func (c *Config) HasWit() bool {
	return c.WitToken != ""
}

// HasUntappd returns true if Untappd checkin lookups are configured.
func (c *Config) HasUntappd() bool {
	return c.UntappdClientID != "" && c.UntappdClientSecret != ""
}

// SQLitePath returns the full path to the SQLite session database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "sessions.db")
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}
