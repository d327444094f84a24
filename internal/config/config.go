// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/log"
	"fintrack/internal/storage"
)

type Config struct {
	// HTTP Server
	Port               string
	ShutdownTimeout    time.Duration
	RateLimitPerMinute int
	TrustedProxies     []string
	LogLevel           string

	// Database
	DBDialect    string
	SQLiteDBPath string
	DatabaseURL  string

	// AMQP; events are disabled when AMQPURL is empty.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Language model; chat is disabled when LLMAPIKey is empty.
	LLMProvider string
	LLMAPIKey   string
	LLMModel    string
	LLMBaseURL  string
	LLMTimeout  time.Duration

	// Sessions and caches
	SessionTTL         time.Duration
	CategoryCacheSize  int
	CategoryCacheTTL   time.Duration
	RecentTransactions int

	// Google Sheets activity mirror
	GoogleSpreadsheetID      string
	GoogleActivitySheet      string
	GoogleProgressSheet      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	MirrorInterval           time.Duration
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),

		DBDialect:    getEnv("DB_DIALECT", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fintrack.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_activity"),

		LLMProvider: getEnv("LLM_PROVIDER", "openai"),
		LLMAPIKey:   getEnv("LLM_API_KEY", ""),
		LLMModel:    getEnv("LLM_MODEL", ""),
		LLMBaseURL:  getEnv("LLM_BASE_URL", ""),
		LLMTimeout:  getEnvDuration("LLM_TIMEOUT", 30*time.Second),

		SessionTTL:         getEnvDuration("SESSION_TTL", 30*24*time.Hour),
		CategoryCacheSize:  getEnvInt("CATEGORY_CACHE_SIZE", 256),
		CategoryCacheTTL:   getEnvDuration("CATEGORY_CACHE_TTL", 10*time.Minute),
		RecentTransactions: getEnvInt("SNAPSHOT_RECENT_TRANSACTIONS", 10),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleActivitySheet:      getEnv("GOOGLE_ACTIVITY_SHEET", "Activity"),
		GoogleProgressSheet:      getEnv("GOOGLE_PROGRESS_SHEET", "Progress"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
		MirrorInterval:           getEnvDuration("MIRROR_INTERVAL", 15*time.Minute),
	}
}

// Dialect returns the parsed database dialect.
func (c *Config) Dialect() (storage.Dialect, error) {
	return storage.ParseDialect(c.DBDialect)
}

// DSN returns the connection string for the configured dialect.
func (c *Config) DSN() string {
	if d, err := c.Dialect(); err == nil && d == storage.Postgres {
		return c.DatabaseURL
	}
	return c.SQLiteDBPath
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// ChatEnabled reports whether a language model is configured.
func (c *Config) ChatEnabled() bool {
	return c.LLMAPIKey != ""
}

// MirrorEnabled reports whether the Google Sheets mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.ShutdownTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	switch dialect, err := c.Dialect(); {
	case err != nil:
		errors = append(errors, fmt.Sprintf("invalid database dialect '%s': must be sqlite or postgres", c.DBDialect))
	case dialect == storage.SQLite && strings.TrimSpace(c.SQLiteDBPath) == "":
		errors = append(errors, "SQLite database path cannot be empty when using sqlite")
	case dialect == storage.Postgres:
		if u, err := url.Parse(c.DatabaseURL); c.DatabaseURL == "" || err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, "DATABASE_URL must be a postgres:// URL when using postgres")
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch strings.ToLower(c.LLMProvider) {
	case "openai", "gemini":
	default:
		errors = append(errors, fmt.Sprintf("invalid LLM provider '%s': must be openai or gemini", c.LLMProvider))
	}
	if c.LLMTimeout < time.Second || c.LLMTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid LLM timeout %v: must be between 1 second and 5 minutes", c.LLMTimeout))
	}
	if c.LLMBaseURL != "" {
		if u, err := url.Parse(c.LLMBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid LLM base URL '%s': must be http or https", c.LLMBaseURL))
		}
	}

	if c.SessionTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must not be negative", c.SessionTTL))
	}
	if c.CategoryCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid category cache size %d: must be at least 1", c.CategoryCacheSize))
	}
	if c.RecentTransactions < 0 || c.RecentTransactions > 100 {
		errors = append(errors, fmt.Sprintf("invalid recent transaction count %d: must be between 0 and 100", c.RecentTransactions))
	}

	if c.MirrorEnabled() {
		if c.GoogleActivitySheet == "" {
			errors = append(errors, "Google activity sheet name is required when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for the sheets mirror")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
		if c.MirrorInterval < time.Minute || c.MirrorInterval > 24*time.Hour {
			errors = append(errors, fmt.Sprintf("invalid mirror interval %v: must be between 1 minute and 24 hours", c.MirrorInterval))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
