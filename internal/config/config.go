package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"feeledger/internal/core"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Storage
	DataBackend          string
	SQLiteDBPath         string
	PostgresDSN          string
	PostgresMaxIdleConns int
	PostgresMaxOpenConns int

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	GoogleSpreadsheetID string
	GoogleSheetName     string
	SheetsResyncOnStart bool

	// Admin tokens
	JWTSecret string
	JWTTTL    time.Duration

	// Ledger
	Classes          []string
	StrictPayments   bool
	BillingCron      string
	BillingScheme    string
	ScheduleCacheTTL time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		DataBackend:          getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath:         getEnv("SQLITE_DB_PATH", "./data/feeledger.db"),
		PostgresDSN:          getEnv("POSTGRES_DSN", ""),
		PostgresMaxIdleConns: getEnvInt("POSTGRES_MAX_IDLE_CONNS", 10),
		PostgresMaxOpenConns: getEnvInt("POSTGRES_MAX_OPEN_CONNS", 100),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "feeledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Fees"),
		SheetsResyncOnStart: getEnvBool("SHEETS_RESYNC_ON_START", false),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    getEnvDuration("JWT_TTL", 12*time.Hour),

		Classes:          getEnvList("LEDGER_CLASSES", core.DefaultClasses),
		StrictPayments:   getEnvBool("LEDGER_STRICT_PAYMENTS", false),
		BillingCron:      getEnv("BILLING_CRON", "0 6 1 * *"),
		BillingScheme:    getEnv("BILLING_SCHEME", string(core.SchemeCalendar)),
		ScheduleCacheTTL: getEnvDuration("SCHEDULE_CACHE_TTL", 5*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate reports every invalid setting shared by all processes at once.
func (c *Config) Validate() error {
	return report(c.problems())
}

// ValidateServer adds the settings only the HTTP API needs.
func (c *Config) ValidateServer() error {
	errors := c.problems()
	if len(c.JWTSecret) < 16 {
		errors = append(errors, "JWT_SECRET must be at least 16 characters")
	}
	if c.JWTTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid JWT TTL %v: must be at least 1 minute", c.JWTTTL))
	}
	return report(errors)
}

func report(errors []string) error {
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) problems() []string {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	validBackends := []string{"memory", "sqlite", "postgres"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case "postgres":
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		}
		if c.PostgresMaxOpenConns < 1 {
			errors = append(errors, fmt.Sprintf("invalid postgres max open connections %d: must be at least 1", c.PostgresMaxOpenConns))
		}
		if c.PostgresMaxIdleConns < 0 || c.PostgresMaxIdleConns > c.PostgresMaxOpenConns {
			errors = append(errors, fmt.Sprintf("invalid postgres max idle connections %d: must be between 0 and %d", c.PostgresMaxIdleConns, c.PostgresMaxOpenConns))
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

	if c.GoogleSpreadsheetID != "" && c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when GOOGLE_SPREADSHEET_ID is set")
	}

	if len(c.Classes) == 0 {
		errors = append(errors, "LEDGER_CLASSES must list at least one class")
	}

	if _, err := cron.ParseStandard(c.BillingCron); err != nil {
		errors = append(errors, fmt.Sprintf("invalid billing cron '%s': %v", c.BillingCron, err))
	}

	if _, err := core.ParseScheme(c.BillingScheme); err != nil {
		errors = append(errors, fmt.Sprintf("invalid billing scheme '%s': must be 'calendar' or 'academic'", c.BillingScheme))
	}

	if c.ScheduleCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid schedule cache TTL %v: must not be negative", c.ScheduleCacheTTL))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	return errors
}

// ClassSet returns the configured class names as a lookup set.
func (c *Config) ClassSet() core.ClassSet {
	return append(core.ClassSet(nil), c.Classes...)
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
