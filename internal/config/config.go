package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port      string
	StaticDir string

	// Database
	SQLiteDBPath string

	// Auth
	SessionSecret     string
	TokenTTL          time.Duration
	LoginMaxAttempts  int
	LoginLockDuration time.Duration
	AuthRateLimit     int
	APIRateLimit      int

	// Assistant
	GoogleAPIKey        string
	GeminiModel         string
	IntentConfidence    float64
	AutoRecordLimit     int
	AutoRecordWindow    time.Duration
	AssistantTimeout    time.Duration
	AssistantMaxRetries int

	// Response cache
	CacheTTL  time.Duration
	CacheSize int

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Export worker
	ExportBackend            string
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	ExportBatchSize          int
	ExportInterval           time.Duration

	// Reminder worker
	ReminderInterval  time.Duration
	ReminderAfterDays int
	ReminderEveryDays int
	ReminderMax       int

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8000"),
		StaticDir:    getEnv("STATIC_DIR", "./web/dist"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/djassa.db"),

		SessionSecret:     getEnv("SESSION_SECRET", ""),
		TokenTTL:          getEnvDuration("TOKEN_TTL", 7*24*time.Hour),
		LoginMaxAttempts:  getEnvInt("LOGIN_MAX_ATTEMPTS", 3),
		LoginLockDuration: getEnvDuration("LOGIN_LOCK_DURATION", 15*time.Minute),
		AuthRateLimit:     getEnvInt("AUTH_RATE_LIMIT", 5),
		APIRateLimit:      getEnvInt("API_RATE_LIMIT", 120),

		GoogleAPIKey:        getEnv("GOOGLE_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		IntentConfidence:    getEnvFloat("INTENT_CONFIDENCE_THRESHOLD", 0.8),
		AutoRecordLimit:     getEnvInt("AUTO_RECORD_LIMIT", 10),
		AutoRecordWindow:    getEnvDuration("AUTO_RECORD_WINDOW", 5*time.Minute),
		AssistantTimeout:    getEnvDuration("ASSISTANT_TIMEOUT", 30*time.Second),
		AssistantMaxRetries: getEnvInt("ASSISTANT_MAX_RETRIES", 2),

		CacheTTL:  getEnvDuration("CACHE_TTL", 30*time.Second),
		CacheSize: getEnvInt("CACHE_SIZE", 1000),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "djassa"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_entries"),

		ExportBackend:            getEnv("EXPORT_BACKEND", "memory"),
		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Journal"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		ExportBatchSize:          getEnvInt("EXPORT_BATCH_SIZE", 20),
		ExportInterval:           getEnvDuration("EXPORT_INTERVAL", time.Minute),

		ReminderInterval:  getEnvDuration("REMINDER_INTERVAL", time.Hour),
		ReminderAfterDays: getEnvInt("REMINDER_AFTER_DAYS", 15),
		ReminderEveryDays: getEnvInt("REMINDER_EVERY_DAYS", 7),
		ReminderMax:       getEnvInt("REMINDER_MAX", 3),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// AssistantEnabled reports whether a model API key is configured.
func (c *Config) AssistantEnabled() bool {
	return c.GoogleAPIKey != ""
}

// Validate checks the configuration and returns every problem found in one error.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}

	if len(c.SessionSecret) < 32 {
		errors = append(errors, "SESSION_SECRET must be at least 32 characters")
	}
	if c.TokenTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid token TTL %v: must be at least 1 minute", c.TokenTTL))
	}
	if c.LoginMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid login max attempts %d: must be at least 1", c.LoginMaxAttempts))
	}
	if c.AuthRateLimit < 1 || c.APIRateLimit < 1 {
		errors = append(errors, "rate limits must be at least 1 request per minute")
	}

	if c.IntentConfidence <= 0 || c.IntentConfidence > 1 {
		errors = append(errors, fmt.Sprintf("invalid intent confidence threshold %v: must be in (0, 1]", c.IntentConfidence))
	}
	if c.AutoRecordLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid auto record limit %d: must be at least 1", c.AutoRecordLimit))
	}
	if c.AutoRecordWindow < time.Second {
		errors = append(errors, fmt.Sprintf("invalid auto record window %v: must be at least 1 second", c.AutoRecordWindow))
	}

	if c.CacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be positive", c.CacheTTL))
	}
	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
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

	if !slices.Contains([]string{"text", "json"}, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateWorker checks the settings only the background workers need.
func (c *Config) ValidateWorker() error {
	var errors []string

	validBackends := []string{"memory", "sheets"}
	if !slices.Contains(validBackends, c.ExportBackend) {
		errors = append(errors, fmt.Sprintf("invalid export backend '%s': must be one of %v", c.ExportBackend, validBackends))
	}
	if c.ExportBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets backend")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.ExportBatchSize < 1 || c.ExportBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid export batch size %d: must be between 1 and 1000", c.ExportBatchSize))
	}
	if c.ExportInterval < time.Second || c.ReminderInterval < time.Second {
		errors = append(errors, "worker intervals must be at least 1 second")
	}
	if c.ReminderAfterDays < 1 || c.ReminderEveryDays < 1 || c.ReminderMax < 1 {
		errors = append(errors, "reminder settings must be at least 1")
	}

	if len(errors) > 0 {
		return fmt.Errorf("worker configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
