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

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const minSecretLength = 16

type Config struct {
	// HTTP Server
	Port string `env:"PORT" envDefault:"8081"`

	// Backend selection
	DataBackend  string `env:"DATA_BACKEND" envDefault:"sqlite"`
	SQLiteDBPath string `env:"SQLITE_DB_PATH" envDefault:"./data/deals.db"`

	// AMQP; publishing is disabled when AMQPURL is empty
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"deals"`
	AMQPQueue    string `env:"AMQP_QUEUE" envDefault:"sync_deals"`

	// Google Sheets mirror
	GoogleSpreadsheetID      string `env:"GOOGLE_SPREADSHEET_ID"`
	GoogleSheetName          string `env:"GOOGLE_DEALS_SHEET_NAME" envDefault:"Deals"`
	GoogleServiceAccountJSON string `env:"GOOGLE_SERVICE_ACCOUNT_JSON" json:"-"`
	GoogleServiceAccountFile string `env:"GOOGLE_SERVICE_ACCOUNT_FILE"`

	// Worker
	SyncBatchSize int    `env:"SYNC_BATCH_SIZE" envDefault:"10"`
	SyncSchedule  string `env:"SYNC_SCHEDULE" envDefault:"@every 30s"`

	// Sessions
	SessionSecret string        `env:"SESSION_SECRET" json:"-"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	CookieSecure  bool          `env:"COOKIE_SECURE" envDefault:"false"`
	AdminUsername string        `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword string        `env:"ADMIN_PASSWORD" json:"-"`

	// Observability
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"text"`
	MetricsAddr    string `env:"METRICS_ADDR" envDefault:":9090"`
	LoginRateLimit int    `env:"LOGIN_RATE_LIMIT" envDefault:"10"`
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	// ignore errors in production/docker where no .env exists
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("env.Parse: %w", err)
	}
	return cfg, nil
}

// AMQPEnabled reports whether deal changes are published for the mirror.
func (c Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL and names if AMQP is configured
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

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	// Validate worker configuration
	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}
	if _, err := cron.ParseStandard(c.SyncSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid sync schedule '%s': %v", c.SyncSchedule, err))
	}

	// Validate sessions
	if len(c.SessionSecret) < minSecretLength {
		errors = append(errors, fmt.Sprintf("session secret must be at least %d characters", minSecretLength))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.AdminPassword != "" && strings.TrimSpace(c.AdminUsername) == "" {
		errors = append(errors, "admin username cannot be empty when ADMIN_PASSWORD is set")
	}

	// Validate observability
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}
	if c.LoginRateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid login rate limit %d: must be at least 1", c.LoginRateLimit))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}
