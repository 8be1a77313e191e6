package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	BackendGraph = "graph"
	BackendIMAP  = "imap"
)

// Config application configuration
type Config struct {
	// Database
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite3"` // "sqlite3" or "pgx"
	DatabasePath   string `env:"DATABASE_PATH" envDefault:"./data/mailhub.db"`
	DatabaseURL    string `env:"DATABASE_URL"` // Required for pgx

	// HTTP
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Scheduler
	Schedule    string        `env:"SCHEDULE" envDefault:"@every 1m"`
	SendTimeout time.Duration `env:"SEND_TIMEOUT" envDefault:"30s"`

	// Provider
	TokenURL     string        `env:"OAUTH_TOKEN_URL" envDefault:"https://login.microsoftonline.com/common/oauth2/v2.0/token"`
	GraphBaseURL string        `env:"GRAPH_BASE_URL" envDefault:"https://graph.microsoft.com/v1.0"`
	MailBackend  string        `env:"MAIL_BACKEND" envDefault:"graph"` // "graph" or "imap"
	IMAPServer   string        `env:"IMAP_SERVER" envDefault:"outlook.office365.com:993"`
	SMTPServer   string        `env:"SMTP_SERVER" envDefault:"smtp.office365.com:587"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"30s"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`

	// Public query rendering
	DisplayTimezone string `env:"DISPLAY_TIMEZONE" envDefault:"Asia/Shanghai"`

	// Telegram alerts (optional)
	TelegramToken       string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAlertChatID int64  `env:"TELEGRAM_ALERT_CHAT_ID"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"

	location *time.Location
}

// AlertsEnabled returns true if Telegram alerting is configured
func (c *Config) AlertsEnabled() bool {
	return c.TelegramToken != "" && c.TelegramAlertChatID != 0
}

// Location returns the timezone used for rendering timestamps
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for driver %s", c.DatabaseDriver)
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	switch c.MailBackend {
	case BackendGraph, BackendIMAP:
	default:
		return fmt.Errorf("unsupported MAIL_BACKEND %q", c.MailBackend)
	}

	if c.SendTimeout <= 0 || c.FetchTimeout <= 0 {
		return fmt.Errorf("SEND_TIMEOUT and FETCH_TIMEOUT must be positive")
	}

	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return fmt.Errorf("invalid DISPLAY_TIMEZONE %q: %w", c.DisplayTimezone, err)
	}
	c.location = loc
	return nil
}
