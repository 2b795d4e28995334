// Package config loads runtime configuration from YAML files with
// environment-variable overrides and validates the result.
package config

import (
	"time"

	"github.com/qsmarket/market-bot/internal/database"
	"github.com/qsmarket/market-bot/pkg/logger"
	pkgredis "github.com/qsmarket/market-bot/pkg/redis"
)

// Config is the full runtime configuration of the bot.
type Config struct {
	AppEnv   string `mapstructure:"-"`
	HTTPPort string `mapstructure:"http_port" validate:"required"`

	Telegram Telegram        `mapstructure:"telegram" validate:"required"`
	Log      Log             `mapstructure:"log"`
	Sentry   Sentry          `mapstructure:"sentry"`
	Database database.Config `mapstructure:"database" validate:"required"`
	Redis    pkgredis.Config `mapstructure:"redis" validate:"required"`
	Session  Session         `mapstructure:"session"`
	Verify   Verify          `mapstructure:"verify"`
	Rates    Rates           `mapstructure:"rates"`
	I18n     I18n            `mapstructure:"i18n"`
	Paths    Paths           `mapstructure:"paths"`
}

// Telegram holds bot API settings.
type Telegram struct {
	Token       string        `mapstructure:"token" validate:"required"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// Log holds logging settings.
type Log struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Sentry holds error-reporting settings.
type Sentry struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// Session holds conversation-state lifetimes.
type Session struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// Verify holds code-delivery provider settings.
type Verify struct {
	SMSBaseURL string `mapstructure:"sms_base_url"`
	SMSAPIKey  string `mapstructure:"sms_api_key"`
	SMTPAddr   string `mapstructure:"smtp_addr"`
	SMTPHost   string `mapstructure:"smtp_host"`
	SMTPUser   string `mapstructure:"smtp_user"`
	SMTPPass   string `mapstructure:"smtp_pass"`
	SMTPFrom   string `mapstructure:"smtp_from"`
}

// Rates holds the market-rate provider settings. An empty URL disables the
// periodic refresh.
type Rates struct {
	URL      string        `mapstructure:"url"`
	Interval time.Duration `mapstructure:"interval"`
}

// I18n holds localization settings.
type I18n struct {
	Dir         string `mapstructure:"dir"`
	DefaultLang string `mapstructure:"default_lang"`
}

// Paths holds filesystem locations.
type Paths struct {
	Migrations string `mapstructure:"migrations"`
}

// LoggerOptions converts the log section into logger options.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:         c.Log.Level,
		FilePath:      c.Log.FilePath,
		MaxSizeMB:     c.Log.MaxSizeMB,
		MaxBackups:    c.Log.MaxBackups,
		MaxAgeDays:    c.Log.MaxAgeDays,
		SentryEnabled: c.Sentry.Enabled,
	}
}
