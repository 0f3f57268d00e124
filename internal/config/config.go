// Package config loads app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DBDriver selects the database/sql driver: sqlite3 or pgx.
	DBDriver string `mapstructure:"AUDITLOG_DB_DRIVER"`
	// DatabaseURL is the DSN handed to the driver (a file path for sqlite3).
	DatabaseURL string `mapstructure:"AUDITLOG_DATABASE_URL"`
	// HTTPAddr is the address the read API listens on.
	HTTPAddr string `mapstructure:"AUDITLOG_HTTP_ADDR"`
	// LogLevel is the operational log level: debug, info, warn or error.
	LogLevel string `mapstructure:"AUDITLOG_LOG_LEVEL"`
	// LogFormat is json or text.
	LogFormat string `mapstructure:"AUDITLOG_LOG_FORMAT"`
	// GormLogLevel is gorm's own log level: silent, error, warn or info.
	GormLogLevel string `mapstructure:"AUDITLOG_GORM_LOG_LEVEL"`
	// AppendReturning captures DML without RETURNING on registered tables.
	AppendReturning bool `mapstructure:"AUDITLOG_APPEND_RETURNING"`
	// RedactKeys is a comma-separated list of snapshot and form keys to mask.
	RedactKeys string `mapstructure:"AUDITLOG_REDACT_KEYS"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Env vars override .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to load .env: %w", err)
	}
	return FromViper(viper.New())
}

// FromViper builds Config from v with defaults applied.
func FromViper(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()

	v.SetDefault("AUDITLOG_DB_DRIVER", DriverSQLite)
	v.SetDefault("AUDITLOG_DATABASE_URL", "auditlog.db")
	v.SetDefault("AUDITLOG_HTTP_ADDR", ":8080")
	v.SetDefault("AUDITLOG_LOG_LEVEL", "info")
	v.SetDefault("AUDITLOG_LOG_FORMAT", "json")
	v.SetDefault("AUDITLOG_GORM_LOG_LEVEL", "warn")
	v.SetDefault("AUDITLOG_APPEND_RETURNING", false)
	v.SetDefault("AUDITLOG_REDACT_KEYS", "password,token,secret")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields Load cannot default.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("config: AUDITLOG_DB_DRIVER must be %s or %s, got %q", DriverSQLite, DriverPostgres, c.DBDriver)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("config: AUDITLOG_DATABASE_URL must be set")
	}
	if c.HTTPAddr == "" {
		return errors.New("config: AUDITLOG_HTTP_ADDR must be set")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("config: AUDITLOG_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// SlogLevel parses LogLevel. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// RedactKeyList returns the redacted keys from the comma-separated config.
func (c *Config) RedactKeyList() []string {
	if c == nil || c.RedactKeys == "" {
		return nil
	}
	parts := strings.Split(c.RedactKeys, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
