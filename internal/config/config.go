// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :3001).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTSecret is the HS256 signing secret; required to run the server.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// SessionTTL is the session and token lifetime (e.g. "24h").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// MaxSessionsPerUser caps concurrent live sessions per user; default 3.
	MaxSessionsPerUser int `mapstructure:"MAX_SESSIONS_PER_USER"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// ClientURL is the allowed CORS origin for the SPA client.
	ClientURL string `mapstructure:"CLIENT_URL"`
	// Env is the application environment (e.g. "development", "production").
	// Cookies are marked Secure when Env is production.
	Env string `mapstructure:"APP_ENV"`
	// LoginRateLimit is the per-IP request limit per minute on /api/auth routes.
	LoginRateLimit int `mapstructure:"LOGIN_RATE_LIMIT"`
	// GeneralRateLimit is the per-IP request limit per minute across all routes.
	GeneralRateLimit int `mapstructure:"GENERAL_RATE_LIMIT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3001")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("MAX_SESSIONS_PER_USER", 3)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("CLIENT_URL", "http://localhost:5173")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOGIN_RATE_LIMIT", 5)
	v.SetDefault("GENERAL_RATE_LIMIT", 100)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.MaxSessionsPerUser <= 0 {
		cfg.MaxSessionsPerUser = 3
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.LoginRateLimit <= 0 {
		cfg.LoginRateLimit = 5
	}
	if cfg.GeneralRateLimit <= 0 {
		cfg.GeneralRateLimit = 100
	}

	return &cfg, nil
}

// TTL parses SessionTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) TTL() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// Production reports whether the app runs in production mode.
func (c *Config) Production() bool {
	return c.Env == "production"
}
