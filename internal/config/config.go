package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir     string        `mapstructure:"MIGRATIONS_DIR"`
	AppPassword       string        `mapstructure:"APP_PASSWORD"`
	SessionSigningKey string        `mapstructure:"SESSION_SIGNING_KEY"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	DueSoonDays       int           `mapstructure:"DUE_SOON_DAYS"`
	RegistryCacheSize int           `mapstructure:"REGISTRY_CACHE_SIZE"`
	RegistryCacheTTL  time.Duration `mapstructure:"REGISTRY_CACHE_TTL"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	UploadLimit       string        `mapstructure:"UPLOAD_LIMIT"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var keys = []string{
	"PORT",
	"ENV",
	"LOG_LEVEL",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"MIGRATIONS_DIR",
	"APP_PASSWORD",
	"SESSION_SIGNING_KEY",
	"SESSION_TTL",
	"CORS_ORIGINS",
	"DUE_SOON_DAYS",
	"REGISTRY_CACHE_SIZE",
	"REGISTRY_CACHE_TTL",
	"BODY_LIMIT",
	"UPLOAD_LIMIT",
	"REQUEST_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("DUE_SOON_DAYS", 7)
	v.SetDefault("REGISTRY_CACHE_SIZE", 128)
	v.SetDefault("REGISTRY_CACHE_TTL", "1m")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_LIMIT", "5M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	// Unmarshal only sees env vars that are bound explicitly.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.AppPassword == "" {
		log.Warn().Msg("APP_PASSWORD is not set; running in development mode with the session gate open")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// GateOpen reports whether requests skip the shared-password session gate.
// That only happens in development with no password configured.
func (c *Config) GateOpen() bool {
	return c.IsDev() && c.AppPassword == ""
}

// Validate checks that the configuration is safe to serve with. Outside
// development a shared password and a signing key of at least 32 bytes are
// required.
func (c *Config) Validate() error {
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.DueSoonDays < 0 {
		return fmt.Errorf("DUE_SOON_DAYS must not be negative, got %d", c.DueSoonDays)
	}
	if c.RegistryCacheTTL < 0 {
		return fmt.Errorf("REGISTRY_CACHE_TTL must not be negative, got %s", c.RegistryCacheTTL)
	}
	if c.GateOpen() {
		return nil
	}
	if c.AppPassword == "" {
		return fmt.Errorf("APP_PASSWORD is required when ENV=%q", c.Env)
	}
	if len(c.SessionSigningKey) < 32 {
		return fmt.Errorf("SESSION_SIGNING_KEY must be at least 32 bytes, got %d", len(c.SessionSigningKey))
	}
	return nil
}
