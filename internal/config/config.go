package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Port              string   `mapstructure:"PORT"`
	Env               string   `mapstructure:"ENV"`
	LogLevel          string   `mapstructure:"LOG_LEVEL"`
	StorageBackend    string   `mapstructure:"STORAGE_BACKEND"`
	RedisURL          string   `mapstructure:"REDIS_URL"`
	DatabaseURL       string   `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32    `mapstructure:"DB_MIN_CONNS"`
	StorageKeyPrefix  string   `mapstructure:"STORAGE_KEY_PREFIX"`
	PersistDebounceMS int      `mapstructure:"PERSIST_DEBOUNCE_MS"`
	StorageTimeoutMS  int      `mapstructure:"STORAGE_TIMEOUT_MS"`
	BodyLimit         string   `mapstructure:"BODY_LIMIT"`
	CORSOrigins       []string `mapstructure:"CORS_ORIGINS"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "STORAGE_BACKEND", "REDIS_URL", "DATABASE_URL",
	"DB_MAX_CONNS", "DB_MIN_CONNS", "STORAGE_KEY_PREFIX", "PERSIST_DEBOUNCE_MS",
	"STORAGE_TIMEOUT_MS", "BODY_LIMIT", "CORS_ORIGINS",
}

// Load reads configuration from the environment, falling back to an optional
// .env file in the working directory and then to defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE_BACKEND", BackendMemory)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("STORAGE_KEY_PREFIX", "goldcare:")
	v.SetDefault("PERSIST_DEBOUNCE_MS", 500)
	v.SetDefault("STORAGE_TIMEOUT_MS", 2000)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	} else {
		cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// PersistDelay is the debounce applied to draft writes.
func (c *Config) PersistDelay() time.Duration {
	return time.Duration(c.PersistDebounceMS) * time.Millisecond
}

// StorageTimeout bounds each storage call.
func (c *Config) StorageTimeout() time.Duration {
	return time.Duration(c.StorageTimeoutMS) * time.Millisecond
}

// Level parses LOG_LEVEL, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the selected storage backend has what it needs.
// Production refuses the in-memory backend since drafts would not survive a
// restart.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORAGE_BACKEND=memory is not allowed in production")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORAGE_BACKEND is %q", BackendRedis)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND is %q", BackendPostgres)
		}
		if c.DBMaxConns < 1 {
			return fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", c.DBMaxConns)
		}
		if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS (%d), got %d", c.DBMaxConns, c.DBMinConns)
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q, %q, or %q, got %q",
			BackendMemory, BackendRedis, BackendPostgres, c.StorageBackend)
	}

	if c.PersistDebounceMS < 0 {
		return fmt.Errorf("PERSIST_DEBOUNCE_MS must not be negative, got %d", c.PersistDebounceMS)
	}
	if c.StorageTimeoutMS <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT_MS must be positive, got %d", c.StorageTimeoutMS)
	}
	return nil
}
