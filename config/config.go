package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string
	HTTPAddr    string
	LogLevel    slog.Level
	SessionTTL  time.Duration
	EventBuffer int
}

var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// Load reads the configuration from the environment.
func Load() (Config, error) {
	return load(os.Getenv)
}

func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		slog.Error("loading configuration", "error", err)
		os.Exit(1)
	}
	return cfg
}

func load(getenv func(string) string) (Config, error) {
	cfg := Config{
		DatabaseURL: getenv("DATABASE_URL"),
		HTTPAddr:    getenv("HTTP_ADDR"),
		LogLevel:    slog.LevelInfo,
		SessionTTL:  7 * 24 * time.Hour,
		EventBuffer: 100,
	}
	if cfg.DatabaseURL == "" {
		return Config{}, ErrMissingDatabaseURL
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":5000"
	}

	if v := getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}

	if v := getenv("SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("SESSION_TTL: %w", err)
		}
		if ttl <= 0 {
			return Config{}, fmt.Errorf("SESSION_TTL must be positive, got %s", v)
		}
		cfg.SessionTTL = ttl
	}

	if v := getenv("EVENT_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("EVENT_BUFFER: %w", err)
		}
		if n < 1 {
			return Config{}, fmt.Errorf("EVENT_BUFFER must be at least 1, got %d", n)
		}
		cfg.EventBuffer = n
	}

	return cfg, nil
}
