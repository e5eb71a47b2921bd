// Package config loads process configuration from environment variables and
// mirror configurations from YAML or TOML files.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

const secretKeyLen = 32

// Config holds the process configuration loaded from environment variables.
type Config struct {
	ListenAddr    string
	DBPath        string
	SecretKey     []byte // nil when GITMIRROR_SECRET_KEY is unset.
	SchedulerTick time.Duration
	CallTimeout   time.Duration
	LogLevel      slog.Level
	LogFormat     string // "text" or "json".
}

// HasSecretKey reports whether stored tokens can be encrypted.
func (c *Config) HasSecretKey() bool {
	return c.SecretKey != nil
}

// Load reads configuration from environment variables and returns a validated Config.
// Optional variables with defaults: GITMIRROR_LISTEN_ADDR (127.0.0.1:8080),
// GITMIRROR_DB_PATH (giteamirror.db), GITMIRROR_SCHEDULER_TICK (1m),
// GITMIRROR_CALL_TIMEOUT (60s), GITMIRROR_LOG_LEVEL (info), GITMIRROR_LOG_FORMAT (text).
// GITMIRROR_SECRET_KEY is a 32-byte key, hex or base64 encoded; without it
// configurations carrying tokens cannot be saved.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:    "127.0.0.1:8080",
		DBPath:        "giteamirror.db",
		SchedulerTick: time.Minute,
		CallTimeout:   60 * time.Second,
		LogLevel:      slog.LevelInfo,
		LogFormat:     "text",
	}

	if v, ok := os.LookupEnv("GITMIRROR_LISTEN_ADDR"); ok && v != "" {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("GITMIRROR_DB_PATH"); ok && v != "" {
		cfg.DBPath = v
	}

	var err error
	if cfg.SchedulerTick, err = durationEnv("GITMIRROR_SCHEDULER_TICK", cfg.SchedulerTick); err != nil {
		return nil, err
	}
	if cfg.CallTimeout, err = durationEnv("GITMIRROR_CALL_TIMEOUT", cfg.CallTimeout); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("GITMIRROR_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("GITMIRROR_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}
	if v, ok := os.LookupEnv("GITMIRROR_LOG_FORMAT"); ok && v != "" {
		v = strings.ToLower(v)
		if v != "text" && v != "json" {
			return nil, fmt.Errorf("GITMIRROR_LOG_FORMAT must be text or json, got %q", v)
		}
		cfg.LogFormat = v
	}

	if v, ok := os.LookupEnv("GITMIRROR_SECRET_KEY"); ok && v != "" {
		key, err := parseSecretKey(v)
		if err != nil {
			return nil, err
		}
		cfg.SecretKey = key
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

// parseSecretKey accepts 64 hex characters or standard base64 of 32 bytes.
func parseSecretKey(v string) ([]byte, error) {
	if key, err := hex.DecodeString(v); err == nil && len(key) == secretKeyLen {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(v); err == nil && len(key) == secretKeyLen {
		return key, nil
	}
	return nil, fmt.Errorf("GITMIRROR_SECRET_KEY must be %d bytes encoded as hex or base64", secretKeyLen)
}

// NewLogger builds the process logger from the configured level and format.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
