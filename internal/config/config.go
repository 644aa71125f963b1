package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Port        string   `toml:"port"`
	DBPath      string   `toml:"db_path"`
	DBRemoteURL string   `toml:"db_remote_url"`
	Workers     int      `toml:"workers"`
	LogLevel    string   `toml:"log_level"`
	LogFormat   string   `toml:"log_format"` // "text" or "json"
	CORSOrigins []string `toml:"cors_origins"`

	Refresh RefreshConfig `toml:"refresh"`
}

type RefreshConfig struct {
	Interval   string `toml:"interval"` // Go duration; empty or "0" disables the scheduler
	ScannerURL string `toml:"scanner_url"`
	PageSize   int    `toml:"page_size"`
	RateLimit  int    `toml:"rate_limit"` // upstream requests per second
	Timeout    string `toml:"timeout"`
}

// IntervalDuration returns the scheduler interval, zero when disabled.
func (r RefreshConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(r.Interval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// TimeoutDuration returns the upstream HTTP timeout, 20s by default.
func (r RefreshConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(r.Timeout)
	if err != nil || d <= 0 {
		return 20 * time.Second
	}
	return d
}

func Default() Config {
	return Config{
		Port:        "8080",
		DBPath:      "stocks_morocco.db",
		Workers:     2,
		LogLevel:    "info",
		LogFormat:   "text",
		CORSOrigins: []string{"*"},
		Refresh: RefreshConfig{
			Interval:   "0",
			ScannerURL: "https://scanner.tradingview.com/morocco/scan",
			PageSize:   150,
			RateLimit:  2,
			Timeout:    "20s",
		},
	}
}

// Load builds the configuration from defaults, then the optional TOML file at
// path, then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is an operator-supplied flag
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.DBRemoteURL = getEnv("DB_REMOTE_URL", c.DBRemoteURL)
	c.Workers = getEnvInt("WORKERS", c.Workers)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.Refresh.Interval = getEnv("REFRESH_INTERVAL", c.Refresh.Interval)
	c.Refresh.ScannerURL = getEnv("SCANNER_URL", c.Refresh.ScannerURL)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.Refresh.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("refresh.page_size must be positive, got %d", c.Refresh.PageSize))
	}
	if c.Refresh.Interval != "" {
		if _, err := time.ParseDuration(c.Refresh.Interval); err != nil {
			errs = append(errs, fmt.Errorf("refresh.interval: %w", err))
		}
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
