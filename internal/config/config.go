package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MimeLyc/cloudmaint/pkg/icron"
	"github.com/MimeLyc/cloudmaint/pkg/log"
)

// Config holds the process configuration.
// Values come from environment variables with defaults; the system settings
// that change behavior at runtime live in the settings file (see SystemSettings).
//
// Environment Variables:
// System:
// - DATA_DIR: Per-user data and the sqlite database (default: /app/data)
// - SERVER_ROOT: Root holding core/, lib/, apps/ and themes/ (default: /app/server)
// - SETTINGS_FILE: System settings JSON file (default: /app/config/settings.json)
// - LOG_LEVEL: debug, info, warn, error (default: info)
//
// HTTP:
// - HTTP_ADDR: Listen address (default: :8080)
// - HTTP_ENABLED: Serve the HTTP API (default: true)
//
// Jobs:
// - JOB_WORKERS: Background job workers (default: 1)
//
// Trash:
// - TRASH_CRON_EXPR: When to sweep every user's trash (default: 0 3 * * *)
type Config struct {
	System SystemConfig `json:"system"`
	HTTP   HTTPConfig   `json:"http"`
	Jobs   JobsConfig   `json:"jobs"`
	Trash  TrashConfig  `json:"trash"`
}

type SystemConfig struct {
	DataDir      string `json:"data_dir"`
	ServerRoot   string `json:"server_root"`
	SettingsFile string `json:"settings_file"`
	LogLevel     string `json:"log_level"`
}

type HTTPConfig struct {
	Addr    string `json:"addr"`
	Enabled bool   `json:"enabled"`
}

type JobsConfig struct {
	Workers int `json:"workers"`
}

type TrashConfig struct {
	CronExpr string `json:"cron_expr"`
}

func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "cloudmaint.db")
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithDataDir(dir string) Option {
	return func(c *Config) {
		c.System.DataDir = dir
	}
}

func WithServerRoot(root string) Option {
	return func(c *Config) {
		c.System.ServerRoot = root
	}
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		System: SystemConfig{
			DataDir:      getEnvString("DATA_DIR", "/app/data"),
			ServerRoot:   getEnvString("SERVER_ROOT", "/app/server"),
			SettingsFile: getEnvString("SETTINGS_FILE", DefaultSettingsFile),
			LogLevel:     getEnvString("LOG_LEVEL", "info"),
		},
		HTTP: HTTPConfig{
			Addr:    getEnvString("HTTP_ADDR", ":8080"),
			Enabled: getEnvBool("HTTP_ENABLED", true),
		},
		Jobs: JobsConfig{
			Workers: getEnvInt("JOB_WORKERS", 1),
		},
		Trash: TrashConfig{
			CronExpr: getEnvString("TRASH_CRON_EXPR", "0 3 * * *"),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %+v", config)
	return config, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.System.DataDir) == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if strings.TrimSpace(c.System.ServerRoot) == "" {
		return fmt.Errorf("SERVER_ROOT is required")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("JOB_WORKERS must be positive, got %d", c.Jobs.Workers)
	}
	if err := icron.Validate(c.Trash.CronExpr); err != nil {
		return fmt.Errorf("TRASH_CRON_EXPR: %w", err)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
