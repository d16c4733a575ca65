// Package config loads pipeline configuration from a YAML file, layered
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	apperrors "github.com/mdzesseis/logstream/pkg/errors"
)

// SourceConfig describes one configured Source.
type SourceConfig struct {
	Type string `yaml:"type"` // "file" or "network"
	Path string `yaml:"path"` // file path, or directory when Watch is set
	Addr string `yaml:"addr"` // network address, host:port

	Follow bool `yaml:"follow"` // file sources only
	Watch  bool `yaml:"watch"`  // file sources only: watch Path as a directory
}

// Config is the top-level pipeline configuration.
type Config struct {
	OutputChannelCapacity      int    `yaml:"output_channel_capacity"`
	BatchSize                  int    `yaml:"batch_size"`
	AnalyticsWindowSizeSeconds int    `yaml:"analytics_window_size_seconds"`
	MetricsAddr                string `yaml:"metrics_addr"`

	Logging struct {
		FilePath   string `yaml:"file_path"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Level      string `yaml:"level"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	ResourceMonitor struct {
		Enabled       bool          `yaml:"enabled"`
		CheckInterval time.Duration `yaml:"check_interval"`
	} `yaml:"resource_monitor"`

	Sources []SourceConfig `yaml:"sources"`
}

// Default returns the spec's documented defaults.
func Default() *Config {
	c := &Config{
		OutputChannelCapacity:      100,
		BatchSize:                  100,
		AnalyticsWindowSizeSeconds: 100,
		MetricsAddr:                ":9090",
	}
	c.Logging.Level = "info"
	c.Logging.MaxSizeMB = 100
	c.Logging.MaxBackups = 3
	c.Logging.MaxAgeDays = 28
	c.Tracing.ServiceName = "logstream"
	c.Tracing.SampleRate = 1.0
	c.ResourceMonitor.CheckInterval = 10 * time.Second
	return c
}

// Load builds a Config from defaults, a YAML file (if path is non-empty),
// then environment variable overrides, in that order, and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, apperrors.Io("config", "load", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	cfg.OutputChannelCapacity = getEnvInt("LOGSTREAM_OUTPUT_CHANNEL_CAPACITY", cfg.OutputChannelCapacity)
	cfg.BatchSize = getEnvInt("LOGSTREAM_BATCH_SIZE", cfg.BatchSize)
	cfg.AnalyticsWindowSizeSeconds = getEnvInt("LOGSTREAM_ANALYTICS_WINDOW_SECONDS", cfg.AnalyticsWindowSizeSeconds)
	cfg.MetricsAddr = getEnvString("LOGSTREAM_METRICS_ADDR", cfg.MetricsAddr)
	cfg.Logging.Level = getEnvString("LOGSTREAM_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.FilePath = getEnvString("LOGSTREAM_LOG_FILE", cfg.Logging.FilePath)
	cfg.Tracing.Enabled = getEnvBool("LOGSTREAM_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.ResourceMonitor.Enabled = getEnvBool("LOGSTREAM_RESOURCEMON_ENABLED", cfg.ResourceMonitor.Enabled)
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// Validate rejects a configuration that would make the engine meaningless.
func Validate(cfg *Config) error {
	if cfg.OutputChannelCapacity <= 0 {
		return fmt.Errorf("output_channel_capacity must be positive, got %d", cfg.OutputChannelCapacity)
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.AnalyticsWindowSizeSeconds <= 0 {
		return fmt.Errorf("analytics_window_size_seconds must be positive, got %d", cfg.AnalyticsWindowSizeSeconds)
	}
	for i, source := range cfg.Sources {
		switch source.Type {
		case "file":
			if source.Path == "" {
				return fmt.Errorf("sources[%d]: file source requires path", i)
			}
		case "network":
			if source.Addr == "" {
				return fmt.Errorf("sources[%d]: network source requires addr", i)
			}
		default:
			return fmt.Errorf("sources[%d]: unknown type %q", i, source.Type)
		}
	}
	return nil
}
