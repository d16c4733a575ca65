// Package logging builds the structured logger shared by every component:
// JSON-formatted logrus output to stdout, optionally also rotated to disk
// via lumberjack.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures log rotation and verbosity.
type Config struct {
	// FilePath is where rotated log files are written. Empty disables file
	// output; logs still go to stdout.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      string
}

// DefaultConfig logs to stdout only, at info level.
func DefaultConfig() Config {
	return Config{MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28, Level: "info"}
}

// NewLogger builds a logrus.Logger per cfg. Output always includes stdout;
// when FilePath is set, output is duplicated to a rotated file as well.
func NewLogger(cfg Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.FilePath == "" {
		logger.SetOutput(os.Stdout)
		return logger
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return logger
}
