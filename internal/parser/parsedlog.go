// Package parser implements the Parser capability: transformers from a raw
// ingest.LogLine to a uniform ParsedLog record.
package parser

import (
	"context"
	"time"

	"github.com/mdzesseis/logstream/internal/ingest"
)

// Level is a closed severity enumeration.
type Level int

const (
	// LevelNone means no level could be determined.
	LevelNone Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "none"
	}
}

// parseLevel decodes a level string case-insensitively. "warning" is an
// alias for Warn. Anything else, including empty, yields LevelNone and ok
// false, so an unknown value is treated the same as an absent one.
func parseLevel(raw string) (Level, bool) {
	switch lower(raw) {
	case "info":
		return LevelInfo, true
	case "error":
		return LevelError, true
	case "warn", "warning":
		return LevelWarn, true
	default:
		return LevelNone, false
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// ParsedLog is the uniform record produced by every Parser.
type ParsedLog struct {
	Timestamp time.Time
	Level     Level
	HasLevel  bool
	Message   string
	Metadata  map[string]interface{}
	Source    string
}

// Parser transforms a LogLine into a ParsedLog. Implementations must be
// stateless and safe for concurrent use. The registry selects among them by
// concrete type (a type assertion), not by Name.
type Parser interface {
	Parse(ctx context.Context, line ingest.LogLine) (ParsedLog, error)
	// Name identifies the concrete parser.
	Name() string
}
