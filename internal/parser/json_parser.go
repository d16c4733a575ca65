package parser

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mdzesseis/logstream/internal/ingest"
	apperrors "github.com/mdzesseis/logstream/pkg/errors"
)

// JsonParser decodes a LogLine whose content is a JSON object, promoting
// message/level/timestamp to ParsedLog fields and carrying everything else
// in Metadata. See spec §4.3.1.
type JsonParser struct{}

// NewJsonParser constructs a JsonParser.
func NewJsonParser() *JsonParser {
	return &JsonParser{}
}

// Name implements Parser.
func (p *JsonParser) Name() string {
	return "JsonParser"
}

// Parse implements Parser.
func (p *JsonParser) Parse(ctx context.Context, line ingest.LogLine) (ParsedLog, error) {
	normalized := normalizeJSON(line.Content)

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(normalized), &fields); err != nil {
		return ParsedLog{}, apperrors.LogFormatInvalid("json_parser", "parse", err.Error()).Wrap(err)
	}

	message := ""
	if v, ok := fields["message"].(string); ok {
		message = v
	}

	level, hasLevel := LevelNone, false
	if v, ok := fields["level"].(string); ok {
		level, hasLevel = parseLevel(v)
	}

	timestamp := line.Timestamp
	if v, ok := fields["timestamp"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			timestamp = parsed.UTC()
		}
	}

	metadata := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if k == "message" || k == "level" || k == "timestamp" {
			continue
		}
		metadata[k] = v
	}

	return ParsedLog{
		Timestamp: timestamp,
		Level:     level,
		HasLevel:  hasLevel,
		Message:   message,
		Metadata:  metadata,
		Source:    line.Source,
	}, nil
}

// normalizeJSON trims surrounding whitespace and strips embedded newlines
// and carriage returns so a pretty-printed payload reassembled by the
// framer parses the same as a single-line one.
func normalizeJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.ReplaceAll(trimmed, "\n", "")
	trimmed = strings.ReplaceAll(trimmed, "\r", "")
	return trimmed
}
