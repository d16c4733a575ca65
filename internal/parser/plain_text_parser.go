package parser

import (
	"context"
	"time"

	"github.com/mdzesseis/logstream/internal/ingest"
)

// PlainTextParser always succeeds: the line's content becomes the message
// verbatim, with no level and no metadata. See spec §4.3.2.
type PlainTextParser struct{}

// NewPlainTextParser constructs a PlainTextParser.
func NewPlainTextParser() *PlainTextParser {
	return &PlainTextParser{}
}

// Name implements Parser.
func (p *PlainTextParser) Name() string {
	return "PlainTextParser"
}

// Parse implements Parser.
func (p *PlainTextParser) Parse(ctx context.Context, line ingest.LogLine) (ParsedLog, error) {
	return ParsedLog{
		Timestamp: time.Now().UTC(),
		Level:     LevelNone,
		HasLevel:  false,
		Message:   line.Content,
		Metadata:  map[string]interface{}{},
		Source:    line.Source,
	}, nil
}
