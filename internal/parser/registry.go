package parser

import (
	"context"
	"encoding/json"

	"github.com/mdzesseis/logstream/internal/ingest"
	apperrors "github.com/mdzesseis/logstream/pkg/errors"
)

// ParserRegistry selects among registered parsers by sniffing whether a
// LogLine's content decodes as a JSON value, then dispatching to the first
// registered parser of the matching concrete type. It is itself a Parser,
// so an Engine never needs to know the registry exists. See spec §4.4.
type ParserRegistry struct {
	parsers []Parser
}

// NewParserRegistry creates an empty registry.
func NewParserRegistry() *ParserRegistry {
	return &ParserRegistry{}
}

// Register adds p to the registry. Order matters only among parsers of the
// same concrete type, where the first one registered wins.
func (r *ParserRegistry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// Name implements Parser.
func (r *ParserRegistry) Name() string {
	return "ParserRegistry"
}

// Parse implements Parser.
func (r *ParserRegistry) Parse(ctx context.Context, line ingest.LogLine) (ParsedLog, error) {
	if json.Valid([]byte(line.Content)) {
		for _, p := range r.parsers {
			if _, ok := p.(*JsonParser); ok {
				return p.Parse(ctx, line)
			}
		}
		return ParsedLog{}, apperrors.ParserNotFound("parser_registry", "parse")
	}

	for _, p := range r.parsers {
		if _, ok := p.(*PlainTextParser); ok {
			return p.Parse(ctx, line)
		}
	}
	return ParsedLog{}, apperrors.ParserNotFound("parser_registry", "parse")
}
