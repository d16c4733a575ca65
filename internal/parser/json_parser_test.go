package parser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdzesseis/logstream/internal/ingest"
	apperrors "github.com/mdzesseis/logstream/pkg/errors"
)

func TestJsonParser_Parse(t *testing.T) {
	p := NewJsonParser()

	t.Run("round trip removes promoted keys from metadata", func(t *testing.T) {
		line := ingest.LogLine{
			Content: `{
				"message": "This is a test logging info",
				"level": "info",
				"tags": "dev",
				"username": "Prashant",
				"timestamp": "2024-03-15T10:00:00Z"
			}`,
			Source:    "test",
			Timestamp: time.Now().UTC(),
		}

		res, err := p.Parse(context.Background(), line)
		require.NoError(t, err)

		assert.Equal(t, "This is a test logging info", res.Message)
		assert.True(t, res.HasLevel)
		assert.Equal(t, LevelInfo, res.Level)
		assert.Equal(t, "dev", res.Metadata["tags"])
		assert.Equal(t, "Prashant", res.Metadata["username"])
		assert.NotContains(t, res.Metadata, "message")
		assert.NotContains(t, res.Metadata, "level")
		assert.NotContains(t, res.Metadata, "timestamp")
		assert.Equal(t, 2024, res.Timestamp.Year())
	})

	t.Run("unparseable timestamp falls back to log line timestamp", func(t *testing.T) {
		fallback := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		line := ingest.LogLine{
			Content:   `{"message":"x","timestamp":"not-a-timestamp"}`,
			Timestamp: fallback,
		}

		res, err := p.Parse(context.Background(), line)
		require.NoError(t, err)
		assert.Equal(t, fallback, res.Timestamp)
	})

	t.Run("unknown level string yields absent level", func(t *testing.T) {
		line := ingest.LogLine{Content: `{"message":"x","level":"bogus"}`}
		res, err := p.Parse(context.Background(), line)
		require.NoError(t, err)
		assert.False(t, res.HasLevel)
	})

	t.Run("level decoding is case insensitive and maps warning to warn", func(t *testing.T) {
		res, err := p.Parse(context.Background(), ingest.LogLine{Content: `{"message":"x","level":"WARNING"}`})
		require.NoError(t, err)
		assert.True(t, res.HasLevel)
		assert.Equal(t, LevelWarn, res.Level)
	})

	t.Run("missing message defaults to empty string", func(t *testing.T) {
		res, err := p.Parse(context.Background(), ingest.LogLine{Content: `{"level":"error"}`})
		require.NoError(t, err)
		assert.Equal(t, "", res.Message)
	})

	t.Run("invalid json fails with LogFormatInvalid", func(t *testing.T) {
		_, err := p.Parse(context.Background(), ingest.LogLine{Content: `not json`})
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeLogFormatInvalid))
	})

	t.Run("multi line payload reassembled by the framer normalizes the same", func(t *testing.T) {
		res, err := p.Parse(context.Background(), ingest.LogLine{
			Content: "{\n  \"message\": \"m\",\n  \"level\": \"warn\"\n}",
		})
		require.NoError(t, err)
		assert.Equal(t, "m", res.Message)
		assert.Equal(t, LevelWarn, res.Level)
	})
}
