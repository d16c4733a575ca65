package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.OutputChannelCapacity)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 100, cfg.AnalyticsWindowSizeSeconds)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 50\nsources:\n  - type: file\n    path: /var/log/app.log\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.BatchSize)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "file", cfg.Sources[0].Type)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 50\n"), 0o644))

	t.Setenv("LOGSTREAM_BATCH_SIZE", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.BatchSize)
}

func TestValidate_RejectsUnknownSourceType(t *testing.T) {
	cfg := Default()
	cfg.Sources = []SourceConfig{{Type: "carrier-pigeon"}}
	assert.Error(t, Validate(cfg))
}

func TestValidate_RejectsNonPositiveBatchSize(t *testing.T) {
	cfg := Default()
	cfg.BatchSize = 0
	assert.Error(t, Validate(cfg))
}
