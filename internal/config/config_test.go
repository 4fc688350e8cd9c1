package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.OverlapSize)
	assert.Equal(t, 100, cfg.EmbeddingBatchSize)
	assert.Equal(t, 3, cfg.EmbeddingMaxRetries)
	assert.Equal(t, 150, cfg.ParseMaxPollAttempts)
	assert.Equal(t, "token", cfg.Chunker)
	assert.False(t, cfg.S3Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CHUNKER", "sentence")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, "sentence", cfg.Chunker)
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{
		ParseTimeoutSec:      30,
		ParsePollIntervalSec: 2,
		EmbeddingBaseDelay:   1000,
	}
	assert.Equal(t, 30*time.Second, cfg.ParseTimeout())
	assert.Equal(t, 2*time.Second, cfg.ParsePollInterval())
	assert.Equal(t, time.Second, cfg.EmbeddingRetryBaseDelay())
}

func TestIsDevelopment(t *testing.T) {
	assert.True(t, (&Config{Environment: "development"}).IsDevelopment())
	assert.False(t, (&Config{Environment: "production"}).IsDevelopment())
}
