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

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 3, cfg.Numbering.MaxRetries)
	assert.Equal(t, 20*time.Millisecond, cfg.Numbering.RetryBackoff)
	assert.Equal(t, 100, cfg.Search.MaxPageSize)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("NUMBERING_MAX_RETRIES", "5")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("ENABLE_CACHE", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("AUDIT_WORKERS", "-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Numbering.MaxRetries)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 2, cfg.Audit.Workers)
}
