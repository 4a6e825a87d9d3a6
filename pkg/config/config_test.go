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
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 50, cfg.Import.YieldEvery)
	assert.Equal(t, 10, cfg.Import.ProgressEvery)
	assert.Equal(t, int64(20*1024*1024), cfg.Import.MaxUploadBytes)
	assert.Equal(t, time.Hour, cfg.Import.ResultTTL)
	assert.Equal(t, 1, cfg.Import.Workers)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadKeepsSingleImportWorker(t *testing.T) {
	t.Setenv("IMPORT_WORKERS", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Import.Workers)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("IMPORT_YIELD_EVERY", "5")
	t.Setenv("IMPORT_RESULT_TTL", "15m")
	t.Setenv("IMPORT_DEFAULT_ACADEMIC_YEAR", "2025/2026")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("REQUIRE_AUTH", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Import.YieldEvery)
	assert.Equal(t, 15*time.Minute, cfg.Import.ResultTTL)
	assert.Equal(t, "2025/2026", cfg.Import.DefaultAcademicYear)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.JWT.Required)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 2*time.Second, parseDuration("2s", time.Minute))
}
