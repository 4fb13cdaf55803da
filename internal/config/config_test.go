package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "harvest.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Browser.NavTimeoutSecs)
	assert.Equal(t, 15, cfg.Browser.WaitTimeoutSecs)
	assert.Equal(t, "sources.yaml", cfg.Harvest.SourcesPath)
	assert.Equal(t, 2000, cfg.Harvest.RequestDelayMillis)
	assert.Equal(t, 2*time.Second, cfg.Harvest.RequestDelay())
	assert.Equal(t, 2, cfg.Harvest.MaxConcurrentSources)
	assert.False(t, cfg.Enrich.Enabled)
	assert.Equal(t, 25, cfg.Enrich.MaxLeads)
	assert.Equal(t, "https://api.contactly.io/v1", cfg.Contactly.BaseURL)
	assert.Empty(t, cfg.Proxy.Endpoints)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://harvest:pw@localhost/harvest
proxy:
  endpoints:
    - "10.0.0.1:3128"
    - "scraper:hunter2@10.0.0.2:3128"
harvest:
  request_delay_ms: 500
  max_concurrent_sources: 4
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Len(t, cfg.Proxy.Endpoints, 2)
	assert.Equal(t, 500, cfg.Harvest.RequestDelayMillis)
	assert.Equal(t, 4, cfg.Harvest.MaxConcurrentSources)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, "sources.yaml", cfg.Harvest.SourcesPath)
	assert.Equal(t, 30, cfg.Browser.NavTimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	t.Setenv("HARVEST_LOG_LEVEL", "warn")
	t.Setenv("HARVEST_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chTempDir(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [not a map"), 0644))

	_, err := Load()
	require.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "not-a-level"})
	require.Error(t, err)
}
