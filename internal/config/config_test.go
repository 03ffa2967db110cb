package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.Rasters.DataDir)
	assert.Empty(t, cfg.Rasters.Catalog)
	assert.InDelta(t, 10000, cfg.Classify.NDVIScale, 0.001)
	assert.InDelta(t, 0.2, cfg.Classify.EarlyMax, 0.001)
	assert.InDelta(t, 0.5, cfg.Classify.ActiveMax, 0.001)
	assert.False(t, cfg.Classify.NeighborFallback)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 20, cfg.Server.RateLimit, 0.001)
	assert.Equal(t, 40, cfg.Server.Burst)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, 300, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	for _, mode := range []string{ModeServe, ModeSample, ModeBatch, ModeLayers} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
rasters:
  catalog: layers.yaml
classify:
  ndvi_scale: 1
  early_max: 0.3
  active_max: 0.6
  neighbor_fallback: true
store:
  driver: sqlite
  database_url: history.db
log:
  level: debug
  format: console
server:
  port: 9090
  allowed_origins:
    - https://map.example.org
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "layers.yaml", cfg.Rasters.Catalog)
	assert.InDelta(t, 1, cfg.Classify.NDVIScale, 0.001)
	assert.InDelta(t, 0.3, cfg.Classify.Thresholds().EarlyMax, 0.001)
	assert.InDelta(t, 0.6, cfg.Classify.Thresholds().ActiveMax, 0.001)
	assert.True(t, cfg.Classify.NeighborFallback)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://map.example.org"}, cfg.Server.AllowedOrigins)
	// Defaults still apply for unset values
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.NoError(t, cfg.Validate(ModeHistory))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CROPSENSE_STORE_DRIVER", "postgres")
	t.Setenv("CROPSENSE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("CROPSENSE_SERVER_PORT", "3000")
	t.Setenv("CROPSENSE_CLASSIFY_NDVI_SCALE", "100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 100, cfg.Classify.NDVIScale, 0.001)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CROPSENSE_RASTERS_DATA_DIR=/srv/rasters\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("CROPSENSE_RASTERS_DATA_DIR") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/rasters", cfg.Rasters.DataDir)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [port"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Rasters.DataDir = "data"
	cfg.Classify.NDVIScale = 10000
	cfg.Classify.EarlyMax = 0.2
	cfg.Classify.ActiveMax = 0.5
	cfg.Server.Port = 8080
	cfg.Batch.Concurrency = 8
	cfg.Store.Driver = "none"
	cfg.Fetch.TimeoutSecs = 300
	cfg.Fetch.MaxRetries = 3
	return cfg
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate(ModeServe)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_NegativeRateLimit(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.RateLimit = -1

	err := cfg.Validate(ModeServe)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit")
}

func TestValidateClassify(t *testing.T) {
	cfg := validDefaults()
	cfg.Classify.NDVIScale = 0
	cfg.Classify.EarlyMax = 0.6

	err := cfg.Validate(ModeSample)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "classify.ndvi_scale must be > 0")
	assert.Contains(t, err.Error(), "early_max < active_max")
}

func TestValidateRasters(t *testing.T) {
	cfg := validDefaults()
	cfg.Rasters.DataDir = ""

	err := cfg.Validate(ModeBatch)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rasters.data_dir")

	cfg.Rasters.Catalog = "layers.yaml"
	assert.NoError(t, cfg.Validate(ModeBatch))
}

func TestValidateBatchConcurrency(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Concurrency = 0
	err := cfg.Validate(ModeBatch)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 256")

	cfg.Batch.Concurrency = 257
	assert.Error(t, cfg.Validate(ModeBatch))

	cfg.Batch.Concurrency = 256
	assert.NoError(t, cfg.Validate(ModeBatch))

	// Serve does not use batch concurrency.
	cfg.Batch.Concurrency = 0
	assert.NoError(t, cfg.Validate(ModeServe))
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mongo"
	err := cfg.Validate(ModeServe)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")

	cfg.Store.Driver = "postgres"
	err = cfg.Validate(ModeServe)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/cropsense"
	assert.NoError(t, cfg.Validate(ModeServe))
}

func TestValidateHistory(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate(ModeHistory)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")

	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "history.db"
	assert.NoError(t, cfg.Validate(ModeHistory))
}

func TestValidateLayers(t *testing.T) {
	cfg := validDefaults()
	cfg.Fetch.TimeoutSecs = 0
	cfg.Fetch.MaxRetries = -1

	err := cfg.Validate(ModeLayers)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fetch.timeout_secs")
	assert.Contains(t, err.Error(), "fetch.max_retries")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
