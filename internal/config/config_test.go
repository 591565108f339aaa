package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/eva-cli/internal/confidence"
)

// chdirTemp switches into an empty directory so no config.yaml is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "public.v_eva_candidate_brand_signals_v1", cfg.Store.CandidateView)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "v1", cfg.Scoring.Version)
	assert.Equal(t, 7, cfg.Scoring.WindowDays)
	assert.Equal(t, 1, cfg.Scoring.Concurrency)
	assert.Equal(t, confidence.DefaultParams(), cfg.ScoringParams())
	assert.True(t, cfg.Trends.Enabled)
	assert.InDelta(t, 0.60, cfg.Trends.MinConfidence, 0.001)
	assert.Equal(t, 3, cfg.Trends.MaxRetries)
	assert.Equal(t, "today 3-m", cfg.Trends.Timeframe)
	assert.Equal(t, "US", cfg.Trends.Geo)
	assert.Equal(t, 2*time.Second, cfg.Trends.MinInterval())
	assert.Equal(t, 24*time.Hour, cfg.Trends.CacheTTL())
	assert.Equal(t, 25*time.Second, cfg.Trends.Timeout())
	assert.Empty(t, cfg.Schedule.Spec)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.InDelta(t, 0.10, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.True(t, cfg.Monitoring.AlertOnEmpty)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  sqlite_path: /tmp/eva-test.db
log:
  level: debug
  format: console
scoring:
  concurrency: 4
  bands:
    high: 0.8
    watchlist: 0.65
trends:
  enabled: false
  max_retries: 5
schedule:
  spec: "0 * * * *"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/eva-test.db", cfg.Store.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 4, cfg.Scoring.Concurrency)
	assert.InDelta(t, 0.8, cfg.Scoring.Bands.High, 0.001)
	assert.InDelta(t, 0.65, cfg.Scoring.Bands.Watchlist, 0.001)
	assert.False(t, cfg.Trends.Enabled)
	assert.Equal(t, 5, cfg.Trends.MaxRetries)
	assert.Equal(t, "0 * * * *", cfg.Schedule.Spec)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.30, cfg.Scoring.Weights.Intent, 0.001)
	assert.Equal(t, 7, cfg.Scoring.WindowDays)
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

	t.Setenv("EVA_STORE_DRIVER", "postgres")
	t.Setenv("EVA_LOG_LEVEL", "warn")
	t.Setenv("EVA_SCORING_GATES_INTENT", "0.65")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.InDelta(t, 0.65, cfg.Scoring.Gates.Intent, 0.001)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("EVA_SERVER_PORT", "3000")
	t.Setenv("EVA_TRENDS_MIN_INTERVAL_SECS", "0.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Trends.MinInterval())
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestLoadFromExplicitPath(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "eva.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scoring:\n  version: v2\n"), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", cfg.Scoring.Version)
	assert.Equal(t, 7, cfg.Scoring.WindowDays)
}

func TestLoadFromMissingPath(t *testing.T) {
	chdirTemp(t)

	_, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
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
	p := confidence.DefaultParams()
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/eva"
	cfg.Scoring = ScoringConfig{
		Version:     "v1",
		WindowDays:  7,
		Concurrency: 1,
		Gates:       p.Thresholds,
		Bands:       p.Bands,
		Weights:     p.Weights,
	}
	cfg.Trends.MinConfidence = 0.6
	cfg.Trends.MaxRetries = 3
	cfg.Trends.BaseBackoffSecs = 2
	cfg.Trends.MaxBackoffSecs = 60
	cfg.Trends.MinIntervalSecs = 2
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_DefaultsPassEveryMode(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"score", "serve", "validate", "migrate"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_Store(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	// validate only talks to the Trends API.
	assert.NoError(t, cfg.Validate("validate"))

	cfg.Store.Driver = "SQLite"
	cfg.Store.SQLitePath = "eva.db"
	assert.NoError(t, cfg.Validate("migrate"))

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidate_Scoring(t *testing.T) {
	cfg := validDefaults()
	cfg.Scoring.Bands = confidence.BandCutoffs{High: 0.5, Watchlist: 0.6}
	cfg.Scoring.WindowDays = 0
	cfg.Scoring.Concurrency = 0

	err := cfg.Validate("score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "high cutoff")
	assert.Contains(t, err.Error(), "scoring.window_days must be >= 1")
	assert.Contains(t, err.Error(), "scoring.concurrency must be between 1 and 64")

	// migrate does not need scoring settings.
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidate_Weights(t *testing.T) {
	cfg := validDefaults()
	cfg.Scoring.Weights.Intent = 0.5

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scoring:")
}

func TestValidate_Trends(t *testing.T) {
	cfg := validDefaults()
	cfg.Trends.MaxRetries = -1
	cfg.Trends.MaxBackoffSecs = 1
	cfg.Trends.MinConfidence = 1.5

	err := cfg.Validate("score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trends.max_retries must be >= 0")
	assert.Contains(t, err.Error(), "trends.max_backoff_secs")
	assert.Contains(t, err.Error(), "trends.min_confidence")
}

func TestValidate_Monitoring(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.FailureRateThreshold = 1.5

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.failure_rate_threshold")
	assert.NoError(t, cfg.Validate("validate"))
}

func TestValidate_Schedule(t *testing.T) {
	cfg := validDefaults()
	cfg.Schedule.Spec = "*/30 * * * *"
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Schedule.Spec = "twice a day"
	err := cfg.Validate("score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule.spec")
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.NoError(t, cfg.Validate("score"))
}

func TestStoreOptions(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.CandidateView = "analytics.candidates"
	cfg.Store.MaxConns = 4
	cfg.Store.MinConns = 2

	opts := cfg.StoreOptions()
	assert.Equal(t, "postgres", opts.Driver)
	assert.Equal(t, "postgres://localhost/eva", opts.DatabaseURL)
	assert.Equal(t, "analytics.candidates", opts.CandidateView)
	assert.Equal(t, int32(4), opts.Pool.MaxConns)
	assert.Equal(t, int32(2), opts.Pool.MinConns)
}

func TestTrendsResilienceSettings(t *testing.T) {
	tc := TrendsConfig{MaxRetries: 2, BaseBackoffSecs: 1.5, MaxBackoffSecs: 10, BreakerThreshold: 4, BreakerCooldownSecs: 30}

	rc := tc.RetryConfig()
	assert.Equal(t, 2, rc.MaxRetries)
	assert.Equal(t, 1500*time.Millisecond, rc.BaseDelay)
	assert.Equal(t, 10*time.Second, rc.MaxDelay)

	bc := tc.BreakerConfig()
	assert.Equal(t, 4, bc.FailureThreshold)
	assert.Equal(t, 30*time.Second, bc.Cooldown)
}
