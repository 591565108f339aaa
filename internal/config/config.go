package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/eva-cli/internal/confidence"
	"github.com/sells-group/eva-cli/internal/db"
	"github.com/sells-group/eva-cli/internal/resilience"
	"github.com/sells-group/eva-cli/internal/schedule"
	"github.com/sells-group/eva-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Trends     TrendsConfig     `yaml:"trends" mapstructure:"trends"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL   string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath    string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	CandidateView string `yaml:"candidate_view" mapstructure:"candidate_view"`
	MaxConns      int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns      int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ScoringConfig configures the confidence scorer and the batch run.
type ScoringConfig struct {
	Version     string                 `yaml:"version" mapstructure:"version"`
	WindowDays  int                    `yaml:"window_days" mapstructure:"window_days"`
	Concurrency int                    `yaml:"concurrency" mapstructure:"concurrency"`
	Gates       confidence.Thresholds  `yaml:"gates" mapstructure:"gates"`
	Bands       confidence.BandCutoffs `yaml:"bands" mapstructure:"bands"`
	Weights     confidence.Weights     `yaml:"weights" mapstructure:"weights"`
}

// TrendsConfig configures Google Trends cross-validation.
type TrendsConfig struct {
	Enabled             bool    `yaml:"enabled" mapstructure:"enabled"`
	MinConfidence       float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	CacheTTLHours       int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	MaxRetries          int     `yaml:"max_retries" mapstructure:"max_retries"`
	BaseBackoffSecs     float64 `yaml:"base_backoff_secs" mapstructure:"base_backoff_secs"`
	MaxBackoffSecs      float64 `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
	MinIntervalSecs     float64 `yaml:"min_interval_secs" mapstructure:"min_interval_secs"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Timeframe           string  `yaml:"timeframe" mapstructure:"timeframe"`
	Geo                 string  `yaml:"geo" mapstructure:"geo"`
	BaseURL             string  `yaml:"base_url" mapstructure:"base_url"`
	BreakerThreshold    int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// ScheduleConfig configures periodic scoring runs.
type ScheduleConfig struct {
	Spec string `yaml:"spec" mapstructure:"spec"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures run health alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	AlertOnEmpty         bool    `yaml:"alert_on_empty" mapstructure:"alert_on_empty"`
}

// Load reads configuration from ./config.yaml (if present) and environment.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration from path and environment. An empty path
// falls back to an optional ./config.yaml; an explicit path must exist.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("EVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	params := confidence.DefaultParams()

	v.SetDefault("store.driver", store.DriverPostgres)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "eva.db")
	v.SetDefault("store.candidate_view", store.DefaultCandidateView)
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("scoring.version", "v1")
	v.SetDefault("scoring.window_days", 7)
	v.SetDefault("scoring.concurrency", 1)
	v.SetDefault("scoring.gates.intent", params.Thresholds.Intent)
	v.SetDefault("scoring.gates.suppression", params.Thresholds.Suppression)
	v.SetDefault("scoring.gates.spread", params.Thresholds.Spread)
	v.SetDefault("scoring.bands.high", params.Bands.High)
	v.SetDefault("scoring.bands.watchlist", params.Bands.Watchlist)
	v.SetDefault("scoring.weights.intent", params.Weights.Intent)
	v.SetDefault("scoring.weights.acceleration", params.Weights.Acceleration)
	v.SetDefault("scoring.weights.spread", params.Weights.Spread)
	v.SetDefault("scoring.weights.baseline", params.Weights.Baseline)
	v.SetDefault("scoring.weights.suppression", params.Weights.Suppression)
	v.SetDefault("trends.enabled", true)
	v.SetDefault("trends.min_confidence", 0.60)
	v.SetDefault("trends.cache_ttl_hours", 24)
	v.SetDefault("trends.max_retries", 3)
	v.SetDefault("trends.base_backoff_secs", 2.0)
	v.SetDefault("trends.max_backoff_secs", 60.0)
	v.SetDefault("trends.min_interval_secs", 2.0)
	v.SetDefault("trends.timeout_secs", 25)
	v.SetDefault("trends.timeframe", "today 3-m")
	v.SetDefault("trends.geo", "US")
	v.SetDefault("trends.base_url", "https://trends.google.com")
	v.SetDefault("trends.breaker_threshold", 0)
	v.SetDefault("trends.breaker_cooldown_secs", 300)
	v.SetDefault("schedule.spec", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.alert_on_empty", true)
}

// Validate checks the settings needed by the given command mode.
// Known modes: score, serve, validate, migrate.
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch mode {
	case "score", "serve", "validate", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "validate" {
		switch strings.ToLower(c.Store.Driver) {
		case store.DriverPostgres:
			if c.Store.DatabaseURL == "" {
				add("store.database_url is required for the postgres driver")
			}
		case store.DriverSQLite:
			if c.Store.SQLitePath == "" {
				add("store.sqlite_path is required for the sqlite driver")
			}
		default:
			add("store.driver must be postgres or sqlite, got %q", c.Store.Driver)
		}
	}

	if mode == "score" || mode == "serve" {
		if err := c.ScoringParams().Validate(); err != nil {
			add("scoring: %s", err.Error())
		}
		if c.Scoring.Version == "" {
			add("scoring.version is required")
		}
		if c.Scoring.WindowDays < 1 {
			add("scoring.window_days must be >= 1")
		}
		if c.Scoring.Concurrency < 1 || c.Scoring.Concurrency > 64 {
			add("scoring.concurrency must be between 1 and 64")
		}
		if c.Trends.MinConfidence < 0 || c.Trends.MinConfidence > 1 {
			add("trends.min_confidence must be between 0 and 1")
		}
		if t := c.Monitoring.FailureRateThreshold; t < 0 || t > 1 {
			add("monitoring.failure_rate_threshold must be between 0 and 1")
		}
		if c.Schedule.Spec != "" {
			if err := schedule.ValidateSpec(c.Schedule.Spec); err != nil {
				add("schedule.spec: %s", err.Error())
			}
		}
	}

	if mode != "migrate" {
		if c.Trends.MaxRetries < 0 {
			add("trends.max_retries must be >= 0")
		}
		if c.Trends.BaseBackoffSecs < 0 || c.Trends.MaxBackoffSecs < c.Trends.BaseBackoffSecs {
			add("trends.max_backoff_secs must be >= trends.base_backoff_secs >= 0")
		}
		if c.Trends.MinIntervalSecs < 0 || math.IsNaN(c.Trends.MinIntervalSecs) {
			add("trends.min_interval_secs must be >= 0")
		}
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		add("server.port must be > 0 and <= 65535")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ScoringParams returns the scorer parameters described by the config.
func (c *Config) ScoringParams() confidence.Params {
	return confidence.Params{
		Thresholds: c.Scoring.Gates,
		Weights:    c.Scoring.Weights,
		Bands:      c.Scoring.Bands,
	}
}

// StoreOptions maps the store section onto store.Options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Driver:        c.Store.Driver,
		DatabaseURL:   c.Store.DatabaseURL,
		SQLitePath:    c.Store.SQLitePath,
		CandidateView: c.Store.CandidateView,
		Pool:          db.PoolConfig{MaxConns: c.Store.MaxConns, MinConns: c.Store.MinConns},
	}
}

// RetryConfig returns the rate-limit retry policy for Trends lookups.
func (t TrendsConfig) RetryConfig() resilience.RetryConfig {
	return resilience.FromRetryConfig(t.MaxRetries, t.BaseBackoffSecs, t.MaxBackoffSecs)
}

// BreakerConfig returns the circuit breaker settings for Trends lookups.
func (t TrendsConfig) BreakerConfig() resilience.BreakerConfig {
	return resilience.FromBreakerConfig(t.BreakerThreshold, t.BreakerCooldownSecs)
}

// MinInterval is the minimum spacing between outbound Trends requests.
func (t TrendsConfig) MinInterval() time.Duration {
	return time.Duration(t.MinIntervalSecs * float64(time.Second))
}

// CacheTTL is how long successful lookups are reused.
func (t TrendsConfig) CacheTTL() time.Duration {
	return time.Duration(t.CacheTTLHours) * time.Hour
}

// Timeout bounds a single Trends API call.
func (t TrendsConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSecs) * time.Second
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
