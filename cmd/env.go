package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/eva-cli/internal/confidence"
	"github.com/sells-group/eva-cli/internal/engine"
	"github.com/sells-group/eva-cli/internal/resilience"
	"github.com/sells-group/eva-cli/internal/store"
	"github.com/sells-group/eva-cli/internal/trends"
	"github.com/sells-group/eva-cli/pkg/gtrends"
)

// engineOverrides are per-invocation flag values that take precedence over config.
type engineOverrides struct {
	windowDays  int
	concurrency int
	noTrends    bool
}

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

// initValidator wires the Trends client, cache, throttle, retry policy and
// breaker from config. One validator (and so one cache) lives per process.
func initValidator() *trends.Validator {
	t := cfg.Trends
	client := gtrends.NewClient(
		gtrends.WithBaseURL(t.BaseURL),
		gtrends.WithHTTPClient(&http.Client{Timeout: t.Timeout()}),
	)

	breakerCfg := t.BreakerConfig()
	breakerCfg.OnStateChange = func(from, to resilience.BreakerState) {
		zap.L().Warn("trends: breaker state change",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	throttle := resilience.NewThrottle(t.MinInterval())
	retry := t.RetryConfig()
	zap.L().Debug("trends: validator configured",
		zap.Duration("min_interval", throttle.Interval()),
		zap.Int("max_retries", retry.MaxRetries),
		zap.Duration("max_backoff_total", resilience.MaxTotalDelay(retry)),
	)

	return trends.NewValidator(client,
		trends.NewMemoryCache(t.CacheTTL()),
		throttle,
		trends.WithTimeframe(t.Timeframe),
		trends.WithGeo(t.Geo),
		trends.WithTimeout(t.Timeout()),
		trends.WithRetry(retry),
		trends.WithBreaker(resilience.NewBreaker(breakerCfg)),
	)
}

func initEngine(st engine.Store, o engineOverrides) (*engine.Engine, error) {
	scorer, err := confidence.NewScorer(cfg.ScoringParams())
	if err != nil {
		return nil, eris.Wrap(err, "init scorer")
	}

	windowDays := cfg.Scoring.WindowDays
	if o.windowDays > 0 {
		windowDays = o.windowDays
	}
	concurrency := cfg.Scoring.Concurrency
	if o.concurrency > 0 {
		concurrency = o.concurrency
	}
	crossValidate := cfg.Trends.Enabled && !o.noTrends

	opts := []engine.Option{
		engine.WithWindowDays(windowDays),
		engine.WithConcurrency(concurrency),
		engine.WithVersion(cfg.Scoring.Version),
		engine.WithCrossValidation(crossValidate, cfg.Trends.MinConfidence),
	}
	if crossValidate {
		opts = append(opts, engine.WithCrossValidator(initValidator()))
	}
	return engine.New(st, scorer, opts...), nil
}
