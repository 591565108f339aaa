package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior with exponential backoff and jitter.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt. Zero
	// disables retrying. Default: 3.
	MaxRetries int

	// BaseDelay is the delay before the first retry. Default: 2s.
	BaseDelay time.Duration

	// MaxDelay caps any single backoff. Default: 60s.
	MaxDelay time.Duration

	// JitterFraction adds ±JitterFraction of the computed delay. Default: 0.25.
	JitterFraction float64

	// ShouldRetry decides which errors are retried. If nil, IsRateLimited is used.
	ShouldRetry func(err error) bool

	// OnRetry runs before each backoff sleep with the retry number (1-based).
	OnRetry func(retry int, err error)

	// Sleep waits for d or until ctx is done. Tests replace it to avoid real
	// timing. Default: a timer-based sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig returns the configuration used for cross-validation lookups.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		BaseDelay:      2 * time.Second,
		MaxDelay:       60 * time.Second,
		JitterFraction: 0.25,
	}
}

// DoVal executes fn returning a value, retrying errors accepted by
// cfg.ShouldRetry. Total attempts never exceed MaxRetries+1.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !cfg.ShouldRetry(err) {
			return zero, lastErr
		}
		if attempt == cfg.MaxRetries {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}
		if sleepErr := cfg.Sleep(ctx, ComputeBackoff(attempt, cfg)); sleepErr != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 60 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = IsRateLimited
	}
	if cfg.Sleep == nil {
		cfg.Sleep = SleepContext
	}
	return cfg
}

// ComputeBackoff returns BaseDelay * 2^attempt with jitter, capped at MaxDelay.
func ComputeBackoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.JitterFraction > 0 {
		jitterRange := delay * cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * jitterRange
	}
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// MaxTotalDelay is the worst-case time spent sleeping between retries.
func MaxTotalDelay(cfg RetryConfig) time.Duration {
	cfg = applyDefaults(cfg)
	return time.Duration(cfg.MaxRetries) * cfg.MaxDelay
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(retry int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("retry", retry),
			zap.Error(err),
		)
	}
}
