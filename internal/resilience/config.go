package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a RetryConfig. Non-positive
// values keep the defaults.
func FromRetryConfig(maxRetries int, baseDelaySecs, maxDelaySecs float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxRetries >= 0 {
		cfg.MaxRetries = maxRetries
	}
	if baseDelaySecs > 0 {
		cfg.BaseDelay = secondsToDuration(baseDelaySecs)
	}
	if maxDelaySecs > 0 {
		cfg.MaxDelay = secondsToDuration(maxDelaySecs)
	}
	return cfg
}

// FromBreakerConfig converts config values to a BreakerConfig.
func FromBreakerConfig(failureThreshold, cooldownSecs int) BreakerConfig {
	cfg := BreakerConfig{FailureThreshold: failureThreshold}
	if cooldownSecs > 0 {
		cfg.Cooldown = time.Duration(cooldownSecs) * time.Second
	}
	return cfg
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
