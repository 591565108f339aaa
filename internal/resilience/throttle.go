package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle enforces a minimum interval between calls across all goroutines
// sharing it. A nil or zero-interval Throttle never waits.
type Throttle struct {
	interval time.Duration
	limiter  *rate.Limiter
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewThrottle returns a Throttle that spaces calls at least interval apart.
func NewThrottle(interval time.Duration) *Throttle {
	t := &Throttle{interval: interval, now: time.Now, sleep: SleepContext}
	if interval > 0 {
		t.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return t
}

// Wait blocks until the next call is allowed. On cancellation the reserved
// slot is released and ctx.Err() is returned.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.limiter == nil {
		return ctx.Err()
	}
	now := t.now()
	r := t.limiter.ReserveN(now, 1)
	if !r.OK() {
		return ctx.Err()
	}
	if err := t.sleep(ctx, r.DelayFrom(now)); err != nil {
		r.CancelAt(t.now())
		return err
	}
	return nil
}

// Interval returns the configured minimum spacing.
func (t *Throttle) Interval() time.Duration {
	if t == nil || t.interval < 0 {
		return 0
	}
	return t.interval
}
