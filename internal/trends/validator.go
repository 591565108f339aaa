package trends

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/eva-cli/internal/resilience"
	"github.com/sells-group/eva-cli/pkg/gtrends"
)

// DefaultTimeout bounds a single Trends API call.
const DefaultTimeout = 25 * time.Second

// LookupOptions tune a single lookup.
type LookupOptions struct {
	Timeframe string
	UseCache  bool
}

// Validator looks up search interest for brands. All outbound calls pass
// through one shared throttle, are retried only on rate limiting and never
// surface an error: failures come back as neutral results.
type Validator struct {
	client   gtrends.Client
	cache    Cache
	throttle *resilience.Throttle
	breaker  *resilience.Breaker
	retry    resilience.RetryConfig

	timeframe string
	geo       string
	timeout   time.Duration
	log       *zap.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithTimeframe overrides DefaultTimeframe.
func WithTimeframe(tf string) Option {
	return func(v *Validator) {
		if tf != "" {
			v.timeframe = tf
		}
	}
}

// WithGeo overrides DefaultGeo.
func WithGeo(geo string) Option {
	return func(v *Validator) { v.geo = geo }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithRetry sets the rate-limit retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(v *Validator) { v.retry = cfg }
}

// WithBreaker stops lookups after repeated failures. A nil breaker is a no-op.
func WithBreaker(b *resilience.Breaker) Option {
	return func(v *Validator) { v.breaker = b }
}

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.log = l
		}
	}
}

// NewValidator builds a Validator. A nil cache disables caching and a nil
// throttle disables spacing. The throttle interval applies per lookup
// attempt: one attempt may send the prime, explore and multiline requests
// back to back.
func NewValidator(client gtrends.Client, cache Cache, throttle *resilience.Throttle, opts ...Option) *Validator {
	v := &Validator{
		client:    client,
		cache:     cache,
		throttle:  throttle,
		retry:     resilience.DefaultRetryConfig(),
		timeframe: DefaultTimeframe,
		geo:       DefaultGeo,
		timeout:   DefaultTimeout,
		log:       zap.L(),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate looks up brand with the default timeframe, using the cache.
func (v *Validator) Validate(ctx context.Context, brand string) Result {
	return v.Lookup(ctx, brand, LookupOptions{UseCache: true})
}

// Lookup fetches and analyzes the interest series for brand.
func (v *Validator) Lookup(ctx context.Context, brand string, opts LookupOptions) Result {
	timeframe := opts.Timeframe
	if timeframe == "" {
		timeframe = v.timeframe
	}
	log := v.log.With(zap.String("brand", brand), zap.String("timeframe", timeframe))

	if opts.UseCache && v.cache != nil {
		if r, ok := v.cache.Get(brand); ok {
			log.Debug("trends: cache hit")
			return r
		}
	}

	if strings.TrimSpace(brand) == "" {
		return errorResult(brand, timeframe, "empty brand name")
	}

	q := gtrends.Query{Keyword: brand, Timeframe: timeframe, Geo: v.geo}
	series, err := resilience.Execute(ctx, v.breaker, func(ctx context.Context) (*gtrends.Series, error) {
		return v.fetch(ctx, q)
	})
	if errors.Is(err, resilience.ErrBreakerOpen) {
		log.Warn("trends: lookup skipped", zap.Stringer("breaker", v.breaker.State()))
		return errorResult(brand, timeframe, "lookup skipped: "+err.Error())
	}
	if err != nil {
		log.Error("trends: lookup failed", zap.Error(err))
		return errorResult(brand, timeframe, "API error: "+err.Error())
	}

	values := series.Values()
	if len(values) == 0 {
		log.Warn("trends: no data returned")
		return errorResult(brand, timeframe, fmt.Sprintf("no search data for %q", brand))
	}

	r := Analyze(brand, timeframe, values, series.Dates())
	log.Info("trends: lookup complete",
		zap.Float64("search_interest", r.SearchInterest),
		zap.String("direction", string(r.Direction)),
		zap.Float64("adjustment", r.Adjustment),
		zap.Bool("validates", r.Validates),
	)

	if opts.UseCache && v.cache != nil {
		v.cache.Set(brand, r)
	}
	return r
}

// budget caps a whole lookup: every attempt's timeout plus the worst-case
// backoff between them.
func (v *Validator) budget() time.Duration {
	attempts := time.Duration(max(v.retry.MaxRetries, 0) + 1)
	return attempts*v.timeout + resilience.MaxTotalDelay(v.retry)
}

// fetch retries rate-limited attempts, resetting the session between them.
func (v *Validator) fetch(ctx context.Context, q gtrends.Query) (*gtrends.Series, error) {
	retry := v.retry
	logRetry := resilience.RetryLogger("gtrends", "interest_over_time")
	retry.OnRetry = func(n int, err error) {
		logRetry(n, err)
		v.client.ResetSession()
	}

	ctx, cancel := context.WithTimeout(ctx, v.budget())
	defer cancel()

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (*gtrends.Series, error) {
		if err := v.throttle.Wait(ctx); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(ctx, v.timeout)
		defer cancel()
		return v.client.InterestOverTime(callCtx, q)
	})
}
