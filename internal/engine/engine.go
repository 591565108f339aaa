// Package engine runs a scoring pass over recent candidate signals: it scores
// each candidate, optionally reconciles HIGH outcomes against an external
// cross-validator, persists the confidence record and emits signal events.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/eva-cli/internal/confidence"
	"github.com/sells-group/eva-cli/internal/model"
	"github.com/sells-group/eva-cli/internal/trends"
)

// Defaults for a scoring run.
const (
	DefaultWindowDays    = 7
	DefaultVersion       = "v1"
	DefaultMinConfidence = 0.60
)

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = eris.New("engine: run already in progress")

// Store is the persistence the engine needs. store.Store satisfies it.
type Store interface {
	ListCandidates(ctx context.Context, since time.Time) ([]model.Candidate, error)
	UpsertConfidence(ctx context.Context, rec model.ConfidenceRecord) error
	InsertEvent(ctx context.Context, ev model.SignalEvent) (bool, error)
	InsertTrendsValidation(ctx context.Context, v model.TrendsValidation) error
}

// CrossValidator checks a brand against an independent signal. It never
// fails: problems come back as a neutral result with Error set.
type CrossValidator interface {
	Validate(ctx context.Context, brand string) trends.Result
}

// Engine scores candidate batches. It is safe for concurrent use; runs are
// serialized.
type Engine struct {
	store     Store
	scorer    *confidence.Scorer
	validator CrossValidator

	crossValidate bool
	minConfidence float64
	windowDays    int
	concurrency   int
	version       string
	now           func() time.Time
	log           *zap.Logger

	running sync.Mutex
	active  atomic.Bool

	mu      sync.RWMutex
	lastRun *RunStats
}

// Option configures an Engine.
type Option func(*Engine)

// WithCrossValidator sets the validator used to reconcile HIGH outcomes.
// Cross-validation stays off until enabled with WithCrossValidation.
func WithCrossValidator(v CrossValidator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithCrossValidation toggles reconciliation and sets the minimum final
// score a HIGH candidate needs before it is checked.
func WithCrossValidation(enabled bool, minConfidence float64) Option {
	return func(e *Engine) {
		e.crossValidate = enabled
		e.minConfidence = minConfidence
	}
}

// WithWindowDays sets how many days back candidates are read.
func WithWindowDays(days int) Option {
	return func(e *Engine) {
		if days > 0 {
			e.windowDays = days
		}
	}
}

// WithConcurrency sets how many candidates are processed at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithVersion sets the scoring version written to records and events.
func WithVersion(v string) Option {
	return func(e *Engine) {
		if v != "" {
			e.version = v
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an Engine.
func New(st Store, scorer *confidence.Scorer, opts ...Option) *Engine {
	e := &Engine{
		store:         st,
		scorer:        scorer,
		minConfidence: DefaultMinConfidence,
		windowDays:    DefaultWindowDays,
		concurrency:   1,
		version:       DefaultVersion,
		now:           time.Now,
		log:           zap.L(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// LastRun returns the stats of the most recent completed run, or nil.
func (e *Engine) LastRun() *RunStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastRun == nil {
		return nil
	}
	s := *e.lastRun
	return &s
}

// Running reports whether a run is in progress.
func (e *Engine) Running() bool { return e.active.Load() }

// Run scores every candidate in the window. Only a failure to read the
// candidates fails the run; per-candidate errors are counted in Failed.
// Cancellation stops dispatching new candidates and returns the partial
// stats together with the context error.
func (e *Engine) Run(ctx context.Context) (*RunStats, error) {
	if !e.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer e.running.Unlock()
	e.active.Store(true)
	defer e.active.Store(false)

	started := e.now()
	runID := uuid.NewString()
	log := e.log.With(zap.String("run_id", runID), zap.String("scoring_version", e.version))

	since := startOfDay(started).AddDate(0, 0, -e.windowDays)
	candidates, err := e.store.ListCandidates(ctx, since)
	if err != nil {
		log.Error("engine: candidate read failed", zap.Error(err))
		return nil, eris.Wrap(err, "engine: read candidates")
	}

	log.Info("engine: run started",
		zap.Int("candidates", len(candidates)),
		zap.Time("since", since),
		zap.Int("concurrency", e.concurrency),
		zap.Bool("cross_validation", e.crossValidationEnabled()),
	)

	var c counters
	c.candidates.Store(int64(len(candidates)))

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for _, cand := range candidates {
		if ctx.Err() != nil {
			break
		}
		if !cand.Actionable() {
			c.skipped.Add(1)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := e.process(ctx, cand, started, &c); err != nil {
				c.failed.Add(1)
				log.Error("engine: candidate failed",
					zap.String("brand", cand.Brand),
					zap.String("tag", cand.Tag),
					zap.String("day", cand.Day.Format(model.DayLayout)),
					zap.Error(err),
				)
			}
			return nil // don't abort the batch on individual failure
		})
	}
	_ = g.Wait()

	stats := c.snapshot(runID, started, e.now().Sub(started))
	stats.Canceled = ctx.Err() != nil

	e.mu.Lock()
	e.lastRun = stats
	e.mu.Unlock()

	log.Info("engine: run complete",
		zap.Int("scored", stats.Scored),
		zap.Int("skipped", stats.Skipped),
		zap.Int("suppressed", stats.Suppressed),
		zap.Int("watchlist", stats.Watchlist),
		zap.Int("high", stats.High),
		zap.Int("failed", stats.Failed),
		zap.Int("validated", stats.Validated),
		zap.Duration("duration", stats.Duration),
	)

	if stats.Canceled {
		return stats, eris.Wrap(ctx.Err(), "engine: run canceled")
	}
	return stats, nil
}

func (e *Engine) crossValidationEnabled() bool {
	return e.crossValidate && e.validator != nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
