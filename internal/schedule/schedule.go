// Package schedule runs jobs on cron specs.
package schedule

import (
	"context"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Runner runs jobs on standard five-field cron specs or descriptors such as
// "@hourly" and "@every 30m". Jobs receive the runner's base context.
type Runner struct {
	cron    *cron.Cron
	log     *zap.Logger
	baseCtx context.Context
}

// New returns a Runner. A job still running when its next tick fires is skipped.
func New(ctx context.Context, log *zap.Logger) *Runner {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = zap.L()
	}
	return &Runner{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:     log,
		baseCtx: ctx,
	}
}

// ValidateSpec reports whether spec parses as a standard cron spec.
func ValidateSpec(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return eris.New("schedule: empty spec")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return eris.Wrapf(err, "schedule: parse %q", spec)
	}
	return nil
}

// Add registers job under spec.
func (r *Runner) Add(spec string, job func(context.Context)) error {
	if err := ValidateSpec(spec); err != nil {
		return err
	}
	_, err := r.cron.AddFunc(spec, func() {
		if r.baseCtx.Err() != nil {
			return
		}
		job(r.baseCtx)
	})
	return eris.Wrapf(err, "schedule: add %q", spec)
}

// Start begins running jobs in the background.
func (r *Runner) Start() {
	r.log.Info("schedule: started", zap.Int("jobs", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info("schedule: stopped")
}
