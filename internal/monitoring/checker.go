package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/eva-cli/internal/engine"
)

// Runner is the engine surface a Checker wraps.
type Runner interface {
	Run(ctx context.Context) (*engine.RunStats, error)
	LastRun() *engine.RunStats
	Running() bool
}

// Checker wraps a Runner and evaluates every finished run for alerts.
type Checker struct {
	Runner
	alerter *Alerter
}

// NewChecker creates a Checker around r.
func NewChecker(r Runner, alerter *Alerter) *Checker {
	return &Checker{Runner: r, alerter: alerter}
}

// Run delegates to the wrapped Runner, then sends alerts for the stats it
// produced. Alert delivery uses its own deadline so a canceled run can
// still be reported.
func (c *Checker) Run(ctx context.Context) (*engine.RunStats, error) {
	stats, err := c.Runner.Run(ctx)
	if stats == nil {
		return stats, err
	}
	c.check(stats)
	return stats, err
}

func (c *Checker) check(stats *engine.RunStats) {
	log := zap.L().With(zap.String("component", "monitoring.checker"), zap.String("run_id", stats.RunID))

	alerts := c.alerter.Evaluate(stats)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
}
