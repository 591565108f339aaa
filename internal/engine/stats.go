package engine

import (
	"sync/atomic"
	"time"

	"github.com/sells-group/eva-cli/internal/model"
)

// RunStats summarizes one scoring run.
type RunStats struct {
	RunID          string        `json:"run_id"`
	Candidates     int           `json:"candidates"`
	Scored         int           `json:"scored"`
	Skipped        int           `json:"skipped"`
	Suppressed     int           `json:"suppressed"`
	Watchlist      int           `json:"watchlist"`
	High           int           `json:"high"`
	Failed         int           `json:"failed"`
	Validated      int           `json:"validated"`
	Downgraded     int           `json:"downgraded"`
	WarmEvents     int           `json:"warm_events"`
	EligibleEvents int           `json:"eligible_events"`
	Canceled       bool          `json:"canceled"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
}

type counters struct {
	candidates atomic.Int64
	scored     atomic.Int64
	skipped    atomic.Int64
	suppressed atomic.Int64
	watchlist  atomic.Int64
	high       atomic.Int64
	failed     atomic.Int64
	validated  atomic.Int64
	downgraded atomic.Int64
	warm       atomic.Int64
	eligible   atomic.Int64
}

func (c *counters) band(b model.Band) {
	switch b {
	case model.BandHigh:
		c.high.Add(1)
	case model.BandWatchlist:
		c.watchlist.Add(1)
	default:
		c.suppressed.Add(1)
	}
}

func (c *counters) snapshot(runID string, started time.Time, d time.Duration) *RunStats {
	return &RunStats{
		RunID:          runID,
		Candidates:     int(c.candidates.Load()),
		Scored:         int(c.scored.Load()),
		Skipped:        int(c.skipped.Load()),
		Suppressed:     int(c.suppressed.Load()),
		Watchlist:      int(c.watchlist.Load()),
		High:           int(c.high.Load()),
		Failed:         int(c.failed.Load()),
		Validated:      int(c.validated.Load()),
		Downgraded:     int(c.downgraded.Load()),
		WarmEvents:     int(c.warm.Load()),
		EligibleEvents: int(c.eligible.Load()),
		StartedAt:      started,
		Duration:       d,
	}
}
