package confidence

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/eva-cli/internal/model"
)

// weightTolerance absorbs float error when checking that weights sum to one.
const weightTolerance = 1e-9

// Weights are the per-component multipliers of the combined score.
type Weights struct {
	Intent       float64 `json:"intent" yaml:"intent" mapstructure:"intent"`
	Acceleration float64 `json:"acceleration" yaml:"acceleration" mapstructure:"acceleration"`
	Spread       float64 `json:"spread" yaml:"spread" mapstructure:"spread"`
	Baseline     float64 `json:"baseline" yaml:"baseline" mapstructure:"baseline"`
	Suppression  float64 `json:"suppression" yaml:"suppression" mapstructure:"suppression"`
}

// DefaultWeights returns the v1 weights (sum = 1.0).
func DefaultWeights() Weights {
	return Weights{
		Intent:       0.30,
		Acceleration: 0.20,
		Spread:       0.20,
		Baseline:     0.15,
		Suppression:  0.15,
	}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Intent + w.Acceleration + w.Spread + w.Baseline + w.Suppression
}

// Validate requires non-negative weights summing to 1.0.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"intent":       w.Intent,
		"acceleration": w.Acceleration,
		"spread":       w.Spread,
		"baseline":     w.Baseline,
		"suppression":  w.Suppression,
	} {
		if v < 0 || math.IsNaN(v) {
			return eris.Errorf("confidence: %s weight must be >= 0, got %v", name, v)
		}
	}
	if math.Abs(w.Sum()-1.0) > weightTolerance {
		return eris.Errorf("confidence: weights must sum to 1.0, got %.6f", w.Sum())
	}
	return nil
}

// Combine returns the unrounded weighted sum of the components.
func Combine(c Components, w Weights) float64 {
	return c.Intent*w.Intent +
		c.Acceleration*w.Acceleration +
		c.Spread*w.Spread +
		c.Baseline*w.Baseline +
		c.Suppression*w.Suppression
}

// Round4 rounds to four decimal places, half away from zero.
func Round4(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	f, _ := decimal.NewFromFloat(x).Round(4).Float64()
	return f
}

// BandCutoffs are the minimum final scores for the HIGH and WATCHLIST bands.
type BandCutoffs struct {
	High      float64 `json:"high" yaml:"high" mapstructure:"high"`
	Watchlist float64 `json:"watchlist" yaml:"watchlist" mapstructure:"watchlist"`
}

// DefaultBandCutoffs returns the early-data cutoffs (stricter targets: 0.80 / 0.65).
func DefaultBandCutoffs() BandCutoffs {
	return BandCutoffs{High: 0.60, Watchlist: 0.50}
}

// Validate requires 0 <= Watchlist <= High <= 1.
func (b BandCutoffs) Validate() error {
	if b.Watchlist < 0 || b.High > 1 || math.IsNaN(b.High) || math.IsNaN(b.Watchlist) {
		return eris.Errorf("confidence: band cutoffs must be in [0,1], got high=%v watchlist=%v", b.High, b.Watchlist)
	}
	if b.High < b.Watchlist {
		return eris.Errorf("confidence: high cutoff %v must be >= watchlist cutoff %v", b.High, b.Watchlist)
	}
	return nil
}

// AssignBand maps a final score to its band.
func AssignBand(final float64, b BandCutoffs) model.Band {
	switch {
	case final >= b.High:
		return model.BandHigh
	case final >= b.Watchlist:
		return model.BandWatchlist
	default:
		return model.BandSuppressed
	}
}
