package confidence

import (
	"math"
	"strconv"

	"github.com/rotisserie/eris"
)

// Gate identifies one of the hard pass/fail checks.
type Gate string

const (
	GateIntent      Gate = "INTENT"
	GateSuppression Gate = "SUPPRESSION"
	GateSpread      Gate = "SPREAD"
)

// gateOrder is the fixed evaluation order.
var gateOrder = []Gate{GateIntent, GateSuppression, GateSpread}

// Thresholds are the minimum component scores each gate requires.
type Thresholds struct {
	Intent      float64 `json:"intent" yaml:"intent" mapstructure:"intent"`
	Suppression float64 `json:"suppression" yaml:"suppression" mapstructure:"suppression"`
	Spread      float64 `json:"spread" yaml:"spread" mapstructure:"spread"`
}

// DefaultThresholds are tuned for sparse early data; the stricter targets
// are 0.65 / 0.50 / 0.50.
func DefaultThresholds() Thresholds {
	return Thresholds{Intent: 0.50, Suppression: 0.40, Spread: 0.25}
}

// Validate checks every threshold lies in [0,1].
func (t Thresholds) Validate() error {
	for _, g := range gateOrder {
		v := t.threshold(g)
		if v < 0 || v > 1 || math.IsNaN(v) {
			return eris.Errorf("confidence: %s gate threshold must be in [0,1], got %v", g, v)
		}
	}
	return nil
}

func (t Thresholds) threshold(g Gate) float64 {
	switch g {
	case GateIntent:
		return t.Intent
	case GateSuppression:
		return t.Suppression
	default:
		return t.Spread
	}
}

func (c Components) score(g Gate) float64 {
	switch g {
	case GateIntent:
		return c.Intent
	case GateSuppression:
		return c.Suppression
	default:
		return c.Spread
	}
}

// GateResult is the outcome of gate evaluation. Failed and Reason are empty
// when every gate passed.
type GateResult struct {
	Passed bool
	Failed Gate
	Reason string
}

// EvaluateGates checks intent, suppression and spread in that order and stops
// at the first failure.
func EvaluateGates(c Components, t Thresholds) GateResult {
	for _, g := range gateOrder {
		th := t.threshold(g)
		if c.score(g) < th {
			return GateResult{Failed: g, Reason: GateReason(g, th)}
		}
	}
	return GateResult{Passed: true}
}

// GateReason renders the persisted failure reason, e.g. GATE_INTENT_LT_0.5.
func GateReason(g Gate, threshold float64) string {
	return "GATE_" + string(g) + "_LT_" + strconv.FormatFloat(threshold, 'f', -1, 64)
}
