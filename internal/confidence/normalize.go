// Package confidence implements the deterministic scoring core: component
// normalization, hard gates, weighted combination, banding and the warm-signal
// heuristic. Everything here is pure; persistence and cross-validation live in
// the engine.
package confidence

import "math"

// Components holds the five normalized component scores, each in [0,1].
type Components struct {
	Acceleration float64 `json:"acceleration"`
	Intent       float64 `json:"intent"`
	Spread       float64 `json:"spread"`
	Baseline     float64 `json:"baseline"`
	Suppression  float64 `json:"suppression"`
}

// Inputs are the raw candidate metrics consumed by the normalizers. Nil means
// the upstream view had no value.
type Inputs struct {
	DeltaPct         *float64
	MsgCount         *int
	SourceCount      *int
	PlatformCount    *int
	ActionIntentRate *float64
	MemeRisk         *float64
}

// Clamp bounds x to [lo, hi]. NaN clamps to lo.
func Clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) || x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func clamp01(x float64) float64 { return Clamp(x, 0, 1) }

// present reports whether a nullable float carries a usable value.
func present(v *float64) bool {
	return v != nil && !math.IsNaN(*v)
}

// Acceleration maps a share-of-voice delta (percent) to a score. A missing
// delta scores 0; a non-positive delta floors at 0.20 and anything at or past
// 2.0 caps at 0.95.
func Acceleration(deltaPct *float64) float64 {
	if !present(deltaPct) {
		return 0
	}
	d := *deltaPct
	switch {
	case d <= 0:
		return 0.20
	case d >= 2.0:
		return 0.95
	}
	return clamp01(0.20 + (d/2.0)*0.75)
}

// Intent maps the action-intent rate to a score with a knee at 0.20 -> 0.65.
// The first segment is steeper than the second.
func Intent(rate *float64) float64 {
	r := 0.0
	if present(rate) {
		r = *rate
	}
	switch {
	case r <= 0:
		return 0.20
	case r >= 0.50:
		return 0.95
	case r <= 0.20:
		return clamp01(0.20 + (r/0.20)*0.45)
	}
	return clamp01(0.65 + ((r-0.20)/0.30)*0.30)
}

// Suppression is the complement of meme/noise risk. Missing risk is treated
// as zero risk.
func Suppression(memeRisk *float64) float64 {
	risk := 0.0
	if present(memeRisk) {
		risk = *memeRisk
	}
	return clamp01(1.0 - clamp01(risk))
}

// Baseline maps message volume to a score: <=1 -> 0.20, >=20 -> 0.95.
func Baseline(msgCount *int) float64 {
	n := 0
	if msgCount != nil {
		n = *msgCount
	}
	switch {
	case n <= 1:
		return 0.20
	case n >= 20:
		return 0.95
	}
	return clamp01(0.20 + (float64(n)/20.0)*0.75)
}

// Spread scores source/platform diversity. Either dimension on its own is
// enough, so the raw value is the max of the two, not the mean. It returns the
// clamped score and the unclamped raw value.
func Spread(sourceCount, platformCount *int) (score, raw float64) {
	s, p := 0, 0
	if sourceCount != nil {
		s = *sourceCount
	}
	if platformCount != nil {
		p = *platformCount
	}
	raw = math.Max(float64(s-1)/3.0, float64(p-1)/3.0)
	return clamp01(raw), raw
}

// ComputeComponents normalizes every raw input. The second return value is the
// unclamped spread, kept for the details blob.
func ComputeComponents(in Inputs) (Components, float64) {
	spread, spreadRaw := Spread(in.SourceCount, in.PlatformCount)
	return Components{
		Acceleration: Acceleration(in.DeltaPct),
		Intent:       Intent(in.ActionIntentRate),
		Spread:       spread,
		Baseline:     Baseline(in.MsgCount),
		Suppression:  Suppression(in.MemeRisk),
	}, spreadRaw
}
