package trends

import (
	"math"

	"github.com/sells-group/eva-cli/internal/confidence"
)

const (
	recentWindow   = 30
	directionSpan  = 2 * recentWindow
	directionDelta = 20.0 // percent

	minInterestForAdjustment = 0.20
)

// SearchInterest compares the mean of the last 30 samples to the mean of the
// whole series, mapped so that 2x the average saturates at 1.0. Series shorter
// than 30 samples compare the full mean to itself.
func SearchInterest(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	full := mean(values)
	recent := full
	if len(values) >= recentWindow {
		recent = mean(values[len(values)-recentWindow:])
	}
	if full == 0 {
		return 0
	}
	return confidence.Clamp((recent/full)/2.0, 0, 1)
}

// TrendDirection compares the last 30 samples with the 30 before them. A
// change above +20% is rising, below -20% falling, anything else stable.
func TrendDirection(values []float64) Direction {
	if len(values) < directionSpan {
		return DirectionUnknown
	}
	n := len(values)
	last := mean(values[n-recentWindow:])
	prev := mean(values[n-directionSpan : n-recentWindow])
	if prev == 0 {
		return DirectionUnknown
	}

	change := (last - prev) / prev * 100
	switch {
	case change > directionDelta:
		return DirectionRising
	case change < -directionDelta:
		return DirectionFalling
	default:
		return DirectionStable
	}
}

// Adjustment is the bounded confidence delta for the given interest and
// direction, in [-0.10, +0.15]. Low interest is neutral.
func Adjustment(interest float64, dir Direction) float64 {
	if interest < minInterestForAdjustment {
		return 0
	}
	switch dir {
	case DirectionRising:
		return math.Min(0.15*interest, 0.15)
	case DirectionStable:
		return math.Min(0.05*interest, 0.05)
	case DirectionFalling:
		return math.Max(-0.075*interest, -0.10)
	default:
		return 0
	}
}

// Validates reports whether search behavior clearly supports the signal.
func Validates(interest float64, dir Direction) bool {
	switch dir {
	case DirectionRising:
		return interest >= 0.30
	case DirectionStable:
		return interest >= 0.50
	default:
		return false
	}
}

// Analyze computes a full result from a series of interest values.
// Interest and adjustment are rounded to 4 decimals after the decision rules
// are applied to the unrounded interest.
func Analyze(brand, timeframe string, values []float64, dates []string) Result {
	interest := SearchInterest(values)
	dir := TrendDirection(values)

	return Result{
		Validates:      Validates(interest, dir),
		SearchInterest: confidence.Round4(interest),
		Direction:      dir,
		Adjustment:     confidence.Round4(Adjustment(interest, dir)),
		QueryTerm:      brand,
		Timeframe:      timeframe,
		Raw: &RawSeries{
			Values: values,
			Dates:  dates,
			Mean:   mean(values),
			Std:    sampleStd(values),
		},
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStd is the n-1 standard deviation; zero for fewer than two samples.
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}
