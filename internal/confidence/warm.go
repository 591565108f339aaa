package confidence

// WarmReason tags which dimension tripped the warm heuristic.
type WarmReason string

const (
	WarmSpread       WarmReason = "WARM_SPREAD_GE_0.60"
	WarmAcceleration WarmReason = "WARM_ACCEL_GE_0.85"
	WarmIntent       WarmReason = "WARM_INTENT_GE_0.45"
)

// Warm thresholds. They are looser than the gates on purpose and have no
// derivation beyond the v1 heuristics; keep the values as they are.
const (
	warmSpreadMin       = 0.60
	warmAccelerationMin = 0.85
	warmIntentMin       = 0.45
)

// Warm reports whether any single dimension is strong enough to watch the
// candidate. It ignores gate outcomes; callers decide whether to emit.
func Warm(c Components) (bool, WarmReason) {
	switch {
	case c.Spread >= warmSpreadMin:
		return true, WarmSpread
	case c.Acceleration >= warmAccelerationMin:
		return true, WarmAcceleration
	case c.Intent >= warmIntentMin:
		return true, WarmIntent
	}
	return false, ""
}
