// Package trends cross-validates social signals against Google search
// interest. It owns the analysis rules, the result cache and the throttled,
// retrying lookup against the Trends API.
package trends

// Direction is the short-term movement of search interest.
type Direction string

// Trend directions.
const (
	DirectionRising  Direction = "rising"
	DirectionStable  Direction = "stable"
	DirectionFalling Direction = "falling"
	DirectionUnknown Direction = "unknown"
)

// DefaultTimeframe is the lookback window requested from Google Trends.
const DefaultTimeframe = "today 3-m"

// DefaultGeo restricts lookups to the US market.
const DefaultGeo = "US"

// RawSeries summarizes the series a result was computed from.
type RawSeries struct {
	Values []float64 `json:"values"`
	Dates  []string  `json:"dates"`
	Mean   float64   `json:"mean"`
	Std    float64   `json:"std"`
}

// Result is the outcome of one cross-validation lookup. Failed lookups are
// neutral: Validates is false, Adjustment is 0 and Error is set.
type Result struct {
	Validates      bool       `json:"validates_signal"`
	SearchInterest float64    `json:"search_interest"`
	Direction      Direction  `json:"trend_direction"`
	Adjustment     float64    `json:"confidence_boost"`
	QueryTerm      string     `json:"query_term"`
	Timeframe      string     `json:"timeframe"`
	Error          string     `json:"error_message,omitempty"`
	Raw            *RawSeries `json:"raw_data,omitempty"`
	Cached         bool       `json:"cached"`
}

// OK reports whether the lookup produced usable data.
func (r Result) OK() bool { return r.Error == "" }

func errorResult(brand, timeframe, msg string) Result {
	return Result{
		Direction: DirectionUnknown,
		QueryTerm: brand,
		Timeframe: timeframe,
		Error:     msg,
	}
}
