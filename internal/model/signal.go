// Package model defines the records shared by the scoring engine and its stores.
package model

import (
	"strings"
	"time"
)

// DayLayout is the canonical text form of a candidate day.
const DayLayout = "2006-01-02"

// Band is the discrete confidence tier assigned to a scored candidate.
type Band string

const (
	BandHigh       Band = "HIGH"
	BandWatchlist  Band = "WATCHLIST"
	BandSuppressed Band = "SUPPRESSED"
)

// Rank orders bands so downgrades can be detected. Unknown bands rank lowest.
func (b Band) Rank() int {
	switch b {
	case BandHigh:
		return 2
	case BandWatchlist:
		return 1
	default:
		return 0
	}
}

// Candidate is one row of the candidate-signal view: aggregated raw metrics for a
// (day, tag, brand). Nullable columns are pointers; the scorer substitutes
// conservative defaults for nil values.
type Candidate struct {
	Day              time.Time `json:"day"`
	Tag              string    `json:"tag"`
	Brand            string    `json:"brand"`
	DeltaPct         *float64  `json:"delta_pct"`
	MsgCount         *int      `json:"msg_count"`
	SourceCount      *int      `json:"source_count"`
	PlatformCount    *int      `json:"platform_count"`
	ActionIntentRate *float64  `json:"action_intent_rate"`
	EvalIntentRate   *float64  `json:"eval_intent_rate"`
	MemeRisk         *float64  `json:"meme_risk"`
}

// Actionable reports whether the candidate carries both a brand and a tag.
func (c Candidate) Actionable() bool {
	return strings.TrimSpace(c.Brand) != "" && strings.TrimSpace(c.Tag) != ""
}

// Key returns the natural key used in logs.
func (c Candidate) Key() string {
	return c.Day.Format(DayLayout) + "/" + c.Tag + "/" + c.Brand
}

// ConfidenceRecord is the persisted outcome for one (day, tag, brand, version).
type ConfidenceRecord struct {
	Day               time.Time `json:"day"`
	Tag               string    `json:"tag"`
	Brand             string    `json:"brand"`
	ScoringVersion    string    `json:"scoring_version"`
	AccelerationScore float64   `json:"acceleration_score"`
	IntentScore       float64   `json:"intent_score"`
	SpreadScore       float64   `json:"spread_score"`
	BaselineScore     float64   `json:"baseline_score"`
	SuppressionScore  float64   `json:"suppression_score"`
	FinalConfidence   float64   `json:"final_confidence"`
	Band              Band      `json:"band"`
	GateFailedReason  *string   `json:"gate_failed_reason,omitempty"`
	Details           Details   `json:"details"`
	ComputedAt        time.Time `json:"computed_at"`
}

// Details is the structured blob stored alongside a confidence record.
type Details struct {
	Inputs       DetailInputs  `json:"inputs"`
	Scores       DetailScores  `json:"scores"`
	GoogleTrends *TrendsDetail `json:"google_trends"`
}

// DetailInputs echoes the raw candidate metrics used for scoring. Missing
// inputs stay null so consumers can tell a default from a measurement.
type DetailInputs struct {
	DeltaPct         *float64 `json:"delta_pct"`
	MsgCount         *int     `json:"msg_count"`
	SourceCount      *int     `json:"source_count"`
	PlatformCount    *int     `json:"platform_count"`
	ActionIntentRate *float64 `json:"action_intent_rate"`
	EvalIntentRate   *float64 `json:"eval_intent_rate"`
	MemeRisk         *float64 `json:"meme_risk"`
	SpreadRaw        float64  `json:"spread_raw"`
}

// DetailScores holds the five component scores.
type DetailScores struct {
	Acceleration float64 `json:"acceleration"`
	Intent       float64 `json:"intent"`
	Spread       float64 `json:"spread"`
	Baseline     float64 `json:"baseline"`
	Suppression  float64 `json:"suppression"`
}

// TrendsDetail records a cross-validation attempt inside the details blob.
type TrendsDetail struct {
	ValidatesSignal    bool    `json:"validates_signal"`
	SearchInterest     float64 `json:"search_interest"`
	TrendDirection     string  `json:"trend_direction"`
	ConfidenceBoost    float64 `json:"confidence_boost"`
	BaseConfidence     float64 `json:"base_confidence"`
	AdjustedConfidence float64 `json:"adjusted_confidence"`
	Cached             bool    `json:"cached"`
	Error              string  `json:"error,omitempty"`
}
