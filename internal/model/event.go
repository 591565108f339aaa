package model

import "time"

// EventType identifies the kind of signal event.
type EventType string

const (
	// EventWatchlistWarm flags a promising candidate that is not (yet) HIGH.
	EventWatchlistWarm EventType = "WATCHLIST_WARM"
	// EventRecommendationEligible fires once a candidate finishes a run at HIGH.
	EventRecommendationEligible EventType = "RECOMMENDATION_ELIGIBLE"
)

// Severity is the notification severity attached to an event.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SignalEvent is an append-only notification record. Stores enforce
// uniqueness on (Type, Tag, Brand, Day); duplicate inserts are ignored.
type SignalEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"event_type"`
	Tag       string         `json:"tag"`
	Brand     string         `json:"brand"`
	Day       time.Time      `json:"day"`
	Severity  Severity       `json:"severity"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// TrendsValidation is an audit row for one cross-validation lookup.
type TrendsValidation struct {
	ID              string    `json:"id"`
	Brand           string    `json:"brand"`
	CheckedAt       time.Time `json:"checked_at"`
	SearchInterest  float64   `json:"search_interest"`
	TrendDirection  string    `json:"trend_direction"`
	ValidatesSignal bool      `json:"validates_signal"`
	ConfidenceBoost float64   `json:"confidence_boost"`
	QueryTerm       string    `json:"query_term"`
	Timeframe       string    `json:"timeframe"`
	RawData         []byte    `json:"raw_data,omitempty"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
}
