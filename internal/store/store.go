// Package store persists confidence records, signal events and trends audit
// rows, and reads scoring candidates.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/eva-cli/internal/db"
	"github.com/sells-group/eva-cli/internal/model"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultCandidateView is the Postgres relation candidates are read from.
const DefaultCandidateView = "public.v_eva_candidate_brand_signals_v1"

// sqliteCandidateTable is created by the SQLite migration for local runs.
const sqliteCandidateTable = "candidate_signals"

// ConfidenceFilter narrows ListConfidence. Zero values match everything.
type ConfidenceFilter struct {
	Day            *time.Time `json:"day,omitempty"`
	Band           model.Band `json:"band,omitempty"`
	Brand          string     `json:"brand,omitempty"`
	ScoringVersion string     `json:"scoring_version,omitempty"`
	Limit          int        `json:"limit,omitempty"`
}

// EventFilter narrows ListEvents. Zero values match everything.
type EventFilter struct {
	Type  model.EventType `json:"event_type,omitempty"`
	Brand string          `json:"brand,omitempty"`
	Since *time.Time      `json:"since,omitempty"`
	Limit int             `json:"limit,omitempty"`
}

// Store defines the persistence interface for the scoring engine.
type Store interface {
	// Candidates
	ListCandidates(ctx context.Context, since time.Time) ([]model.Candidate, error)

	// Confidence records, upserted on (day, tag, brand, scoring_version).
	UpsertConfidence(ctx context.Context, rec model.ConfidenceRecord) error
	ListConfidence(ctx context.Context, filter ConfidenceFilter) ([]model.ConfidenceRecord, error)

	// Events. InsertEvent reports false when the (type, tag, brand, day)
	// event already exists.
	InsertEvent(ctx context.Context, ev model.SignalEvent) (bool, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]model.SignalEvent, error)

	// Trends audit
	InsertTrendsValidation(ctx context.Context, v model.TrendsValidation) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Options selects and configures a Store.
type Options struct {
	Driver        string
	DatabaseURL   string
	SQLitePath    string
	CandidateView string
	Pool          db.PoolConfig
}

// Open returns the Store selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case DriverPostgres, "":
		return NewPostgres(ctx, opts.DatabaseURL, opts.CandidateView, opts.Pool)
	case DriverSQLite:
		return NewSQLite(opts.SQLitePath)
	default:
		return nil, eris.Errorf("store: unknown driver %q", opts.Driver)
	}
}

// where accumulates AND-ed conditions with driver-specific placeholders.
type where struct {
	placeholder func(n int) string
	conds       []string
	args        []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", w.placeholder(len(w.args))))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func dollar(n int) string   { return fmt.Sprintf("$%d", n) }
func question(_ int) string { return "?" }

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

// dayParam binds t as a YYYY-MM-DD literal. A time.Time would be cast to
// date in the session time zone and could land on the previous day.
func dayParam(t time.Time) string {
	return t.Format(model.DayLayout)
}
