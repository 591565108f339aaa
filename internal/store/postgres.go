package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/eva-cli/internal/db"
	"github.com/sells-group/eva-cli/internal/model"
)

// PostgresStore implements Store over a pgx pool.
type PostgresStore struct {
	pool       db.Pool
	candidates string // quoted candidate relation
}

// NewPostgres connects to Postgres and returns a store reading candidates
// from view (DefaultCandidateView when empty).
func NewPostgres(ctx context.Context, url, view string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	if poolCfg.MaxConns <= 0 {
		poolCfg.MaxConns = 10
	}
	if poolCfg.MinConns <= 0 {
		poolCfg.MinConns = 1
	}
	pool, err := db.Connect(ctx, url, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	s, err := newPostgresStore(pool, view)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newPostgresStore(pool db.Pool, view string) (*PostgresStore, error) {
	if view == "" {
		view = DefaultCandidateView
	}
	rel, err := db.QuoteRelation(view)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: candidate view")
	}
	return &PostgresStore{pool: pool, candidates: rel}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS eva_confidence_v1 (
	day                DATE NOT NULL,
	tag                TEXT NOT NULL,
	brand              TEXT NOT NULL,
	scoring_version    TEXT NOT NULL DEFAULT 'v1',
	acceleration_score DOUBLE PRECISION NOT NULL,
	intent_score       DOUBLE PRECISION NOT NULL,
	spread_score       DOUBLE PRECISION NOT NULL,
	baseline_score     DOUBLE PRECISION NOT NULL,
	suppression_score  DOUBLE PRECISION NOT NULL,
	final_confidence   DOUBLE PRECISION NOT NULL,
	band               TEXT NOT NULL,
	gate_failed_reason TEXT,
	details            JSONB NOT NULL DEFAULT '{}'::jsonb,
	computed_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (day, tag, brand, scoring_version)
);

CREATE INDEX IF NOT EXISTS idx_eva_confidence_v1_band ON eva_confidence_v1(band, day DESC);

CREATE TABLE IF NOT EXISTS signal_events (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	event_type TEXT NOT NULL,
	tag        TEXT NOT NULL,
	brand      TEXT NOT NULL,
	day        DATE NOT NULL,
	severity   TEXT NOT NULL,
	payload    JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (event_type, tag, brand, day)
);

CREATE INDEX IF NOT EXISTS idx_signal_events_created_at ON signal_events(created_at DESC);

CREATE TABLE IF NOT EXISTS google_trends_validation (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	brand            TEXT NOT NULL,
	checked_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	search_interest  DOUBLE PRECISION NOT NULL,
	trend_direction  TEXT NOT NULL,
	validates_signal BOOLEAN NOT NULL,
	confidence_boost DOUBLE PRECISION NOT NULL,
	query_term       TEXT NOT NULL,
	timeframe        TEXT NOT NULL,
	raw_data         JSONB,
	error_message    TEXT
);

CREATE INDEX IF NOT EXISTS idx_google_trends_validation_brand ON google_trends_validation(brand, checked_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context, since time.Time) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT day, tag, brand, delta_pct, msg_count, source_count, platform_count,
			action_intent_rate, eval_intent_rate, meme_risk
		FROM `+s.candidates+`
		WHERE day >= $1::date
		ORDER BY day, tag, brand`,
		dayParam(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		var tag, brand *string
		if err := rows.Scan(
			&c.Day, &tag, &brand, &c.DeltaPct, &c.MsgCount, &c.SourceCount, &c.PlatformCount,
			&c.ActionIntentRate, &c.EvalIntentRate, &c.MemeRisk,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		if tag != nil {
			c.Tag = *tag
		}
		if brand != nil {
			c.Brand = *brand
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate candidates")
}

func (s *PostgresStore) UpsertConfidence(ctx context.Context, rec model.ConfidenceRecord) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal details")
	}
	computedAt := rec.ComputedAt
	if computedAt.IsZero() {
		computedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO eva_confidence_v1 (
			day, tag, brand, scoring_version,
			acceleration_score, intent_score, spread_score, baseline_score, suppression_score,
			final_confidence, band, gate_failed_reason, details, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (day, tag, brand, scoring_version) DO UPDATE SET
			acceleration_score = EXCLUDED.acceleration_score,
			intent_score = EXCLUDED.intent_score,
			spread_score = EXCLUDED.spread_score,
			baseline_score = EXCLUDED.baseline_score,
			suppression_score = EXCLUDED.suppression_score,
			final_confidence = EXCLUDED.final_confidence,
			band = EXCLUDED.band,
			gate_failed_reason = EXCLUDED.gate_failed_reason,
			details = EXCLUDED.details,
			computed_at = EXCLUDED.computed_at`,
		dayParam(rec.Day), rec.Tag, rec.Brand, rec.ScoringVersion,
		rec.AccelerationScore, rec.IntentScore, rec.SpreadScore, rec.BaselineScore, rec.SuppressionScore,
		rec.FinalConfidence, string(rec.Band), rec.GateFailedReason, details, computedAt,
	)
	return eris.Wrapf(err, "postgres: upsert confidence %s/%s", rec.Tag, rec.Brand)
}

func (s *PostgresStore) ListConfidence(ctx context.Context, f ConfidenceFilter) ([]model.ConfidenceRecord, error) {
	w := &where{placeholder: dollar}
	if f.Day != nil {
		w.add("day = ?::date", dayParam(*f.Day))
	}
	if f.Band != "" {
		w.add("band = ?", string(f.Band))
	}
	if f.Brand != "" {
		w.add("brand = ?", f.Brand)
	}
	if f.ScoringVersion != "" {
		w.add("scoring_version = ?", f.ScoringVersion)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT day, tag, brand, scoring_version,
			acceleration_score, intent_score, spread_score, baseline_score, suppression_score,
			final_confidence, band, gate_failed_reason, details, computed_at
		FROM eva_confidence_v1`+w.String()+`
		ORDER BY day DESC, final_confidence DESC, tag, brand`+limitClause(f.Limit),
		w.args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list confidence")
	}
	defer rows.Close()

	var out []model.ConfidenceRecord
	for rows.Next() {
		var r model.ConfidenceRecord
		var band string
		var details []byte
		if err := rows.Scan(
			&r.Day, &r.Tag, &r.Brand, &r.ScoringVersion,
			&r.AccelerationScore, &r.IntentScore, &r.SpreadScore, &r.BaselineScore, &r.SuppressionScore,
			&r.FinalConfidence, &band, &r.GateFailedReason, &details, &r.ComputedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan confidence")
		}
		r.Band = model.Band(band)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &r.Details); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal details")
			}
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate confidence")
}

func (s *PostgresStore) InsertEvent(ctx context.Context, ev model.SignalEvent) (bool, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal payload")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO signal_events (id, event_type, tag, brand, day, severity, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING`,
		ev.ID, string(ev.Type), ev.Tag, ev.Brand, dayParam(ev.Day), string(ev.Severity), payload, ev.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert %s event %s/%s", ev.Type, ev.Tag, ev.Brand)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, f EventFilter) ([]model.SignalEvent, error) {
	w := &where{placeholder: dollar}
	if f.Type != "" {
		w.add("event_type = ?", string(f.Type))
	}
	if f.Brand != "" {
		w.add("brand = ?", f.Brand)
	}
	if f.Since != nil {
		w.add("created_at >= ?", *f.Since)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, event_type, tag, brand, day, severity, payload, created_at
		FROM signal_events`+w.String()+`
		ORDER BY created_at DESC, id`+limitClause(f.Limit),
		w.args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var out []model.SignalEvent
	for rows.Next() {
		var ev model.SignalEvent
		var typ, sev string
		var payload []byte
		if err := rows.Scan(&ev.ID, &typ, &ev.Tag, &ev.Brand, &ev.Day, &sev, &payload, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		ev.Type = model.EventType(typ)
		ev.Severity = model.Severity(sev)
		if err := decodePayload(payload, &ev); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal payload")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate events")
}

func (s *PostgresStore) InsertTrendsValidation(ctx context.Context, v model.TrendsValidation) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CheckedAt.IsZero() {
		v.CheckedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO google_trends_validation (
			id, brand, checked_at, search_interest, trend_direction,
			validates_signal, confidence_boost, query_term, timeframe, raw_data, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		v.ID, v.Brand, v.CheckedAt, v.SearchInterest, v.TrendDirection,
		v.ValidatesSignal, v.ConfidenceBoost, v.QueryTerm, v.Timeframe, nullJSON(v.RawData), v.ErrorMessage,
	)
	return eris.Wrapf(err, "postgres: insert trends validation %s", v.Brand)
}

// nullJSON maps an empty document to SQL NULL.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func decodePayload(b []byte, ev *model.SignalEvent) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, &ev.Payload)
}

var _ Store = (*PostgresStore)(nil)
