package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/eva-cli/internal/model"
)

// sqliteTimeLayout is fixed-width so stored timestamps sort as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite. Candidates are read
// from a local candidate_signals table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, eris.New("sqlite: empty path")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS candidate_signals (
	day                TEXT NOT NULL,
	tag                TEXT,
	brand              TEXT,
	delta_pct          REAL,
	msg_count          INTEGER,
	source_count       INTEGER,
	platform_count     INTEGER,
	action_intent_rate REAL,
	eval_intent_rate   REAL,
	meme_risk          REAL
);

CREATE INDEX IF NOT EXISTS idx_candidate_signals_day ON candidate_signals(day);

CREATE TABLE IF NOT EXISTS eva_confidence_v1 (
	day                TEXT NOT NULL,
	tag                TEXT NOT NULL,
	brand              TEXT NOT NULL,
	scoring_version    TEXT NOT NULL DEFAULT 'v1',
	acceleration_score REAL NOT NULL,
	intent_score       REAL NOT NULL,
	spread_score       REAL NOT NULL,
	baseline_score     REAL NOT NULL,
	suppression_score  REAL NOT NULL,
	final_confidence   REAL NOT NULL,
	band               TEXT NOT NULL,
	gate_failed_reason TEXT,
	details            TEXT NOT NULL DEFAULT '{}',
	computed_at        TEXT NOT NULL,
	PRIMARY KEY (day, tag, brand, scoring_version)
);

CREATE TABLE IF NOT EXISTS signal_events (
	id         TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	tag        TEXT NOT NULL,
	brand      TEXT NOT NULL,
	day        TEXT NOT NULL,
	severity   TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	UNIQUE (event_type, tag, brand, day)
);

CREATE TABLE IF NOT EXISTS google_trends_validation (
	id               TEXT PRIMARY KEY,
	brand            TEXT NOT NULL,
	checked_at       TEXT NOT NULL,
	search_interest  REAL NOT NULL,
	trend_direction  TEXT NOT NULL,
	validates_signal INTEGER NOT NULL,
	confidence_boost REAL NOT NULL,
	query_term       TEXT NOT NULL,
	timeframe        TEXT NOT NULL,
	raw_data         TEXT,
	error_message    TEXT
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertCandidates loads candidate rows into candidate_signals.
func (s *SQLiteStore) InsertCandidates(ctx context.Context, cs []model.Candidate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, c := range cs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO candidate_signals (day, tag, brand, delta_pct, msg_count, source_count,
				platform_count, action_intent_rate, eval_intent_rate, meme_risk)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Day.Format(model.DayLayout), c.Tag, c.Brand, c.DeltaPct, c.MsgCount, c.SourceCount,
			c.PlatformCount, c.ActionIntentRate, c.EvalIntentRate, c.MemeRisk,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert candidate %s", c.Key())
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit candidates")
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, since time.Time) ([]model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, tag, brand, delta_pct, msg_count, source_count, platform_count,
			action_intent_rate, eval_intent_rate, meme_risk
		FROM `+sqliteCandidateTable+`
		WHERE day >= ?
		ORDER BY day, tag, brand`,
		since.Format(model.DayLayout),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Candidate
	for rows.Next() {
		var (
			c                         model.Candidate
			day                       string
			tag, brand                sql.NullString
			delta, action, eval, meme sql.NullFloat64
			msgs, sources, platforms  sql.NullInt64
		)
		if err := rows.Scan(&day, &tag, &brand, &delta, &msgs, &sources, &platforms, &action, &eval, &meme); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		if c.Day, err = time.Parse(model.DayLayout, day); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse day %q", day)
		}
		c.Tag, c.Brand = tag.String, brand.String
		c.DeltaPct = floatPtr(delta)
		c.MsgCount = intPtr(msgs)
		c.SourceCount = intPtr(sources)
		c.PlatformCount = intPtr(platforms)
		c.ActionIntentRate = floatPtr(action)
		c.EvalIntentRate = floatPtr(eval)
		c.MemeRisk = floatPtr(meme)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate candidates")
}

func (s *SQLiteStore) UpsertConfidence(ctx context.Context, rec model.ConfidenceRecord) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal details")
	}
	computedAt := rec.ComputedAt
	if computedAt.IsZero() {
		computedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO eva_confidence_v1 (
			day, tag, brand, scoring_version,
			acceleration_score, intent_score, spread_score, baseline_score, suppression_score,
			final_confidence, band, gate_failed_reason, details, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (day, tag, brand, scoring_version) DO UPDATE SET
			acceleration_score = excluded.acceleration_score,
			intent_score = excluded.intent_score,
			spread_score = excluded.spread_score,
			baseline_score = excluded.baseline_score,
			suppression_score = excluded.suppression_score,
			final_confidence = excluded.final_confidence,
			band = excluded.band,
			gate_failed_reason = excluded.gate_failed_reason,
			details = excluded.details,
			computed_at = excluded.computed_at`,
		rec.Day.Format(model.DayLayout), rec.Tag, rec.Brand, rec.ScoringVersion,
		rec.AccelerationScore, rec.IntentScore, rec.SpreadScore, rec.BaselineScore, rec.SuppressionScore,
		rec.FinalConfidence, string(rec.Band), rec.GateFailedReason, string(details), formatTime(computedAt),
	)
	return eris.Wrapf(err, "sqlite: upsert confidence %s/%s", rec.Tag, rec.Brand)
}

func (s *SQLiteStore) ListConfidence(ctx context.Context, f ConfidenceFilter) ([]model.ConfidenceRecord, error) {
	w := &where{placeholder: question}
	if f.Day != nil {
		w.add("day = ?", f.Day.Format(model.DayLayout))
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

	rows, err := s.db.QueryContext(ctx,
		`SELECT day, tag, brand, scoring_version,
			acceleration_score, intent_score, spread_score, baseline_score, suppression_score,
			final_confidence, band, gate_failed_reason, details, computed_at
		FROM eva_confidence_v1`+w.String()+`
		ORDER BY day DESC, final_confidence DESC, tag, brand`+limitClause(f.Limit),
		w.args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list confidence")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ConfidenceRecord
	for rows.Next() {
		var r model.ConfidenceRecord
		var day, band, details, computedAt string
		var reason sql.NullString
		if err := rows.Scan(
			&day, &r.Tag, &r.Brand, &r.ScoringVersion,
			&r.AccelerationScore, &r.IntentScore, &r.SpreadScore, &r.BaselineScore, &r.SuppressionScore,
			&r.FinalConfidence, &band, &reason, &details, &computedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan confidence")
		}
		if r.Day, err = time.Parse(model.DayLayout, day); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse day %q", day)
		}
		if r.ComputedAt, err = time.Parse(sqliteTimeLayout, computedAt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse computed_at %q", computedAt)
		}
		r.Band = model.Band(band)
		if reason.Valid {
			r.GateFailedReason = &reason.String
		}
		if err := json.Unmarshal([]byte(details), &r.Details); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal details")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate confidence")
}

func (s *SQLiteStore) InsertEvent(ctx context.Context, ev model.SignalEvent) (bool, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal payload")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO signal_events (id, event_type, tag, brand, day, severity, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		ev.ID, string(ev.Type), ev.Tag, ev.Brand, ev.Day.Format(model.DayLayout), string(ev.Severity),
		string(payload), formatTime(ev.CreatedAt),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert %s event %s/%s", ev.Type, ev.Tag, ev.Brand)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, f EventFilter) ([]model.SignalEvent, error) {
	w := &where{placeholder: question}
	if f.Type != "" {
		w.add("event_type = ?", string(f.Type))
	}
	if f.Brand != "" {
		w.add("brand = ?", f.Brand)
	}
	if f.Since != nil {
		w.add("created_at >= ?", formatTime(*f.Since))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, tag, brand, day, severity, payload, created_at
		FROM signal_events`+w.String()+`
		ORDER BY created_at DESC, id`+limitClause(f.Limit),
		w.args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SignalEvent
	for rows.Next() {
		var ev model.SignalEvent
		var typ, day, sev, payload, createdAt string
		if err := rows.Scan(&ev.ID, &typ, &ev.Tag, &ev.Brand, &day, &sev, &payload, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		if ev.Day, err = time.Parse(model.DayLayout, day); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse day %q", day)
		}
		if ev.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse created_at %q", createdAt)
		}
		ev.Type = model.EventType(typ)
		ev.Severity = model.Severity(sev)
		if err := decodePayload([]byte(payload), &ev); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal payload")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate events")
}

func (s *SQLiteStore) InsertTrendsValidation(ctx context.Context, v model.TrendsValidation) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CheckedAt.IsZero() {
		v.CheckedAt = time.Now()
	}
	var raw sql.NullString
	if len(v.RawData) > 0 {
		raw = sql.NullString{String: string(v.RawData), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO google_trends_validation (
			id, brand, checked_at, search_interest, trend_direction,
			validates_signal, confidence_boost, query_term, timeframe, raw_data, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Brand, formatTime(v.CheckedAt), v.SearchInterest, v.TrendDirection,
		v.ValidatesSignal, v.ConfidenceBoost, v.QueryTerm, v.Timeframe, raw, v.ErrorMessage,
	)
	return eris.Wrapf(err, "sqlite: insert trends validation %s", v.Brand)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

var _ Store = (*SQLiteStore)(nil)
