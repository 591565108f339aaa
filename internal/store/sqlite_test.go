package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/eva-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func countTrendsValidations(t *testing.T, st *SQLiteStore, brand string) int {
	t.Helper()
	var n int
	require.NoError(t, st.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM google_trends_validation WHERE brand = ?`, brand,
	).Scan(&n))
	return n
}

func TestNewSQLite_EmptyPath(t *testing.T) {
	_, err := NewSQLite("")
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	st, err := Open(context.Background(), Options{Driver: "SQLite", SQLitePath: filepath.Join(t.TempDir(), "open.db")})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
	// Migrations are idempotent.
	require.NoError(t, st.Migrate(context.Background()))
}

// --- Candidates ---

func TestSQLite_Candidates_WindowAndNulls(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertCandidates(ctx, []model.Candidate{
		{Day: testDay.AddDate(0, 0, -10), Tag: "running", Brand: "Old"},
		{Day: testDay.AddDate(0, 0, -7), Tag: "running", Brand: "Edge", MsgCount: ptr(4)},
		{Day: testDay, Tag: "running", Brand: "Hoka", DeltaPct: ptr(1.0), MsgCount: ptr(10),
			SourceCount: ptr(3), PlatformCount: ptr(1), ActionIntentRate: ptr(0.2), MemeRisk: ptr(0.1)},
		{Day: testDay, Tag: "", Brand: "NoTag"},
	}))

	got, err := st.ListCandidates(ctx, testDay.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "Edge", got[0].Brand)
	assert.Equal(t, testDay.AddDate(0, 0, -7), got[0].Day)
	assert.Nil(t, got[0].DeltaPct)
	require.NotNil(t, got[0].MsgCount)
	assert.Equal(t, 4, *got[0].MsgCount)

	// Ordered by day, tag, brand: the empty tag sorts first.
	assert.Equal(t, "NoTag", got[1].Brand)
	assert.False(t, got[1].Actionable())

	hoka := got[2]
	assert.Equal(t, "Hoka", hoka.Brand)
	require.NotNil(t, hoka.ActionIntentRate)
	assert.InDelta(t, 0.2, *hoka.ActionIntentRate, 1e-12)
	assert.Nil(t, hoka.EvalIntentRate)
}

// --- Confidence ---

func sampleRecord(final float64, band model.Band) model.ConfidenceRecord {
	return model.ConfidenceRecord{
		Day:               testDay,
		Tag:               "running",
		Brand:             "Hoka",
		ScoringVersion:    "v1",
		AccelerationScore: 0.95,
		IntentScore:       0.95,
		SpreadScore:       1,
		BaselineScore:     0.95,
		SuppressionScore:  0.95,
		FinalConfidence:   final,
		Band:              band,
		Details: model.Details{
			Inputs: model.DetailInputs{MsgCount: ptr(25), SpreadRaw: 1},
			Scores: model.DetailScores{Acceleration: 0.95, Intent: 0.95, Spread: 1, Baseline: 0.95, Suppression: 0.95},
		},
		ComputedAt: testDay.Add(9 * time.Hour),
	}
}

func TestSQLite_UpsertConfidence_Overwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertConfidence(ctx, sampleRecord(0.96, model.BandHigh)))

	second := sampleRecord(0.56, model.BandWatchlist)
	reason := "TRENDS_PENALTY_DOWNGRADE"
	second.GateFailedReason = &reason
	second.Details.GoogleTrends = &model.TrendsDetail{TrendDirection: "falling", ConfidenceBoost: -0.06, BaseConfidence: 0.62, AdjustedConfidence: 0.56}
	second.ComputedAt = testDay.Add(10 * time.Hour)
	require.NoError(t, st.UpsertConfidence(ctx, second))

	got, err := st.ListConfidence(ctx, ConfidenceFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1, "upsert must not duplicate the (day, tag, brand, version) row")

	r := got[0]
	assert.Equal(t, model.BandWatchlist, r.Band)
	assert.InDelta(t, 0.56, r.FinalConfidence, 1e-12)
	require.NotNil(t, r.GateFailedReason)
	assert.Equal(t, reason, *r.GateFailedReason)
	require.NotNil(t, r.Details.GoogleTrends)
	assert.Equal(t, "falling", r.Details.GoogleTrends.TrendDirection)
	assert.Equal(t, testDay.Add(10*time.Hour), r.ComputedAt)
	require.NotNil(t, r.Details.Inputs.MsgCount)
	assert.Equal(t, 25, *r.Details.Inputs.MsgCount)
}

func TestSQLite_UpsertConfidence_VersionsCoexist(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	v1 := sampleRecord(0.96, model.BandHigh)
	v2 := sampleRecord(0.7, model.BandHigh)
	v2.ScoringVersion = "v2"
	require.NoError(t, st.UpsertConfidence(ctx, v1))
	require.NoError(t, st.UpsertConfidence(ctx, v2))

	all, err := st.ListConfidence(ctx, ConfidenceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	only, err := st.ListConfidence(ctx, ConfidenceFilter{ScoringVersion: "v2"})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.InDelta(t, 0.7, only[0].FinalConfidence, 1e-12)
}

func TestSQLite_ListConfidence_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i, b := range []string{"Hoka", "Nike", "On"} {
		r := sampleRecord(0.5+float64(i)*0.1, model.BandWatchlist)
		r.Brand = b
		if b == "On" {
			r.Band = model.BandHigh
		}
		require.NoError(t, st.UpsertConfidence(ctx, r))
	}
	other := sampleRecord(0.9, model.BandHigh)
	other.Day = testDay.AddDate(0, 0, -1)
	require.NoError(t, st.UpsertConfidence(ctx, other))

	high, err := st.ListConfidence(ctx, ConfidenceFilter{Band: model.BandHigh})
	require.NoError(t, err)
	assert.Len(t, high, 2)

	today, err := st.ListConfidence(ctx, ConfidenceFilter{Day: &testDay})
	require.NoError(t, err)
	require.Len(t, today, 3)
	assert.Equal(t, "On", today[0].Brand, "ordered by final confidence descending")

	limited, err := st.ListConfidence(ctx, ConfidenceFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	nike, err := st.ListConfidence(ctx, ConfidenceFilter{Brand: "Nike"})
	require.NoError(t, err)
	assert.Len(t, nike, 1)
}

// --- Events ---

func TestSQLite_InsertEvent_ExactlyOnce(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ev := model.SignalEvent{
		Type:     model.EventRecommendationEligible,
		Tag:      "running",
		Brand:    "Hoka",
		Day:      testDay,
		Severity: model.SeverityCritical,
		Payload:  map[string]any{"final_confidence": 0.96, "scoring_version": "v1"},
	}

	inserted, err := st.InsertEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	ev.Payload = map[string]any{"final_confidence": 0.99, "scoring_version": "v1"}
	inserted, err = st.InsertEvent(ctx, ev)
	require.NoError(t, err)
	assert.False(t, inserted, "second insert for the same key is a no-op")

	// A different type on the same key is a separate event.
	warm := ev
	warm.Type = model.EventWatchlistWarm
	warm.Severity = model.SeverityWarning
	inserted, err = st.InsertEvent(ctx, warm)
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err := st.ListEvents(ctx, EventFilter{Type: model.EventRecommendationEligible})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.96, got[0].Payload["final_confidence"], 1e-12, "first payload wins")
	assert.Equal(t, model.SeverityCritical, got[0].Severity)
	assert.Equal(t, testDay, got[0].Day)
	assert.NotEmpty(t, got[0].ID)
}

func TestSQLite_ListEvents_SinceAndLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	for i, brand := range []string{"A", "B", "C"} {
		_, err := st.InsertEvent(ctx, model.SignalEvent{
			Type:      model.EventWatchlistWarm,
			Tag:       "t",
			Brand:     brand,
			Day:       testDay,
			Severity:  model.SeverityWarning,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	since := base.Add(90 * time.Minute)
	recent, err := st.ListEvents(ctx, EventFilter{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "C", recent[0].Brand)

	limited, err := st.ListEvents(ctx, EventFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "C", limited[0].Brand, "newest first")

	byBrand, err := st.ListEvents(ctx, EventFilter{Brand: "B"})
	require.NoError(t, err)
	assert.Len(t, byBrand, 1)
}

// --- Trends audit ---

func TestSQLite_InsertTrendsValidation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	msg := "API error: 429"
	require.NoError(t, st.InsertTrendsValidation(ctx, model.TrendsValidation{
		Brand: "Hoka", TrendDirection: "unknown", QueryTerm: "Hoka", Timeframe: "today 3-m", ErrorMessage: &msg,
	}))
	require.NoError(t, st.InsertTrendsValidation(ctx, model.TrendsValidation{
		Brand: "Hoka", SearchInterest: 0.75, TrendDirection: "rising", ValidatesSignal: true,
		ConfidenceBoost: 0.1125, QueryTerm: "Hoka", Timeframe: "today 3-m", RawData: []byte(`{"mean":13.3}`),
	}))

	assert.Equal(t, 2, countTrendsValidations(t, st, "Hoka"), "audit rows are append-only")
}
