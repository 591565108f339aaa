//go:build !integration

package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/eva-cli/internal/engine"
	"github.com/sells-group/eva-cli/internal/model"
	"github.com/sells-group/eva-cli/internal/trends"
)

func ptr[T any](v T) *T { return &v }

func sampleStats() *engine.RunStats {
	return &engine.RunStats{
		RunID:          "run-1",
		Candidates:     5,
		Scored:         4,
		Skipped:        1,
		High:           1,
		Watchlist:      1,
		Suppressed:     2,
		Validated:      1,
		WarmEvents:     3,
		EligibleEvents: 1,
		StartedAt:      time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
		Duration:       1500 * time.Millisecond,
	}
}

func TestCheckFormat(t *testing.T) {
	assert.NoError(t, checkFormat("table"))
	assert.NoError(t, checkFormat("json"))
	err := checkFormat("csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestFormatRunStats_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, formatRunStats(&buf, sampleStats(), formatTable))

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "Scored:")
	assert.Contains(t, out, "3 warm, 1 eligible")
	assert.Contains(t, out, "1.5s")
	assert.NotContains(t, out, "Canceled")
}

func TestFormatRunStats_CanceledShown(t *testing.T) {
	s := sampleStats()
	s.Canceled = true

	var buf bytes.Buffer
	require.NoError(t, formatRunStats(&buf, s, formatTable))
	assert.Contains(t, buf.String(), "Canceled:")
}

func TestFormatRunStats_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, formatRunStats(&buf, sampleStats(), formatJSON))

	var decoded engine.RunStats
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, 4, decoded.Scored)
}

func TestFormatConfidence_Table(t *testing.T) {
	day := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	recs := []model.ConfidenceRecord{
		{Day: day, Tag: "running", Brand: "Hoka", Band: model.BandHigh, FinalConfidence: 0.96, ScoringVersion: "v1"},
		{Day: day, Tag: "running", Brand: "Crocs", Band: model.BandSuppressed, GateFailedReason: ptr("GATE_SUPPRESSION_LT_0.4"), ScoringVersion: "v1"},
	}

	var buf bytes.Buffer
	require.NoError(t, formatConfidence(&buf, recs, formatTable))

	out := buf.String()
	assert.Contains(t, out, "BRAND")
	assert.Contains(t, out, "2026-10-14")
	assert.Contains(t, out, "0.9600")
	assert.Contains(t, out, "GATE_SUPPRESSION_LT_0.4")
}

func TestFormatEvents_Table(t *testing.T) {
	events := []model.SignalEvent{{
		Type:      model.EventWatchlistWarm,
		Tag:       "running",
		Brand:     "Brooks",
		Day:       time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC),
		Severity:  model.SeverityWarning,
		Payload:   map[string]any{"reason": "WARM_SPREAD", "final_confidence": 0.6721, "scores": map[string]any{"spread": 0.8}},
		CreatedAt: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}}

	var buf bytes.Buffer
	require.NoError(t, formatEvents(&buf, events, formatTable))

	out := buf.String()
	assert.Contains(t, out, "WATCHLIST_WARM")
	assert.Contains(t, out, "final_confidence=0.6721 reason=WARM_SPREAD")
	assert.NotContains(t, out, "scores=")
}

func TestSummarizePayload(t *testing.T) {
	assert.Equal(t, "-", summarizePayload(nil))
	assert.Equal(t, "a=null b=x", summarizePayload(map[string]any{"b": "x", "a": nil}))
}

func TestFormatTrendsResult(t *testing.T) {
	ok := trends.Result{
		Validates:      true,
		SearchInterest: 0.8,
		Direction:      trends.DirectionRising,
		Adjustment:     0.05,
		QueryTerm:      "Hoka",
		Timeframe:      "today 3-m",
		Raw:            &trends.RawSeries{Values: []float64{40, 60, 80}, Mean: 60, Std: 20},
	}

	var buf bytes.Buffer
	require.NoError(t, formatTrendsResult(&buf, ok, formatTable))
	out := buf.String()
	assert.Contains(t, out, "rising")
	assert.Contains(t, out, "+0.0500")
	assert.Contains(t, out, "3 (mean 60.00, std 20.00)")

	buf.Reset()
	failed := trends.Result{QueryTerm: "Hoka", Timeframe: "today 3-m", Direction: trends.DirectionUnknown, Error: "rate limited"}
	require.NoError(t, formatTrendsResult(&buf, failed, formatTable))
	assert.Contains(t, buf.String(), "rate limited")
	assert.NotContains(t, buf.String(), "Direction")

	buf.Reset()
	require.NoError(t, formatTrendsResult(&buf, ok, formatJSON))
	var decoded trends.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, trends.DirectionRising, decoded.Direction)
}
