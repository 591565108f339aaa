package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/eva-cli/internal/confidence"
	"github.com/sells-group/eva-cli/internal/model"
	"github.com/sells-group/eva-cli/internal/trends"
)

// scored is the state of one candidate after scoring and reconciliation.
type scored struct {
	outcome confidence.Outcome
	final   float64
	band    model.Band
	reason  *string
	trends  *model.TrendsDetail
}

// process scores one candidate and writes its side effects in order: warm
// event, confidence record, eligible event. A panic is turned into an error.
func (e *Engine) process(ctx context.Context, c model.Candidate, now time.Time, st *counters) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("engine: panic scoring %s: %v", c.Key(), r)
		}
	}()

	s := e.score(ctx, c, now, st)

	if s.outcome.Warm && s.band != model.BandHigh {
		inserted, err := e.store.InsertEvent(ctx, e.warmEvent(c, s, now))
		if err != nil {
			return eris.Wrap(err, "engine: warm event")
		}
		if inserted {
			st.warm.Add(1)
		}
	}

	if err := e.store.UpsertConfidence(ctx, e.record(c, s, now)); err != nil {
		return eris.Wrap(err, "engine: upsert confidence")
	}
	st.scored.Add(1)
	st.band(s.band)

	if s.band == model.BandHigh {
		inserted, err := e.store.InsertEvent(ctx, e.eligibleEvent(c, s, now))
		if err != nil {
			return eris.Wrap(err, "engine: eligible event")
		}
		if inserted {
			st.eligible.Add(1)
		}
	}

	e.log.Debug("engine: candidate scored",
		zap.String("brand", c.Brand),
		zap.String("tag", c.Tag),
		zap.String("band", string(s.band)),
		zap.Float64("final", s.final),
	)
	return nil
}

// score runs the scorer and, for qualifying HIGH outcomes, reconciles the
// result against the cross-validator.
func (e *Engine) score(ctx context.Context, c model.Candidate, now time.Time, st *counters) scored {
	o := e.scorer.Score(confidence.Inputs{
		DeltaPct:         c.DeltaPct,
		MsgCount:         c.MsgCount,
		SourceCount:      c.SourceCount,
		PlatformCount:    c.PlatformCount,
		ActionIntentRate: c.ActionIntentRate,
		MemeRisk:         c.MemeRisk,
	})
	s := scored{outcome: o, final: o.Final, band: o.Band, reason: o.Reason()}

	if !e.crossValidationEnabled() || o.Band != model.BandHigh || o.Final < e.minConfidence {
		return s
	}

	res := e.validator.Validate(ctx, c.Brand)
	st.validated.Add(1)
	e.audit(ctx, c.Brand, res, now)

	s.trends = &model.TrendsDetail{
		ValidatesSignal:    res.Validates,
		SearchInterest:     res.SearchInterest,
		TrendDirection:     string(res.Direction),
		ConfidenceBoost:    res.Adjustment,
		BaseConfidence:     o.Final,
		AdjustedConfidence: o.Final,
		Cached:             res.Cached,
		Error:              res.Error,
	}
	if !res.OK() {
		return s
	}

	rev := e.scorer.Revise(o, res.Adjustment)
	s.final, s.band = rev.Final, rev.Band
	s.trends.AdjustedConfidence = rev.Final
	if rev.Downgraded {
		reason := confidence.ReasonTrendsPenalty
		s.reason = &reason
		st.downgraded.Add(1)
		e.log.Info("engine: downgraded by cross-validation",
			zap.String("brand", c.Brand),
			zap.Float64("base", rev.BaseFinal),
			zap.Float64("adjusted", rev.Final),
			zap.String("band", string(rev.Band)),
		)
	}
	return s
}

// audit appends the lookup to the trends audit table. Failures are logged only.
func (e *Engine) audit(ctx context.Context, brand string, res trends.Result, now time.Time) {
	row := model.TrendsValidation{
		Brand:           brand,
		CheckedAt:       now,
		SearchInterest:  res.SearchInterest,
		TrendDirection:  string(res.Direction),
		ValidatesSignal: res.Validates,
		ConfidenceBoost: res.Adjustment,
		QueryTerm:       res.QueryTerm,
		Timeframe:       res.Timeframe,
	}
	if res.Raw != nil {
		if raw, err := json.Marshal(res.Raw); err == nil {
			row.RawData = raw
		}
	}
	if res.Error != "" {
		msg := res.Error
		row.ErrorMessage = &msg
	}
	if err := e.store.InsertTrendsValidation(ctx, row); err != nil {
		e.log.Warn("engine: trends audit insert failed", zap.String("brand", brand), zap.Error(err))
	}
}

func (e *Engine) record(c model.Candidate, s scored, now time.Time) model.ConfidenceRecord {
	comp := s.outcome.Components
	return model.ConfidenceRecord{
		Day:               c.Day,
		Tag:               c.Tag,
		Brand:             c.Brand,
		ScoringVersion:    e.version,
		AccelerationScore: comp.Acceleration,
		IntentScore:       comp.Intent,
		SpreadScore:       comp.Spread,
		BaselineScore:     comp.Baseline,
		SuppressionScore:  comp.Suppression,
		FinalConfidence:   s.final,
		Band:              s.band,
		GateFailedReason:  s.reason,
		Details: model.Details{
			Inputs: model.DetailInputs{
				DeltaPct:         c.DeltaPct,
				MsgCount:         c.MsgCount,
				SourceCount:      c.SourceCount,
				PlatformCount:    c.PlatformCount,
				ActionIntentRate: c.ActionIntentRate,
				EvalIntentRate:   c.EvalIntentRate,
				MemeRisk:         c.MemeRisk,
				SpreadRaw:        s.outcome.SpreadRaw,
			},
			Scores: model.DetailScores{
				Acceleration: comp.Acceleration,
				Intent:       comp.Intent,
				Spread:       comp.Spread,
				Baseline:     comp.Baseline,
				Suppression:  comp.Suppression,
			},
			GoogleTrends: s.trends,
		},
		ComputedAt: now,
	}
}

func (e *Engine) warmEvent(c model.Candidate, s scored, now time.Time) model.SignalEvent {
	var reason any
	if s.reason != nil {
		reason = *s.reason
	}
	comp := s.outcome.Components
	return model.SignalEvent{
		Type:     model.EventWatchlistWarm,
		Tag:      c.Tag,
		Brand:    c.Brand,
		Day:      c.Day,
		Severity: model.SeverityWarning,
		Payload: map[string]any{
			"reason":             string(s.outcome.WarmReason),
			"band":               string(s.band),
			"gate_failed_reason": reason,
			"final_confidence":   s.final,
			"scores": map[string]any{
				"acceleration": comp.Acceleration,
				"intent":       comp.Intent,
				"spread":       comp.Spread,
			},
			"scoring_version": e.version,
		},
		CreatedAt: now,
	}
}

func (e *Engine) eligibleEvent(c model.Candidate, s scored, now time.Time) model.SignalEvent {
	return model.SignalEvent{
		Type:     model.EventRecommendationEligible,
		Tag:      c.Tag,
		Brand:    c.Brand,
		Day:      c.Day,
		Severity: model.SeverityCritical,
		Payload: map[string]any{
			"final_confidence": s.final,
			"scoring_version":  e.version,
		},
		CreatedAt: now,
	}
}
