package confidence

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/eva-cli/internal/model"
)

// ReasonTrendsPenalty marks a candidate that reached HIGH and was then
// downgraded by cross-validation. It never coincides with a gate reason.
const ReasonTrendsPenalty = "TRENDS_PENALTY_DOWNGRADE"

// Params is the immutable scoring configuration.
type Params struct {
	Thresholds Thresholds  `json:"gates" yaml:"gates"`
	Weights    Weights     `json:"weights" yaml:"weights"`
	Bands      BandCutoffs `json:"bands" yaml:"bands"`
}

// DefaultParams returns the v1 defaults.
func DefaultParams() Params {
	return Params{
		Thresholds: DefaultThresholds(),
		Weights:    DefaultWeights(),
		Bands:      DefaultBandCutoffs(),
	}
}

// Validate checks thresholds, weights and band cutoffs.
func (p Params) Validate() error {
	if err := p.Thresholds.Validate(); err != nil {
		return err
	}
	if err := p.Weights.Validate(); err != nil {
		return err
	}
	return p.Bands.Validate()
}

// Outcome is the pure scoring result for one candidate.
type Outcome struct {
	Components Components
	SpreadRaw  float64
	Gate       GateResult
	Final      float64
	Band       model.Band
	Warm       bool
	WarmReason WarmReason
}

// Reason returns the gate failure reason, or nil when all gates passed.
func (o Outcome) Reason() *string {
	if o.Gate.Passed {
		return nil
	}
	r := o.Gate.Reason
	return &r
}

// Scorer applies a validated Params to candidate inputs.
type Scorer struct {
	params Params
}

// NewScorer validates p and returns a Scorer. Invalid configuration is
// rejected here so inconsistent bands can never be produced at run time.
func NewScorer(p Params) (*Scorer, error) {
	if err := p.Validate(); err != nil {
		return nil, eris.Wrap(err, "confidence: invalid params")
	}
	return &Scorer{params: p}, nil
}

// Params returns a copy of the scorer configuration.
func (s *Scorer) Params() Params { return s.params }

// Score normalizes, gates, combines and bands one candidate. A gate failure
// forces Final to exactly 0 and Band to SUPPRESSED without combining.
func (s *Scorer) Score(in Inputs) Outcome {
	c, raw := ComputeComponents(in)
	o := Outcome{
		Components: c,
		SpreadRaw:  raw,
		Gate:       EvaluateGates(c, s.params.Thresholds),
	}
	o.Warm, o.WarmReason = Warm(c)

	if !o.Gate.Passed {
		o.Final = 0
		o.Band = model.BandSuppressed
		return o
	}

	o.Final = Round4(Combine(c, s.params.Weights))
	o.Band = AssignBand(o.Final, s.params.Bands)
	return o
}

// Revision is a cross-validation adjustment applied to an outcome.
type Revision struct {
	BaseFinal  float64
	Final      float64
	Band       model.Band
	Downgraded bool
}

// Revise applies adjustment to o.Final, clamps to [0,1] and re-bands with the
// same cutoffs used by Score. Downgraded is set when the band drops below the
// original one.
func (s *Scorer) Revise(o Outcome, adjustment float64) Revision {
	final := Round4(Clamp(o.Final+adjustment, 0, 1))
	band := AssignBand(final, s.params.Bands)
	return Revision{
		BaseFinal:  o.Final,
		Final:      final,
		Band:       band,
		Downgraded: band.Rank() < o.Band.Rank(),
	}
}
