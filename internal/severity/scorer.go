package severity

import (
	"math"

	"github.com/pathpredict/pathpredict/internal/weather"
)

// Scorer computes segment risk scores under a policy. It holds no mutable
// state and is safe for concurrent use.
type Scorer struct {
	policy Policy
}

// NewScorer creates a scorer. A zero policy is replaced by DefaultPolicy.
func NewScorer(policy Policy) *Scorer {
	if policy.Conditions == nil {
		policy = DefaultPolicy()
	}
	return &Scorer{policy: policy}
}

// Policy returns the scorer's policy.
func (s *Scorer) Policy() Policy {
	return s.policy
}

// Score rates the weather estimate for a segment of the given length.
// Missing estimate fields take benign defaults.
func (s *Scorer) Score(est weather.Estimate, segmentMeters float64) Score {
	p := s.policy

	temperature := valueOr(est.Temperature, p.DefaultTemperature)
	precipitation := math.Max(valueOr(est.Precipitation, 0), 0)
	wind := math.Max(valueOr(est.WindSpeed, 0), 0)

	b := Breakdown{
		Precipitation: math.Min(precipitation*p.PrecipitationPerMM, p.FactorCap),
		Wind:          math.Min(wind*p.WindPerKMH, p.FactorCap),
		Condition:     p.Condition(est.Code),
	}
	switch {
	case temperature < p.FreezingBelowC:
		b.Temperature = p.FreezingScore
	case temperature > p.HeatAboveC:
		b.Temperature = p.HeatScore
	}

	raw := b.Precipitation*p.PrecipitationWeight +
		b.Wind*p.WindWeight +
		b.Temperature*p.TemperatureWeight +
		b.Condition*p.ConditionWeight

	severity := Round(raw * (1 + p.DistanceAmplification*s.distanceFactor(segmentMeters)))

	return Score{
		Severity: severity,
		Level:    p.Level(severity),
		Breakdown: Breakdown{
			Precipitation: Round(b.Precipitation),
			Wind:          Round(b.Wind),
			Temperature:   Round(b.Temperature),
			Condition:     Round(b.Condition),
		},
	}
}

// distanceFactor scales linearly from 0 to 1 up to the saturation distance.
func (s *Scorer) distanceFactor(meters float64) float64 {
	if !(meters > 0) || s.policy.DistanceSaturationMeters <= 0 {
		return 0
	}
	return math.Min(meters, s.policy.DistanceSaturationMeters) / s.policy.DistanceSaturationMeters
}

// Round rounds to two decimal places.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}

func valueOr(v *float64, def float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return def
	}
	return *v
}
