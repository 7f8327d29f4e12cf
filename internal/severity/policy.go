package severity

// Policy holds the scoring weights, caps and thresholds.
// The values are fixed policy constants and are not loaded from configuration.
type Policy struct {
	// PrecipitationPerMM is the sub-score per millimetre of precipitation.
	PrecipitationPerMM float64
	// WindPerKMH is the sub-score per km/h of wind speed.
	WindPerKMH float64
	// FactorCap bounds the precipitation and wind sub-scores.
	FactorCap float64

	// FreezingBelowC and HeatAboveC bound the benign temperature range.
	FreezingBelowC float64
	HeatAboveC     float64
	FreezingScore  float64
	HeatScore      float64

	// Weights applied to each sub-score. They sum to 1.
	PrecipitationWeight float64
	WindWeight          float64
	TemperatureWeight   float64
	ConditionWeight     float64

	// DistanceSaturationMeters is the segment length at which the distance
	// amplification stops growing.
	DistanceSaturationMeters float64
	// DistanceAmplification is the extra fraction applied at saturation.
	DistanceAmplification float64

	// Conditions maps WMO codes to condition sub-scores.
	Conditions map[int]float64
	// UnknownCondition is the sub-score for codes missing from Conditions.
	UnknownCondition float64

	// Level thresholds: severity below ModerateAt is safe, below RiskyAt is
	// moderate, below DangerousAt is risky, otherwise dangerous.
	ModerateAt  float64
	RiskyAt     float64
	DangerousAt float64

	// Values substituted for missing estimate fields.
	DefaultTemperature float64
}

// DefaultPolicy returns the standard scoring policy.
func DefaultPolicy() Policy {
	return Policy{
		PrecipitationPerMM: 10,
		WindPerKMH:         2,
		FactorCap:          100,

		FreezingBelowC: 0,
		HeatAboveC:     35,
		FreezingScore:  30,
		HeatScore:      20,

		PrecipitationWeight: 0.4,
		WindWeight:          0.3,
		TemperatureWeight:   0.15,
		ConditionWeight:     0.15,

		DistanceSaturationMeters: 5000,
		DistanceAmplification:    0.2,

		Conditions:       defaultConditions(),
		UnknownCondition: 20,

		ModerateAt:  20,
		RiskyAt:     50,
		DangerousAt: 75,

		DefaultTemperature: 15,
	}
}

func defaultConditions() map[int]float64 {
	table := map[float64][]int{
		0:  {0},
		5:  {1, 2},
		10: {3},
		25: {45, 48},
		30: {51, 53, 55},
		50: {61, 63, 65},
		60: {66, 67},
		55: {71, 73, 75, 77},
		65: {80, 81, 82},
		70: {85, 86},
		90: {95, 96, 99},
	}

	conditions := make(map[int]float64)
	for score, codes := range table {
		for _, code := range codes {
			conditions[code] = score
		}
	}
	return conditions
}

// Level categorizes a severity score.
func (p Policy) Level(severity float64) Level {
	switch {
	case severity < p.ModerateAt:
		return LevelSafe
	case severity < p.RiskyAt:
		return LevelModerate
	case severity < p.DangerousAt:
		return LevelRisky
	default:
		return LevelDangerous
	}
}

// Condition returns the sub-score for a WMO weather code.
func (p Policy) Condition(code int) float64 {
	if score, ok := p.Conditions[code]; ok {
		return score
	}
	return p.UnknownCondition
}
