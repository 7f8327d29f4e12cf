// Package severity converts weather estimates into bounded travel risk scores.
package severity

// Level is the risk category derived from a severity score.
type Level string

const (
	LevelSafe      Level = "safe"
	LevelModerate  Level = "moderate"
	LevelRisky     Level = "risky"
	LevelDangerous Level = "dangerous"
)

// Rank orders levels from safe (0) to dangerous (3). Unknown levels rank -1.
func (l Level) Rank() int {
	switch l {
	case LevelSafe:
		return 0
	case LevelModerate:
		return 1
	case LevelRisky:
		return 2
	case LevelDangerous:
		return 3
	default:
		return -1
	}
}

// Worst returns the highest-ranked of the given levels, or LevelSafe when empty.
func Worst(levels ...Level) Level {
	worst := LevelSafe
	for _, l := range levels {
		if l.Rank() > worst.Rank() {
			worst = l
		}
	}
	return worst
}

// Breakdown holds the per-factor sub-scores before weighting.
type Breakdown struct {
	Precipitation float64 `json:"precipitation" yaml:"precipitation"`
	Wind          float64 `json:"wind" yaml:"wind"`
	Temperature   float64 `json:"temperature" yaml:"temperature"`
	Condition     float64 `json:"weather_condition" yaml:"weather_condition"`
}

// Score is the risk assessment for one segment.
type Score struct {
	Severity  float64   `json:"severity_score" yaml:"severity_score"`
	Level     Level     `json:"risk_level" yaml:"risk_level"`
	Breakdown Breakdown `json:"factors" yaml:"factors"`
}
