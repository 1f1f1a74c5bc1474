package model

// Confidence level thresholds.
const (
	ReliableConfidence = 0.7
	HighConfidence     = 0.8
	MediumConfidence   = 0.5
)

// ConfidenceScore is a categorization certainty measure clamped to [0, 1].
type ConfidenceScore float64

// NewConfidenceScore clamps the given value into the valid range.
func NewConfidenceScore(v float64) ConfidenceScore {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return ConfidenceScore(v)
	}
}

// Value returns the score as a plain float64.
func (c ConfidenceScore) Value() float64 {
	return float64(c)
}

// IsReliable reports whether the score meets the auto-apply threshold.
func (c ConfidenceScore) IsReliable() bool {
	return float64(c) >= ReliableConfidence
}

// Level buckets the score into "high", "medium", or "low".
func (c ConfidenceScore) Level() string {
	switch {
	case float64(c) >= HighConfidence:
		return "high"
	case float64(c) >= MediumConfidence:
		return "medium"
	default:
		return "low"
	}
}
