package types

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Level returns a numeric level for comparison.
// Higher values mean more consequential.
func (r RiskLevel) Level() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return -1
	}
}

// AtLeast returns true if r is as consequential as other or more.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.Level() >= other.Level()
}

// Max returns the more consequential of the two levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.Level() > r.Level() {
		return other
	}
	return r
}

func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh:
		return RiskLevel(s), true
	default:
		return "", false
	}
}
