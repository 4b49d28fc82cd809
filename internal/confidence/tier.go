package confidence

import "github.com/rotisserie/eris"

// Tier is a coarse confidence band shown to users.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Thresholds is the single tier table shared by the web badge and the USSD
// label.
type Thresholds struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
}

// DefaultThresholds returns High ≥ 0.7, Medium ≥ 0.4.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.7, Medium: 0.4}
}

// Validate checks 0 < Medium < High ≤ 1.
func (t Thresholds) Validate() error {
	if t.Medium <= 0 || t.Medium >= t.High || t.High > 1 {
		return eris.Errorf("confidence: invalid thresholds high=%.2f medium=%.2f", t.High, t.Medium)
	}
	return nil
}

// Tier returns the band for score.
func (t Thresholds) Tier(score float64) Tier {
	switch {
	case score >= t.High:
		return TierHigh
	case score >= t.Medium:
		return TierMedium
	default:
		return TierLow
	}
}
