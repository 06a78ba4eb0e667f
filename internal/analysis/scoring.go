// Package analysis derives the unified cross-source assessment from
// normalized source results: threat level, confidence, and recommended
// actions.
package analysis

import (
	"github.com/mnguyen-sec/threatlens/internal/intel"
)

// Policy holds the heuristic scoring constants. The weights and
// thresholds are tunable; the clamp-to-100 invariant is not.
type Policy struct {
	// MISPWeight is the flat contribution when MISP corroborates the
	// indicator. MISP acts as a binary known/unknown signal here.
	MISPWeight float64 `yaml:"misp_weight"`

	// OpenCTIWeight scales OpenCTI's own 0-100 confidence score.
	OpenCTIWeight float64 `yaml:"opencti_weight"`

	// HighConfidenceFloor is the trend-analysis threshold above which
	// an indicator counts as high confidence.
	HighConfidenceFloor float64 `yaml:"high_confidence_floor"`
}

// DefaultPolicy returns the default scoring constants.
func DefaultPolicy() Policy {
	return Policy{
		MISPWeight:          40,
		OpenCTIWeight:       0.6,
		HighConfidenceFloor: 80,
	}
}

// LevelContribution is one source's input to the combined threat level.
type LevelContribution struct {
	Level      intel.ThreatLevel
	Indicators int
}

// CombineThreatLevels takes the maximum severity among sources that
// returned any indicators. Within a source averaging smooths noise;
// across sources the worse signal wins, so corroboration never lowers
// urgency. No indicators from any source means low.
func CombineThreatLevels(contributions []LevelContribution) intel.ThreatLevel {
	combined := intel.ThreatLevelLow
	for _, c := range contributions {
		if c.Indicators == 0 {
			continue
		}
		if c.Level.Rank() > combined.Rank() {
			combined = c.Level
		}
	}
	return combined
}

// ThreatLevelFromConfidence buckets an OpenCTI-style mean confidence
// score into an ordinal level, giving confidence-only sources a seat in
// the max-combine step. Thresholds are policy, not law.
func ThreatLevelFromConfidence(confidence float64) intel.ThreatLevel {
	switch {
	case confidence >= 80:
		return intel.ThreatLevelCritical
	case confidence >= 60:
		return intel.ThreatLevelHigh
	case confidence >= 30:
		return intel.ThreatLevelMedium
	default:
		return intel.ThreatLevelLow
	}
}

// CombineConfidence folds the per-source confidence signals into one
// 0-100 score. MISP presence contributes a flat MISPWeight points;
// OpenCTI contributes its own confidence scaled by OpenCTIWeight. The
// sum is always clamped to [0, 100].
func (p Policy) CombineConfidence(mispPresent bool, openCTIConfidence *float64) float64 {
	var score float64
	if mispPresent {
		score += p.MISPWeight
	}
	if openCTIConfidence != nil {
		score += *openCTIConfidence * p.OpenCTIWeight
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
