package analysis

import (
	"testing"

	"github.com/mnguyen-sec/threatlens/internal/intel"
)

func fptr(v float64) *float64 { return &v }

// =============================================================================
// Threat Level Combination Tests
// =============================================================================

// TestCombineThreatLevels_MaxWins verifies cross-source combination
// always takes the worse signal.
func TestCombineThreatLevels_MaxWins(t *testing.T) {
	tests := []struct {
		name          string
		contributions []LevelContribution
		want          intel.ThreatLevel
	}{
		{
			"no sources",
			nil,
			intel.ThreatLevelLow,
		},
		{
			"single source",
			[]LevelContribution{{Level: intel.ThreatLevelMedium, Indicators: 2}},
			intel.ThreatLevelMedium,
		},
		{
			"critical beats low",
			[]LevelContribution{
				{Level: intel.ThreatLevelLow, Indicators: 1},
				{Level: intel.ThreatLevelCritical, Indicators: 3},
			},
			intel.ThreatLevelCritical,
		},
		{
			"order does not matter",
			[]LevelContribution{
				{Level: intel.ThreatLevelHigh, Indicators: 3},
				{Level: intel.ThreatLevelMedium, Indicators: 1},
			},
			intel.ThreatLevelHigh,
		},
		{
			"empty source is ignored",
			[]LevelContribution{
				{Level: intel.ThreatLevelCritical, Indicators: 0},
				{Level: intel.ThreatLevelMedium, Indicators: 2},
			},
			intel.ThreatLevelMedium,
		},
		{
			"all sources empty",
			[]LevelContribution{
				{Level: intel.ThreatLevelCritical, Indicators: 0},
				{Level: intel.ThreatLevelHigh, Indicators: 0},
			},
			intel.ThreatLevelLow,
		},
	}

	for _, tt := range tests {
		if got := CombineThreatLevels(tt.contributions); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}

// TestCombineThreatLevels_Monotonic verifies that adding evidence from
// another source never lowers the combined severity.
func TestCombineThreatLevels_Monotonic(t *testing.T) {
	levels := []intel.ThreatLevel{
		intel.ThreatLevelLow,
		intel.ThreatLevelMedium,
		intel.ThreatLevelHigh,
		intel.ThreatLevelCritical,
	}

	for _, base := range levels {
		for _, extra := range levels {
			before := CombineThreatLevels([]LevelContribution{
				{Level: base, Indicators: 1},
			})
			after := CombineThreatLevels([]LevelContribution{
				{Level: base, Indicators: 1},
				{Level: extra, Indicators: 1},
			})
			if after.Rank() < before.Rank() {
				t.Errorf("adding %s evidence lowered %s to %s", extra, before, after)
			}
		}
	}
}

// TestThreatLevelFromConfidence verifies the confidence bucket edges.
func TestThreatLevelFromConfidence(t *testing.T) {
	tests := []struct {
		confidence float64
		want       intel.ThreatLevel
	}{
		{0, intel.ThreatLevelLow},
		{29.9, intel.ThreatLevelLow},
		{30, intel.ThreatLevelMedium},
		{59.9, intel.ThreatLevelMedium},
		{60, intel.ThreatLevelHigh},
		{79.9, intel.ThreatLevelHigh},
		{80, intel.ThreatLevelCritical},
		{100, intel.ThreatLevelCritical},
	}

	for _, tt := range tests {
		if got := ThreatLevelFromConfidence(tt.confidence); got != tt.want {
			t.Errorf("confidence %f: expected %s, got %s", tt.confidence, tt.want, got)
		}
	}
}

// =============================================================================
// Confidence Combination Tests
// =============================================================================

// TestCombineConfidence verifies the weighted sum and the clamp.
func TestCombineConfidence(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name        string
		mispPresent bool
		openCTI     *float64
		want        float64
	}{
		{"nothing found", false, nil, 0},
		{"misp only", true, nil, 40},
		{"opencti only", false, fptr(50), 30},
		{"both sources", true, fptr(50), 70},
		{"opencti zero still counts misp", true, fptr(0), 40},
		{"clamped at 100", true, fptr(100.5), 100},
	}

	for _, tt := range tests {
		if got := policy.CombineConfidence(tt.mispPresent, tt.openCTI); got != tt.want {
			t.Errorf("%s: expected %f, got %f", tt.name, tt.want, got)
		}
	}
}

// TestCombineConfidence_Bounds verifies the result stays in [0, 100]
// across a sweep of inputs, including hostile weights.
func TestCombineConfidence_Bounds(t *testing.T) {
	policies := []Policy{
		DefaultPolicy(),
		{MISPWeight: 90, OpenCTIWeight: 1.0, HighConfidenceFloor: 80},
		{MISPWeight: -10, OpenCTIWeight: 0.6, HighConfidenceFloor: 80},
	}

	for _, policy := range policies {
		for _, present := range []bool{false, true} {
			for conf := 0.0; conf <= 100; conf += 12.5 {
				got := policy.CombineConfidence(present, &conf)
				if got < 0 || got > 100 {
					t.Errorf("confidence %f out of bounds for policy %+v (misp=%v, opencti=%f)",
						got, policy, present, conf)
				}
			}
		}
	}
}
