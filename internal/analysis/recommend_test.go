package analysis

import (
	"testing"

	"github.com/mnguyen-sec/threatlens/internal/intel"
)

// =============================================================================
// Recommendation Engine Tests
// =============================================================================

func assertRecommendations(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d recommendations, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recommendation %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

// TestRecommend_NoIndicators verifies the zero-indicator short circuit
// fires regardless of the level input.
func TestRecommend_NoIndicators(t *testing.T) {
	got := Recommend(intel.ThreatLevelCritical, []string{"malware"}, 0)
	assertRecommendations(t, got, []string{RecNoKnownThreats, RecContinueMonitoring})
}

// TestRecommend_LowSeverityHit verifies a hit with no escalating rules
// still gets the baseline action.
func TestRecommend_LowSeverityHit(t *testing.T) {
	got := Recommend(intel.ThreatLevelLow, nil, 1)
	assertRecommendations(t, got, []string{RecBlockOrMonitor})
}

// TestRecommend_CriticalMalware verifies the full ordered list for a
// critical malware indicator: baseline, then the severity triplet, then
// the malware pair.
func TestRecommend_CriticalMalware(t *testing.T) {
	got := Recommend(intel.ThreatLevelCritical, []string{"malware"}, 5)
	assertRecommendations(t, got, []string{
		RecBlockOrMonitor,
		RecInvestigate,
		RecCheckCompromise,
		RecReviewLogs,
		RecRunScan,
		RecUpdateSignatures,
	})
}

// TestRecommend_MediumMalware verifies the severity triplet is absent
// below high.
func TestRecommend_MediumMalware(t *testing.T) {
	got := Recommend(intel.ThreatLevelMedium, []string{"trojan"}, 2)
	assertRecommendations(t, got, []string{
		RecBlockOrMonitor,
		RecRunScan,
		RecUpdateSignatures,
	})
}

// TestRecommend_HighPhishing verifies the phishing pair appends after
// the severity triplet.
func TestRecommend_HighPhishing(t *testing.T) {
	got := Recommend(intel.ThreatLevelHigh, []string{"phishing"}, 3)
	assertRecommendations(t, got, []string{
		RecBlockOrMonitor,
		RecInvestigate,
		RecCheckCompromise,
		RecReviewLogs,
		RecAlertUsers,
		RecReviewEmailControl,
	})
}

// TestRecommend_MalwareAndPhishing verifies every matching rule appends
// once, in rule-declaration order.
func TestRecommend_MalwareAndPhishing(t *testing.T) {
	got := Recommend(intel.ThreatLevelCritical, []string{"social-engineering", "malware"}, 4)
	assertRecommendations(t, got, []string{
		RecBlockOrMonitor,
		RecInvestigate,
		RecCheckCompromise,
		RecReviewLogs,
		RecRunScan,
		RecUpdateSignatures,
		RecAlertUsers,
		RecReviewEmailControl,
	})
}

// TestRecommend_UnrelatedTypes verifies types outside the rule table add
// nothing.
func TestRecommend_UnrelatedTypes(t *testing.T) {
	got := Recommend(intel.ThreatLevelLow, []string{"botnet", "apt"}, 2)
	assertRecommendations(t, got, []string{RecBlockOrMonitor})
}
