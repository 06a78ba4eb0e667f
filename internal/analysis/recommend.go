package analysis

import "github.com/mnguyen-sec/threatlens/internal/intel"

// Recommendation strings, in rule-declaration order.
const (
	RecNoKnownThreats     = "No known threats found for this indicator"
	RecContinueMonitoring = "Continue monitoring and apply standard security controls"
	RecBlockOrMonitor     = "Block or monitor this indicator according to your security policy"
	RecInvestigate        = "Immediate investigation recommended"
	RecCheckCompromise    = "Check for indicators of compromise across your environment"
	RecReviewLogs         = "Review related logs and network traffic"
	RecRunScan            = "Run a full antivirus scan on potentially affected systems"
	RecUpdateSignatures   = "Update antivirus signatures and endpoint protections"
	RecAlertUsers         = "Alert users about this phishing threat"
	RecReviewEmailControl = "Review email security controls and filtering rules"
)

var (
	malwareTypes  = []string{"malware", "trojan"}
	phishingTypes = []string{"phishing", "social-engineering"}
)

// Recommend maps the combined assessment to an ordered action list.
// The rule table is evaluated in fixed order and every matching rule
// appends; only the zero-indicator rule short-circuits.
func Recommend(level intel.ThreatLevel, threatTypes []string, indicatorsFound int) []string {
	if indicatorsFound == 0 {
		return []string{RecNoKnownThreats, RecContinueMonitoring}
	}

	recs := []string{RecBlockOrMonitor}

	if level == intel.ThreatLevelHigh || level == intel.ThreatLevelCritical {
		recs = append(recs, RecInvestigate, RecCheckCompromise, RecReviewLogs)
	}

	if intersects(threatTypes, malwareTypes) {
		recs = append(recs, RecRunScan, RecUpdateSignatures)
	}

	if intersects(threatTypes, phishingTypes) {
		recs = append(recs, RecAlertUsers, RecReviewEmailControl)
	}

	return recs
}

func intersects(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
