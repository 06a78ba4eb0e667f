package aggregator

import (
	"time"

	"github.com/mnguyen-sec/threatlens/internal/intel"
)

// Analysis is the canonical cross-source view of a query result.
type Analysis struct {
	OverallThreatLevel intel.ThreatLevel `json:"overall_threat_level"`
	Confidence         float64           `json:"confidence"`
	IndicatorsFound    int               `json:"indicators_found"`
	ThreatTypes        []string          `json:"threat_types"`
	Recommendations    []string          `json:"recommendations"`
	LastSeen           *time.Time        `json:"last_seen,omitempty"`
}

// Result is the unified assessment for one query. Sources holds one
// summary per backend that answered; a failed source is simply absent.
type Result struct {
	Query     intel.Query                    `json:"query"`
	Sources   map[string]intel.SourceSummary `json:"sources"`
	Analysis  Analysis                       `json:"analysis"`
	Timestamp time.Time                      `json:"timestamp"`
}

// Bulk query item statuses, following the all-settled naming.
const (
	StatusFulfilled = "fulfilled"
	StatusRejected  = "rejected"
)

// BulkItem is the settled outcome of one query in a bulk request.
type BulkItem struct {
	Query  intel.Query `json:"query"`
	Status string      `json:"status"`
	Data   *Result     `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// BulkResult reports per-query outcomes for a bulk request.
type BulkResult struct {
	TotalQueries int        `json:"total_queries"`
	Successful   int        `json:"successful"`
	Failed       int        `json:"failed"`
	Results      []BulkItem `json:"results"`
}

// TrendReport summarizes recent activity across both sources.
type TrendReport struct {
	WindowHours         int            `json:"window_hours"`
	TotalRecords        int            `json:"total_records"`
	Categories          map[string]int `json:"categories"`
	AverageConfidence   float64        `json:"average_confidence"`
	HighConfidenceCount int            `json:"high_confidence_count"`
	SourceCounts        map[string]int `json:"source_counts"`
	Errors              []string       `json:"errors,omitempty"`
	GeneratedAt         time.Time      `json:"generated_at"`
}

// SourceStatus reports connectivity per configured source.
type SourceStatus struct {
	Connections map[string]bool `json:"connections"`
	Errors      []string        `json:"errors"`
}
