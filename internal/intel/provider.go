// Package intel provides threat intelligence source adapters and the
// canonical types shared by the aggregation engine.
package intel

import (
	"context"
	"time"
)

// QueryType represents the type of indicator being looked up.
type QueryType string

const (
	QueryTypeIP     QueryType = "ip"
	QueryTypeDomain QueryType = "domain"
	QueryTypeHash   QueryType = "hash"
	QueryTypeURL    QueryType = "url"
	QueryTypeEmail  QueryType = "email"
	QueryTypeCVE    QueryType = "cve"
)

// Valid reports whether the query type is one of the supported kinds.
func (t QueryType) Valid() bool {
	switch t {
	case QueryTypeIP, QueryTypeDomain, QueryTypeHash, QueryTypeURL, QueryTypeEmail, QueryTypeCVE:
		return true
	}
	return false
}

// Source identifies which backends a query targets.
type Source string

const (
	SourceMISP    Source = "misp"
	SourceOpenCTI Source = "opencti"
	SourceBoth    Source = "both"
)

// Valid reports whether the source selector is recognized. The empty
// string is valid and means "both".
func (s Source) Valid() bool {
	switch s {
	case "", SourceMISP, SourceOpenCTI, SourceBoth:
		return true
	}
	return false
}

// Query is a single threat intelligence lookup request.
type Query struct {
	Type   QueryType `json:"type"`
	Value  string    `json:"value"`
	Source Source    `json:"source,omitempty"`
}

// ThreatLevel is the ordinal severity bucket for an assessment.
type ThreatLevel string

const (
	ThreatLevelLow      ThreatLevel = "low"
	ThreatLevelMedium   ThreatLevel = "medium"
	ThreatLevelHigh     ThreatLevel = "high"
	ThreatLevelCritical ThreatLevel = "critical"
)

// Rank returns the ordering position of a threat level, low being 0.
// Unknown values rank below low so they never win a max comparison.
func (l ThreatLevel) Rank() int {
	switch l {
	case ThreatLevelLow:
		return 0
	case ThreatLevelMedium:
		return 1
	case ThreatLevelHigh:
		return 2
	case ThreatLevelCritical:
		return 3
	}
	return -1
}

// NormalizedIndicator is the canonical cross-source indicator shape.
// Confidence and ObservedAt are nil when the source did not supply them.
type NormalizedIndicator struct {
	Source     string     `json:"source"`
	Labels     []string   `json:"labels"`
	Confidence *float64   `json:"confidence,omitempty"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

// SourceSummary is the per-source slice of an aggregated result. The
// event fields are populated for MISP, the indicator fields for OpenCTI;
// both expose a total count.
type SourceSummary struct {
	TotalCount      int                `json:"total_count"`
	Events          []MISPEvent        `json:"events,omitempty"`
	ThreatLevel     ThreatLevel        `json:"threat_level,omitempty"`
	Indicators      []OpenCTIIndicator `json:"indicators,omitempty"`
	ConfidenceScore *float64           `json:"confidence_score,omitempty"`
}

// Record is a per-source, pre-normalization search result. Each adapter
// owns its concrete record type; the normalizer is the only consumer
// that branches on the backend shape.
type Record interface {
	SourceName() string
	Total() int
	Summary() SourceSummary
}

// Provider is the interface implemented by each source adapter.
type Provider interface {
	Name() string

	// Search looks up a single indicator value.
	Search(ctx context.Context, q Query) (Record, error)

	// Recent returns records created since the given time, used by the
	// trend analysis path.
	Recent(ctx context.Context, since time.Time) (Record, error)

	// Probe issues a lightweight authenticated liveness check.
	Probe(ctx context.Context) error
}
