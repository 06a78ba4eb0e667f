package aggregator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mnguyen-sec/threatlens/internal/intel"
)

// Trends batches recent-window queries across both sources and
// computes category frequencies, mean confidence, and high-confidence
// counts. A failing or unconfigured source contributes nothing and is
// noted in Errors; the report itself always succeeds.
func (e *Engine) Trends(ctx context.Context, windowHours int) (*TrendReport, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	since := time.Now().Add(-time.Duration(windowHours) * time.Hour)

	var providers []intel.Provider
	if e.misp != nil {
		providers = append(providers, e.misp)
	}
	if e.opencti != nil {
		providers = append(providers, e.opencti)
	}

	report := &TrendReport{
		WindowHours:  windowHours,
		Categories:   make(map[string]int),
		SourceCounts: make(map[string]int),
		GeneratedAt:  time.Now().UTC(),
	}
	for _, p := range providers {
		report.SourceCounts[p.Name()] = 0
	}

	outcomes := e.fanOut(ctx, providers, func(ctx context.Context, p intel.Provider) (intel.Record, error) {
		return p.Recent(ctx, since)
	})

	var records []intel.Record
	for _, o := range outcomes {
		if o.err != nil {
			e.logger.Warn("trend source failed", zap.String("source", o.name), zap.Error(o.err))
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", o.name, o.err))
			continue
		}
		records = append(records, o.record)
		report.SourceCounts[o.name] = o.record.Total()
		report.TotalRecords += o.record.Total()
	}

	indicators := intel.Normalize(records)
	var confidenceSum float64
	var confidenceCount, highConfidence int
	for _, ind := range indicators {
		for _, label := range ind.Labels {
			report.Categories[label]++
		}
		if ind.Confidence == nil {
			continue
		}
		confidenceSum += *ind.Confidence
		confidenceCount++
		if *ind.Confidence >= e.policy.HighConfidenceFloor {
			highConfidence++
		}
	}
	if confidenceCount > 0 {
		report.AverageConfidence = confidenceSum / float64(confidenceCount)
	}
	report.HighConfidenceCount = highConfidence

	return report, nil
}
