// Package aggregator correlates results from the configured threat
// intelligence sources into one decision-grade assessment. Adapter
// calls fan out concurrently; partial success is a valid terminal
// outcome, not a failure.
package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mnguyen-sec/threatlens/internal/analysis"
	"github.com/mnguyen-sec/threatlens/internal/intel"
	"github.com/mnguyen-sec/threatlens/internal/observability"
)

// Cache is an optional read-through store for serialized results.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// Options configures an Engine. MISP and OpenCTI are nil when that
// source has no credentials; both nil is allowed and every query then
// fails with intel.ErrNotConfigured.
type Options struct {
	MISP    intel.Provider
	OpenCTI intel.Provider
	Policy  analysis.Policy
	Cache   Cache
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// Engine is the query-time aggregation engine. It is stateless between
// calls; configuration is fixed at construction.
type Engine struct {
	misp    intel.Provider
	opencti intel.Provider
	policy  analysis.Policy
	cache   Cache
	metrics *observability.Metrics
	logger  *zap.Logger
}

// New creates an aggregation engine.
func New(opts Options) *Engine {
	policy := opts.Policy
	if policy == (analysis.Policy{}) {
		policy = analysis.DefaultPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		misp:    opts.MISP,
		opencti: opts.OpenCTI,
		policy:  policy,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// ConfiguredSources reports which backends have credentials.
func (e *Engine) ConfiguredSources() map[string]bool {
	return map[string]bool{
		string(intel.SourceMISP):    e.misp != nil,
		string(intel.SourceOpenCTI): e.opencti != nil,
	}
}

// Query runs one lookup against the requested sources and correlates
// whatever succeeded. It returns an error only when the query is
// invalid, an explicitly requested source is unconfigured, or every
// requested source failed.
func (e *Engine) Query(ctx context.Context, q intel.Query) (*Result, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	providers, err := e.requestedProviders(q)
	if err != nil {
		return nil, err
	}

	key := cacheKey(q)
	if e.cache != nil {
		if payload, ok := e.cache.Get(ctx, key); ok {
			var cached Result
			if json.Unmarshal(payload, &cached) == nil {
				if e.metrics != nil {
					e.metrics.CacheHits.Inc()
				}
				return &cached, nil
			}
		}
		if e.metrics != nil {
			e.metrics.CacheMisses.Inc()
		}
	}

	outcomes := e.fanOut(ctx, providers, func(ctx context.Context, p intel.Provider) (intel.Record, error) {
		return p.Search(ctx, q)
	})

	var records []intel.Record
	var failures []error
	for _, o := range outcomes {
		if o.err != nil {
			e.logger.Warn("source query failed",
				zap.String("source", o.name),
				zap.String("value", q.Value),
				zap.Error(o.err))
			failures = append(failures, fmt.Errorf("%s: %w", o.name, o.err))
			continue
		}
		records = append(records, o.record)
	}

	if len(records) == 0 {
		if e.metrics != nil {
			e.metrics.QueriesTotal.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("all requested sources failed: %w", errors.Join(failures...))
	}

	result := e.buildResult(q, records)

	if e.cache != nil {
		if payload, err := json.Marshal(result); err == nil {
			e.cache.Set(ctx, key, payload)
		}
	}
	if e.metrics != nil {
		status := "success"
		if len(failures) > 0 {
			status = "partial"
		}
		e.metrics.QueriesTotal.WithLabelValues(status).Inc()
	}

	return result, nil
}

func validateQuery(q intel.Query) error {
	if strings.TrimSpace(q.Value) == "" {
		return fmt.Errorf("%w: value must not be empty", intel.ErrInvalidQuery)
	}
	if !q.Type.Valid() {
		return fmt.Errorf("%w: unknown query type %q", intel.ErrInvalidQuery, q.Type)
	}
	if !q.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", intel.ErrInvalidQuery, q.Source)
	}
	return nil
}

// requestedProviders resolves the query's source selector against the
// configured adapters. An explicitly requested but unconfigured source
// is an immediate error; with the default selector, unconfigured
// sources are silently skipped.
func (e *Engine) requestedProviders(q intel.Query) ([]intel.Provider, error) {
	var providers []intel.Provider

	switch q.Source {
	case intel.SourceMISP:
		if e.misp == nil {
			return nil, fmt.Errorf("%w: misp was requested but has no credentials", intel.ErrNotConfigured)
		}
		providers = append(providers, e.misp)
	case intel.SourceOpenCTI:
		if e.opencti == nil {
			return nil, fmt.Errorf("%w: opencti was requested but has no credentials", intel.ErrNotConfigured)
		}
		providers = append(providers, e.opencti)
	default:
		if e.misp != nil {
			providers = append(providers, e.misp)
		}
		if e.opencti != nil {
			providers = append(providers, e.opencti)
		}
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: no threat intelligence sources configured", intel.ErrNotConfigured)
	}
	return providers, nil
}

type sourceOutcome struct {
	name   string
	record intel.Record
	err    error
}

// fanOut runs one adapter call per provider concurrently and joins
// them. The caller's context bounds every call, so an elapsed deadline
// abandons stragglers and the settled outcomes carry their errors.
func (e *Engine) fanOut(ctx context.Context, providers []intel.Provider, call func(context.Context, intel.Provider) (intel.Record, error)) []sourceOutcome {
	outcomes := make([]sourceOutcome, len(providers))

	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p intel.Provider) {
			defer wg.Done()
			start := time.Now()
			record, err := call(ctx, p)
			e.observeSource(p.Name(), start, err)
			outcomes[i] = sourceOutcome{name: p.Name(), record: record, err: err}
		}(i, p)
	}
	wg.Wait()

	return outcomes
}

func (e *Engine) observeSource(name string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.SourceQueries.WithLabelValues(name, status).Inc()
	e.metrics.SourceDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

// buildResult derives the unified analysis from the successful records.
func (e *Engine) buildResult(q intel.Query, records []intel.Record) *Result {
	sources := make(map[string]intel.SourceSummary, len(records))
	contributions := make([]analysis.LevelContribution, 0, len(records))

	var mispPresent bool
	var openCTIConfidence *float64
	indicatorsFound := 0

	for _, rec := range records {
		sources[rec.SourceName()] = rec.Summary()
		indicatorsFound += rec.Total()

		switch r := rec.(type) {
		case *intel.MISPRecord:
			contributions = append(contributions, analysis.LevelContribution{
				Level:      r.ThreatLevel,
				Indicators: r.TotalCount,
			})
			if r.TotalCount > 0 {
				mispPresent = true
			}
		case *intel.OpenCTIRecord:
			contributions = append(contributions, analysis.LevelContribution{
				Level:      analysis.ThreatLevelFromConfidence(r.ConfidenceScore),
				Indicators: r.TotalCount,
			})
			score := r.ConfidenceScore
			openCTIConfidence = &score
		}
	}

	indicators := intel.Normalize(records)
	threatTypes := dedupLabels(indicators)
	level := analysis.CombineThreatLevels(contributions)

	return &Result{
		Query:   q,
		Sources: sources,
		Analysis: Analysis{
			OverallThreatLevel: level,
			Confidence:         e.policy.CombineConfidence(mispPresent, openCTIConfidence),
			IndicatorsFound:    indicatorsFound,
			ThreatTypes:        threatTypes,
			Recommendations:    analysis.Recommend(level, threatTypes, indicatorsFound),
			LastSeen:           latestObserved(indicators),
		},
		Timestamp: time.Now().UTC(),
	}
}

// dedupLabels collects the distinct labels across all indicators,
// sorted for deterministic output.
func dedupLabels(indicators []intel.NormalizedIndicator) []string {
	seen := make(map[string]struct{})
	labels := make([]string, 0)
	for _, ind := range indicators {
		for _, label := range ind.Labels {
			if _, ok := seen[label]; ok {
				continue
			}
			seen[label] = struct{}{}
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels
}

func latestObserved(indicators []intel.NormalizedIndicator) *time.Time {
	var latest *time.Time
	for _, ind := range indicators {
		if ind.ObservedAt == nil {
			continue
		}
		if latest == nil || ind.ObservedAt.After(*latest) {
			t := *ind.ObservedAt
			latest = &t
		}
	}
	return latest
}

func cacheKey(q intel.Query) string {
	source := q.Source
	if source == "" {
		source = intel.SourceBoth
	}
	return fmt.Sprintf("intel:%s:%s:%s", q.Type, strings.ToLower(q.Value), source)
}
