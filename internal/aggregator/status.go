package aggregator

import (
	"context"
	"fmt"
	"sync"

	"github.com/mnguyen-sec/threatlens/internal/intel"
)

// Status probes each configured source concurrently and reports
// reachability. Probe failures are recorded as human-readable strings;
// the status path never gates the main query path.
func (e *Engine) Status(ctx context.Context) *SourceStatus {
	status := &SourceStatus{
		Connections: map[string]bool{
			string(intel.SourceMISP):    false,
			string(intel.SourceOpenCTI): false,
		},
		Errors: []string{},
	}

	var providers []intel.Provider
	if e.misp != nil {
		providers = append(providers, e.misp)
	}
	if e.opencti != nil {
		providers = append(providers, e.opencti)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range providers {
		wg.Add(1)
		go func(p intel.Provider) {
			defer wg.Done()
			err := p.Probe(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				status.Errors = append(status.Errors, fmt.Sprintf("%s: %v", p.Name(), err))
			} else {
				status.Connections[p.Name()] = true
			}
			if e.metrics != nil {
				up := 0.0
				if err == nil {
					up = 1.0
				}
				e.metrics.SourceUp.WithLabelValues(p.Name()).Set(up)
			}
		}(p)
	}
	wg.Wait()

	return status
}
