package aggregator

import (
	"context"
	"fmt"
	"sync"

	"github.com/mnguyen-sec/threatlens/internal/intel"
)

const (
	// MaxBulkQueries caps the number of queries in one bulk request.
	MaxBulkQueries = 100

	// bulkConcurrency bounds how many queries run at once.
	bulkConcurrency = 8
)

// BulkQuery processes a batch of queries with bounded concurrency in
// an all-settled pattern: each query's success or failure is recorded
// independently and one query's error never aborts its siblings. A
// batch over the cap is rejected before any adapter call is made.
func (e *Engine) BulkQuery(ctx context.Context, queries []intel.Query) (*BulkResult, error) {
	if len(queries) > MaxBulkQueries {
		return nil, fmt.Errorf("%w: got %d queries, maximum is %d", intel.ErrBulkLimit, len(queries), MaxBulkQueries)
	}
	if e.metrics != nil {
		e.metrics.BulkBatchSize.Observe(float64(len(queries)))
	}

	results := make([]BulkItem, len(queries))
	sem := make(chan struct{}, bulkConcurrency)

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q intel.Query) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := e.Query(ctx, q)
			if err != nil {
				results[i] = BulkItem{Query: q, Status: StatusRejected, Error: err.Error()}
				return
			}
			results[i] = BulkItem{Query: q, Status: StatusFulfilled, Data: res}
		}(i, q)
	}
	wg.Wait()

	successful := 0
	for _, item := range results {
		if item.Status == StatusFulfilled {
			successful++
		}
	}

	return &BulkResult{
		TotalQueries: len(queries),
		Successful:   successful,
		Failed:       len(queries) - successful,
		Results:      results,
	}, nil
}
