package metricsource

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentQueries caps in-flight queries per cycle.
const maxConcurrentQueries = 8

// QueryAll runs every query concurrently and waits for all of them.
// A failed query yields a Result with Err set; it never cancels its
// siblings. Results are returned in the order of queries.
func QueryAll(ctx context.Context, src Source, queries []Query) []Result {
	results := make([]Result, len(queries))

	var g errgroup.Group
	g.SetLimit(maxConcurrentQueries)

	for i, q := range queries {
		g.Go(func() error {
			samples, err := src.Query(ctx, q)
			if err != nil {
				samples = nil
			}
			results[i] = Result{Name: q.Name, Samples: samples, Err: err}
			return nil
		})
	}

	_ = g.Wait()
	return results
}
