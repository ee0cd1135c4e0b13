package metricsource

import (
	"context"
	"time"
)

// DefaultTimeout bounds a device telemetry query when none is configured.
const DefaultTimeout = 8 * time.Second

// Sample is one labeled value returned by a query. Samples are consumed
// once by the reconciler and never retained.
type Sample struct {
	Labels      map[string]string
	Value       float64
	TimestampMs int64
}

// Query is a named, independently configured expression.
type Query struct {
	// Name identifies the query in cycle error summaries.
	Name string
	// Expr is the expression sent to the backend.
	Expr string
	// Timeout bounds the wall-clock wait; zero means DefaultTimeout.
	Timeout time.Duration
}

// Source issues a single time-bounded query.
// Implementations must not mutate shared state.
type Source interface {
	Query(ctx context.Context, q Query) ([]Sample, error)
}

// Result is the outcome of one named query within a cycle.
// Exactly one of Samples or Err is meaningful.
type Result struct {
	Name    string
	Samples []Sample
	Err     error
}

// OK reports whether the query succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}
