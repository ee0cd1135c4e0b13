// Package observability exposes the dashboard's own Prometheus metrics.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle outcomes.
const (
	OutcomeOK       = "ok"
	OutcomePartial  = "partial"
	OutcomeCanceled = "canceled"
)

// Recorder exposes high-level Prometheus metrics for the refresh engine.
type Recorder struct {
	initOnce         sync.Once
	cycleDuration    *prometheus.HistogramVec
	cyclesTotal      *prometheus.CounterVec
	triggersRejected *prometheus.CounterVec
	queryFailures    *prometheus.CounterVec
	entities         *prometheus.GaugeVec
	dropped          *prometheus.CounterVec
	collisions       *prometheus.CounterVec
	signals          *prometheus.GaugeVec
	bottleneck       prometheus.Gauge
	logLines         prometheus.Counter
	streamState      *prometheus.GaugeVec
}

// NewRecorder constructs a recorder whose collectors are registered on reg.
// A nil reg registers on the default registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	r := &Recorder{}
	r.initOnce.Do(func() {
		r.cycleDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleetdash_cycle_duration_seconds",
			Help:    "Wall-clock duration of refresh cycles per view",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"view"})
		r.cyclesTotal = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetdash_cycles_total",
			Help: "Refresh cycles completed per view and outcome",
		}, []string{"view", "outcome"})
		r.triggersRejected = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetdash_triggers_rejected_total",
			Help: "Manual refresh requests rejected because a cycle was in flight",
		}, []string{"view"})
		r.queryFailures = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetdash_query_failures_total",
			Help: "Named query failures per view and error code",
		}, []string{"view", "query", "code"})
		r.entities = factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetdash_entities",
			Help: "Entities held by each view after the latest cycle",
		}, []string{"view"})
		r.dropped = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetdash_samples_dropped_total",
			Help: "Samples dropped because no identity could be resolved",
		}, []string{"view"})
		r.collisions = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetdash_identity_collisions_total",
			Help: "Samples discarded because another sample of the same query claimed the identity",
		}, []string{"view"})
		r.signals = factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetdash_entity_signal",
			Help: "Latest normalized signal value per entity",
		}, []string{"view", "entity", "signal"})
		r.bottleneck = factory.NewGauge(prometheus.GaugeOpts{
			Name: "fleetdash_pipeline_bottleneck",
			Help: "1 when any pipeline stage has a blocked check",
		})
		r.logLines = factory.NewCounter(prometheus.CounterOpts{
			Name: "fleetdash_log_lines_total",
			Help: "Log lines received by the live log relay",
		})
		r.streamState = factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetdash_log_stream_state",
			Help: "1 for the live log relay's current connection state",
		}, []string{"state"})
	})
	return r
}

// ObserveCycle records one finished cycle.
func (r *Recorder) ObserveCycle(view string, d time.Duration, outcome string) {
	r.cycleDuration.WithLabelValues(view).Observe(d.Seconds())
	r.cyclesTotal.WithLabelValues(view, outcome).Inc()
}

// TriggerRejected counts a manual refresh that was refused.
func (r *Recorder) TriggerRejected(view string) {
	r.triggersRejected.WithLabelValues(view).Inc()
}

// RecordFailure counts one named query failure.
func (r *Recorder) RecordFailure(view, query, code string) {
	r.queryFailures.WithLabelValues(view, query, code).Inc()
}

// RecordMerge publishes merge bookkeeping for a view.
func (r *Recorder) RecordMerge(view string, entities, dropped, collisions int) {
	r.entities.WithLabelValues(view).Set(float64(entities))
	if dropped > 0 {
		r.dropped.WithLabelValues(view).Add(float64(dropped))
	}
	if collisions > 0 {
		r.collisions.WithLabelValues(view).Add(float64(collisions))
	}
}

// RecordSignal updates one entity signal gauge.
func (r *Recorder) RecordSignal(view, entity, signal string, value float64) {
	r.signals.WithLabelValues(view, entity, signal).Set(value)
}

// ForgetEntity deletes every signal gauge of a removed entity.
func (r *Recorder) ForgetEntity(view, entity string) {
	r.signals.DeletePartialMatch(prometheus.Labels{"view": view, "entity": entity})
}

// RecordBottleneck sets the pipeline bottleneck gauge.
func (r *Recorder) RecordBottleneck(blocked bool) {
	if blocked {
		r.bottleneck.Set(1)
		return
	}
	r.bottleneck.Set(0)
}

// LogLine counts one relayed log line.
func (r *Recorder) LogLine() {
	r.logLines.Inc()
}

// StreamState marks state as the relay's current connection state.
func (r *Recorder) StreamState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		r.streamState.WithLabelValues(s).Set(v)
	}
}
