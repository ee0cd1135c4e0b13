package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loopfactory/fleetdash/internal/agents"
	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/history"
	"github.com/loopfactory/fleetdash/internal/logger"
	"github.com/loopfactory/fleetdash/internal/metricsource"
	"github.com/loopfactory/fleetdash/internal/observability"
	"github.com/loopfactory/fleetdash/internal/reconcile"
)

// GPUSparkSignals are the device signals kept in history windows.
var GPUSparkSignals = []string{"utilization", "memory_percent", "temperature", "power"}

// View is one independently refreshed dashboard view.
type View interface {
	Name() string
	// Refresh runs one cycle and publishes its snapshot. It returns the
	// cycle's failures as an error; a canceled cycle publishes nothing.
	Refresh(ctx context.Context) error
	// History returns the view's history windows.
	History() *history.Manager
}

// viewBase carries what every view shares.
type viewBase struct {
	hub     *Hub
	history *history.Manager
	rec     *observability.Recorder
	log     logger.Logger
	now     func() time.Time

	filterMu sync.Mutex
	filter   agents.Filter
}

func (b *viewBase) History() *history.Manager {
	return b.history
}

// Filter returns the site/node scope the view reads with.
func (b *viewBase) Filter() agents.Filter {
	b.filterMu.Lock()
	defer b.filterMu.Unlock()
	return b.filter
}

func (b *viewBase) setFilter(f agents.Filter) {
	b.filterMu.Lock()
	defer b.filterMu.Unlock()
	b.filter = f
}

// Scoped is implemented by views whose reads follow the site/node filter.
type Scoped interface {
	SetFilter(f agents.Filter)
}

// canceled reports whether ctx was canceled rather than timed out.
func canceled(ctx context.Context) bool {
	return errors.CodeOf(ctx.Err()) == errors.ErrCanceled
}

func (b *viewBase) recordFailures(view string, failures []errors.Failure) {
	for _, f := range failures {
		b.log.Warn("%s", f)
		if b.rec != nil {
			b.rec.RecordFailure(view, f.Name, f.Code)
		}
	}
}

// GPUView reconciles device telemetry queries into GPU rows.
type GPUView struct {
	viewBase
	source  metricsource.Source
	queries []metricsource.Query
	store   *reconcile.Store
	topo    *agents.TopologyCache
}

// GPUViewOptions configures a GPUView.
type GPUViewOptions struct {
	Source  metricsource.Source
	Queries []metricsource.Query
	Specs   []reconcile.SignalSpec
	// Topology and Filter scope devices by group key. Nil means unscoped.
	Topology    *agents.TopologyCache
	Filter      agents.Filter
	HistorySize int
	PruneAfter  int
	Hub         *Hub
	Recorder    *observability.Recorder
	Logger      logger.Logger
	Now         func() time.Time
}

// NewGPUView creates the device view.
func NewGPUView(opts GPUViewOptions) *GPUView {
	log := logger.OrDefault(opts.Logger).With(ViewGPUs)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &GPUView{
		viewBase: viewBase{
			hub:     opts.Hub,
			history: history.NewManager(opts.HistorySize, opts.PruneAfter),
			rec:     opts.Recorder,
			log:     log,
			now:     now,
			filter:  opts.Filter,
		},
		source:  opts.Source,
		queries: opts.Queries,
		store: reconcile.NewStore(reconcile.DeviceScheme{}, opts.Specs,
			reconcile.WithLogger(log), reconcile.WithClock(now)),
		topo:    opts.Topology,
	}
}

// Name implements View.
func (v *GPUView) Name() string { return ViewGPUs }

// Store exposes the device store.
func (v *GPUView) Store() *reconcile.Store { return v.store }

// SetFilter implements Scoped. Devices outside the scope stay in the
// store and are only hidden from rows, so nothing is reset. The topology
// is reloaded so sites added since the last load resolve.
func (v *GPUView) SetFilter(f agents.Filter) {
	v.setFilter(f)
	if v.topo != nil {
		v.topo.Invalidate()
	}
}

// Refresh implements View.
func (v *GPUView) Refresh(ctx context.Context) error {
	started := v.now()

	results := metricsource.QueryAll(ctx, v.source, v.queries)
	if canceled(ctx) {
		return ctx.Err()
	}

	rep := v.store.Merge(results)
	failures := rep.Failures

	scope := agents.Scope{}
	if v.topo != nil {
		s, err := v.topo.Scope(ctx, v.Filter())
		if err != nil {
			failures = append(failures, errors.NewFailure("topology", err))
		}
		scope = s
	}

	for _, e := range rep.Entities {
		if e.Stale {
			continue
		}
		values := make(map[string]float64, len(GPUSparkSignals))
		for _, sig := range GPUSparkSignals {
			if val, ok := e.Value(sig); ok {
				values[sig] = val
			}
		}
		v.history.AppendAll(e.ID, values)
	}
	if rep.PresenceOK {
		for _, id := range v.history.Observe(rep.Observed) {
			v.log.Debug("pruned history of %s", id)
		}
	}

	rows := make([]GPU, 0, len(rep.Entities))
	for _, e := range rep.Entities {
		if !scope.AllowsGroup(e.GroupKey) {
			continue
		}
		spark := make(map[string][]float64, len(GPUSparkSignals))
		for _, sig := range GPUSparkSignals {
			if v.history.Count(e.ID, sig) > 0 {
				spark[sig] = v.history.Read(e.ID, sig)
			}
		}
		rows = append(rows, GPU{Entity: e, Sparklines: spark})
	}

	if canceled(ctx) {
		return ctx.Err()
	}

	v.recordFailures(ViewGPUs, failures)
	if v.rec != nil {
		v.rec.RecordMerge(ViewGPUs, len(rep.Entities), rep.Dropped, len(rep.Collisions))
		for _, id := range rep.Removed {
			v.rec.ForgetEntity(ViewGPUs, id)
		}
		for _, e := range rep.Entities {
			for sig, s := range e.Signals {
				v.rec.RecordSignal(ViewGPUs, e.ID, sig, s.Value)
			}
		}
	}

	v.hub.Publish(Snapshot{
		View:       ViewGPUs,
		CycleID:    uuid.New(),
		StartedAt:  started,
		FinishedAt: v.now(),
		Errors:     failures,
		GPUs:       rows,
	})
	return cycleError(ViewGPUs, failures)
}
