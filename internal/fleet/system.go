package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loopfactory/fleetdash/internal/agents"
	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/history"
	"github.com/loopfactory/fleetdash/internal/liveness"
	"github.com/loopfactory/fleetdash/internal/logger"
	"github.com/loopfactory/fleetdash/internal/metricsource"
	"github.com/loopfactory/fleetdash/internal/observability"
	"github.com/loopfactory/fleetdash/internal/pipeline"
	"golang.org/x/sync/errgroup"
)

// Host metric queries used by the system view.
var (
	CPUQuery = metricsource.Query{Name: "cpu_percent", Expr: metricsource.LocalPrefix + metricsource.HostCPUPercent}
	MemQuery = metricsource.Query{Name: "mem_percent", Expr: metricsource.LocalPrefix + metricsource.HostMemPercent}
)

// System history keys.
const (
	systemEntity = "system"
	signalCPU    = "cpu_percent"
	signalMem    = "mem_percent"
)

// SystemView aggregates agent counts, host load, and the bottleneck
// counters into one status block.
type SystemView struct {
	viewBase
	local      metricsource.Source
	agents     agents.Source
	bottleneck agents.BottleneckSource
	windows    liveness.Windows

	mu   sync.Mutex
	last SystemStatus
}

// SystemViewOptions configures a SystemView.
type SystemViewOptions struct {
	// Local answers the host metrics; nil leaves CPU and memory unset.
	Local       metricsource.Source
	Agents      agents.Source
	Bottleneck  agents.BottleneckSource
	Filter      agents.Filter
	Windows     liveness.Windows
	HistorySize int
	Hub         *Hub
	Recorder    *observability.Recorder
	Logger      logger.Logger
	Now         func() time.Time
}

// NewSystemView creates the aggregate view.
func NewSystemView(opts SystemViewOptions) *SystemView {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	windows := opts.Windows
	if windows == (liveness.Windows{}) {
		windows = liveness.DefaultWindows()
	}
	return &SystemView{
		viewBase: viewBase{
			hub:     opts.Hub,
			history: history.NewManager(opts.HistorySize, 0),
			rec:     opts.Recorder,
			log:     logger.OrDefault(opts.Logger).With(ViewSystem),
			now:     now,
			filter:  opts.Filter,
		},
		local:      opts.Local,
		agents:     opts.Agents,
		bottleneck: opts.Bottleneck,
		windows:    windows,
	}
}

// Name implements View.
func (v *SystemView) Name() string { return ViewSystem }

// SetFilter implements Scoped.
func (v *SystemView) SetFilter(f agents.Filter) {
	v.setFilter(f)
}

// Refresh implements View.
func (v *SystemView) Refresh(ctx context.Context) error {
	started := v.now()

	var (
		list    []agents.Agent
		listErr error
		snap    pipeline.Snapshot
		snapErr error
		host    []metricsource.Result
		g       errgroup.Group
	)
	if v.agents != nil {
		g.Go(func() error {
			list, listErr = v.agents.Agents(ctx, v.Filter())
			return nil
		})
	}
	if v.bottleneck != nil {
		g.Go(func() error {
			snap, snapErr = v.bottleneck.Bottleneck(ctx)
			return nil
		})
	}
	if v.local != nil {
		g.Go(func() error {
			host = metricsource.QueryAll(ctx, v.local, []metricsource.Query{CPUQuery, MemQuery})
			return nil
		})
	}
	_ = g.Wait()

	if canceled(ctx) {
		return ctx.Err()
	}

	var failures []errors.Failure
	now := v.now()

	v.mu.Lock()
	status := v.last
	// Host load is only as fresh as this cycle's sample.
	status.CPUPercent, status.MemPercent = nil, nil
	for _, r := range host {
		if !r.OK() {
			failures = append(failures, errors.NewFailure(r.Name, r.Err))
			continue
		}
		if len(r.Samples) == 0 {
			continue
		}
		val := r.Samples[0].Value
		switch r.Name {
		case CPUQuery.Name:
			status.CPUPercent = &val
			v.history.Append(systemEntity, signalCPU, val)
		case MemQuery.Name:
			status.MemPercent = &val
			v.history.Append(systemEntity, signalMem, val)
		}
	}

	if v.agents != nil {
		if listErr != nil {
			failures = append(failures, errors.NewFailure(AgentsResult, listErr))
		} else {
			countAgents(&status, list, now, v.windows)
		}
	}

	if v.bottleneck != nil {
		if snapErr != nil {
			failures = append(failures, errors.NewFailure(BottleneckFetch, snapErr))
		} else {
			verdict := pipeline.Evaluate(snap)
			status.Counters = verdict.Counters
			status.Bottleneck = verdict.HasBottleneck
			status.CanRunAgent = verdict.CanRunAgent()
		}
	}
	v.last = status
	v.mu.Unlock()

	v.recordFailures(ViewSystem, failures)

	v.hub.Publish(Snapshot{
		View:       ViewSystem,
		CycleID:    uuid.New(),
		StartedAt:  started,
		FinishedAt: v.now(),
		Errors:     failures,
		System:     &status,
	})
	return cycleError(ViewSystem, failures)
}

// countAgents replaces the agent tallies of s with those of list.
func countAgents(s *SystemStatus, list []agents.Agent, now time.Time, w liveness.Windows) {
	s.Total, s.Active, s.Pending, s.Waiting = len(list), 0, 0, 0
	s.Running, s.Starving, s.TotalBucks = 0, 0, 0
	for _, a := range list {
		switch a.Status {
		case liveness.StatusActive:
			s.Active++
		case liveness.StatusPending:
			s.Pending++
		case liveness.StatusWaiting:
			s.Waiting++
		}
		st := liveness.Derive(a.LivenessInput(), now, w)
		if st.Running {
			s.Running++
		}
		if st.Starving {
			s.Starving++
		}
		s.TotalBucks += a.Bucks
	}
}
