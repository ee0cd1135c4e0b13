package fleet

import (
	"context"
	"sort"
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
	"github.com/loopfactory/fleetdash/internal/reconcile"
	"golang.org/x/sync/errgroup"
)

// Result names for the agent list, fed through the reconciler like any
// other query.
const (
	AgentsResult    = "agents"
	FollowersResult = "agent_followers"
	BottleneckFetch = "bottleneck"

	SignalBucks     = "bucks"
	SignalFollowers = "followers"
)

// AgentSpecs are the reconciler specs for the agent list itself. The list
// is the authoritative presence source for agents.
var AgentSpecs = []reconcile.SignalSpec{
	{Query: AgentsResult, Signal: SignalBucks, Presence: true},
	{Query: FollowersResult, Signal: SignalFollowers},
}

// agentResults turns the agent list into reconciler results.
func agentResults(list []agents.Agent, err error, now time.Time) []metricsource.Result {
	if err != nil {
		return []metricsource.Result{{Name: AgentsResult, Err: err}}
	}

	ts := now.UnixMilli()
	bucks := make([]metricsource.Sample, 0, len(list))
	followers := make([]metricsource.Sample, 0, len(list))
	for _, a := range list {
		labels := map[string]string{
			"agent_id":     a.ID,
			"display_name": a.Label(),
			"node_name":    a.Node(),
			"model":        a.Model,
		}
		bucks = append(bucks, metricsource.Sample{Labels: labels, Value: a.Bucks, TimestampMs: ts})
		followers = append(followers, metricsource.Sample{Labels: labels, Value: float64(a.Followers), TimestampMs: ts})
	}
	return []metricsource.Result{
		{Name: AgentsResult, Samples: bucks},
		{Name: FollowersResult, Samples: followers},
	}
}

// AgentView joins the agent list, per-agent metric queries, and the
// bottleneck snapshot.
type AgentView struct {
	viewBase
	agents     agents.Source
	bottleneck agents.BottleneckSource
	metrics    metricsource.Source
	queries    []metricsource.Query
	store      *reconcile.Store
	topo       *agents.TopologyCache
	windows    liveness.Windows
	leaders    int

	mu       sync.Mutex
	lastList []agents.Agent
	verdict  *pipeline.Verdict
}

// AgentViewOptions configures an AgentView.
type AgentViewOptions struct {
	Agents     agents.Source
	Bottleneck agents.BottleneckSource
	// Metrics and Queries are optional per-agent metric queries.
	Metrics     metricsource.Source
	Queries     []metricsource.Query
	Specs       []reconcile.SignalSpec
	Topology    *agents.TopologyCache
	Filter      agents.Filter
	Windows     liveness.Windows
	HistorySize int
	PruneAfter  int
	// Leaderboard caps the bucks leaderboard; 0 leaves it out.
	Leaderboard int
	Hub         *Hub
	Recorder    *observability.Recorder
	Logger      logger.Logger
	Now         func() time.Time
}

// NewAgentView creates the agent view.
func NewAgentView(opts AgentViewOptions) *AgentView {
	log := logger.OrDefault(opts.Logger).With(ViewAgents)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	windows := opts.Windows
	if windows == (liveness.Windows{}) {
		windows = liveness.DefaultWindows()
	}
	specs := append(append([]reconcile.SignalSpec{}, AgentSpecs...), opts.Specs...)

	return &AgentView{
		viewBase: viewBase{
			hub:     opts.Hub,
			history: history.NewManager(opts.HistorySize, opts.PruneAfter),
			rec:     opts.Recorder,
			log:     log,
			now:     now,
			filter:  opts.Filter,
		},
		agents:     opts.Agents,
		bottleneck: opts.Bottleneck,
		metrics:    opts.Metrics,
		queries:    opts.Queries,
		store: reconcile.NewStore(reconcile.AgentScheme{}, specs,
			reconcile.WithLogger(log), reconcile.WithClock(now), reconcile.WithDerived()),
		topo:    opts.Topology,
		windows: windows,
		leaders: opts.Leaderboard,
	}
}

// Name implements View.
func (v *AgentView) Name() string { return ViewAgents }

// Store exposes the agent store.
func (v *AgentView) Store() *reconcile.Store { return v.store }

// SetFilter implements Scoped. Everything cached under the old scope is
// dropped.
func (v *AgentView) SetFilter(f agents.Filter) {
	v.setFilter(f)
	v.mu.Lock()
	v.lastList = nil
	v.mu.Unlock()
	v.store.Reset()
	v.history.Clear()
	if v.topo != nil {
		v.topo.Invalidate()
	}
}

// Refresh implements View.
func (v *AgentView) Refresh(ctx context.Context) error {
	started := v.now()
	filter := v.Filter()

	var (
		list     []agents.Agent
		listErr  error
		snap     pipeline.Snapshot
		snapErr  error
		extra    []metricsource.Result
		scope    agents.Scope
		scopeErr error
		g        errgroup.Group
	)

	g.Go(func() error {
		list, listErr = v.agents.Agents(ctx, filter)
		return nil
	})
	if v.bottleneck != nil {
		g.Go(func() error {
			snap, snapErr = v.bottleneck.Bottleneck(ctx)
			return nil
		})
	}
	if v.metrics != nil && len(v.queries) > 0 {
		g.Go(func() error {
			extra = metricsource.QueryAll(ctx, v.metrics, v.queries)
			return nil
		})
	}
	if v.topo != nil {
		g.Go(func() error {
			scope, scopeErr = v.topo.Scope(ctx, filter)
			return nil
		})
	}
	_ = g.Wait()

	if canceled(ctx) {
		return ctx.Err()
	}

	now := v.now()
	results := append(agentResults(list, listErr, now), extra...)
	rep := v.store.Merge(results)
	failures := rep.Failures

	v.mu.Lock()
	if listErr == nil {
		v.lastList = list
	}
	current := v.lastList
	if v.bottleneck != nil {
		if snapErr != nil {
			failures = append(failures, errors.NewFailure(BottleneckFetch, snapErr))
		} else {
			verdict := pipeline.Evaluate(snap)
			v.verdict = &verdict
		}
	}
	verdict := v.verdict
	v.mu.Unlock()

	if scopeErr != nil {
		failures = append(failures, errors.NewFailure("topology", scopeErr))
	}

	// Every merge for this cycle is done; derive from here on.
	for _, id := range rep.Observed {
		if e, ok := v.store.Get(id); ok {
			if bucks, ok := e.Value(SignalBucks); ok {
				v.history.Append(id, SignalBucks, bucks)
			}
		}
	}
	if rep.PresenceOK {
		v.history.Observe(rep.Observed)
	}

	byID := make(map[string]reconcile.Entity, len(rep.Entities))
	for _, e := range rep.Entities {
		byID[e.ID] = e
	}

	rows := make([]AgentRow, 0, len(current))
	for _, a := range current {
		if !scope.AllowsAgent(a) {
			continue
		}
		in := a.LivenessInput()
		row := AgentRow{
			Agent:     a,
			State:     liveness.Derive(in, now, v.windows),
			Activity:  liveness.Classify(in, v.history.Samples(a.ID, SignalBucks), now, v.windows),
			Sparkline: v.history.Read(a.ID, SignalBucks),
			Stale:     listErr != nil,
		}
		if e, ok := byID[a.ID]; ok {
			row.Signals = make(map[string]float64, len(e.Signals))
			for sig, s := range e.Signals {
				row.Signals[sig] = s.Value
			}
		}
		rows = append(rows, row)
	}
	sortAgentRows(rows)
	summary := Summarize(rows, v.leaders)

	if canceled(ctx) {
		return ctx.Err()
	}

	v.recordFailures(ViewAgents, failures)
	if v.rec != nil {
		v.rec.RecordMerge(ViewAgents, len(rep.Entities), rep.Dropped, len(rep.Collisions))
		if verdict != nil {
			v.rec.RecordBottleneck(verdict.HasBottleneck)
		}
	}

	v.hub.Publish(Snapshot{
		View:       ViewAgents,
		CycleID:    uuid.New(),
		StartedAt:  started,
		FinishedAt: v.now(),
		Errors:     failures,
		Agents:     rows,
		Pipeline:   verdict,
		Summary:    &summary,
	})
	return cycleError(ViewAgents, failures)
}

// sortAgentRows orders rows by node, then label, then id.
func sortAgentRows(rows []AgentRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Agent, rows[j].Agent
		if a.Node() != b.Node() {
			return a.Node() < b.Node()
		}
		if a.Label() != b.Label() {
			return a.Label() < b.Label()
		}
		return a.ID < b.ID
	})
}
