package fleet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/loopfactory/fleetdash/internal/agents"
	"github.com/loopfactory/fleetdash/internal/config"
	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/liveness"
	"github.com/loopfactory/fleetdash/internal/logger"
	"github.com/loopfactory/fleetdash/internal/metricsource"
	"github.com/loopfactory/fleetdash/internal/observability"
	"github.com/loopfactory/fleetdash/internal/pipeline"
	"github.com/loopfactory/fleetdash/internal/reconcile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

// fakeMetrics answers queries by name. Missing names return no samples.
type fakeMetrics struct {
	mu      sync.Mutex
	samples map[string][]metricsource.Sample
	errs    map[string]error
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		samples: make(map[string][]metricsource.Sample),
		errs:    make(map[string]error),
	}
}

func (f *fakeMetrics) set(name string, samples ...metricsource.Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples[name] = samples
	delete(f.errs, name)
}

func (f *fakeMetrics) fail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[name] = err
}

func (f *fakeMetrics) Query(ctx context.Context, q metricsource.Query) ([]metricsource.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[q.Name]; err != nil {
		return nil, err
	}
	return f.samples[q.Name], nil
}

func gpuSample(v float64, kv ...string) metricsource.Sample {
	labels := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		labels[kv[i]] = kv[i+1]
	}
	return metricsource.Sample{Labels: labels, Value: v, TimestampMs: testNow.UnixMilli()}
}

// fakeAgents serves a fixed list, topology, and bottleneck snapshot.
type fakeAgents struct {
	mu      sync.Mutex
	list    []agents.Agent
	listErr error
	snap    pipeline.Snapshot
	snapErr error
	topo    agents.Topology
}

func (f *fakeAgents) Agents(ctx context.Context, _ agents.Filter) ([]agents.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list, f.listErr
}

func (f *fakeAgents) Topology(ctx context.Context) (agents.Topology, error) {
	return f.topo, nil
}

func (f *fakeAgents) Bottleneck(ctx context.Context) (pipeline.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.snapErr
}

var testQueries = []metricsource.Query{
	{Name: "gpu_util", Expr: "DCGM_FI_DEV_GPU_UTIL"},
	{Name: "gpu_temp", Expr: "DCGM_FI_DEV_GPU_TEMP"},
}

var testSpecs = []reconcile.SignalSpec{
	{Query: "gpu_util", Signal: "utilization", Scale: reconcile.ScalePercent, Presence: true},
	{Query: "gpu_temp", Signal: "temperature", Scale: reconcile.ScaleRaw},
}

func newTestGPUView(src metricsource.Source, hub *Hub, rec *observability.Recorder) *GPUView {
	return NewGPUView(GPUViewOptions{
		Source:      src,
		Queries:     testQueries,
		Specs:       testSpecs,
		HistorySize: 4,
		PruneAfter:  2,
		Hub:         hub,
		Recorder:    rec,
		Logger:      logger.Noop(),
		Now:         clock,
	})
}

func TestGPUView_RefreshPublishesRows(t *testing.T) {
	src := newFakeMetrics()
	src.set("gpu_util",
		gpuSample(0.5, "UUID", "GPU-1", "Hostname", "node-a", "gpu", "0"),
		gpuSample(80, "Hostname", "node-b", "gpu", "1"),
	)
	src.set("gpu_temp", gpuSample(61, "UUID", "GPU-1"))

	hub := NewHub()
	v := newTestGPUView(src, hub, nil)
	require.NoError(t, v.Refresh(context.Background()))

	snap, ok := hub.Latest(ViewGPUs)
	require.True(t, ok)
	assert.False(t, snap.Degraded())
	require.Len(t, snap.GPUs, 2)

	gpu := snap.GPUs[0]
	assert.Equal(t, "GPU-1", gpu.ID)
	assert.Equal(t, 50.0, gpu.Signals["utilization"].Value)
	assert.Equal(t, []float64{0, 0, 0, 50}, gpu.Sparklines["utilization"])
	assert.Equal(t, []float64{0, 0, 0, 61}, gpu.Sparklines["temperature"])
	assert.NotContains(t, snap.GPUs[1].Sparklines, "temperature")
	assert.Equal(t, "node-b-1", snap.GPUs[1].ID)
}

func TestGPUView_PartialFailureKeepsLastValues(t *testing.T) {
	src := newFakeMetrics()
	src.set("gpu_util", gpuSample(40, "UUID", "GPU-1", "Hostname", "node-a"))
	src.set("gpu_temp", gpuSample(60, "UUID", "GPU-1"))

	hub := NewHub()
	reg := prometheus.NewRegistry()
	v := newTestGPUView(src, hub, observability.NewRecorder(reg))
	require.NoError(t, v.Refresh(context.Background()))

	src.fail("gpu_temp", errors.New(errors.ErrTimeout, "gpu_temp timed out", ""))
	src.set("gpu_util", gpuSample(45, "UUID", "GPU-1", "Hostname", "node-a"))
	err := v.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSource))
	assert.Contains(t, err.Error(), "gpu_temp")

	snap, _ := hub.Latest(ViewGPUs)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "gpu_temp", snap.Errors[0].Name)
	assert.Equal(t, errors.ErrTimeout, snap.Errors[0].Code)

	require.Len(t, snap.GPUs, 1)
	assert.Equal(t, 45.0, snap.GPUs[0].Signals["utilization"].Value)
	assert.Equal(t, 60.0, snap.GPUs[0].Signals["temperature"].Value, "last known value kept")
}

func TestGPUView_TotalFailureRetainsStaleEntities(t *testing.T) {
	src := newFakeMetrics()
	src.set("gpu_util", gpuSample(40, "UUID", "GPU-1", "Hostname", "node-a"))
	hub := NewHub()
	v := newTestGPUView(src, hub, nil)
	require.NoError(t, v.Refresh(context.Background()))

	boom := errors.New(errors.ErrSource, "backend down", "")
	src.fail("gpu_util", boom)
	src.fail("gpu_temp", boom)
	require.Error(t, v.Refresh(context.Background()))

	snap, _ := hub.Latest(ViewGPUs)
	assert.Len(t, snap.Errors, 2)
	require.Len(t, snap.GPUs, 1)
	assert.True(t, snap.GPUs[0].Stale)
	assert.Equal(t, 1, v.History().Count("GPU-1", "utilization"), "stale entities get no new history")
}

func TestGPUView_PresenceRemovesAndPrunes(t *testing.T) {
	src := newFakeMetrics()
	src.set("gpu_util",
		gpuSample(10, "UUID", "GPU-1", "Hostname", "node-a"),
		gpuSample(20, "UUID", "GPU-2", "Hostname", "node-a"),
	)
	hub := NewHub()
	v := newTestGPUView(src, hub, nil)
	require.NoError(t, v.Refresh(context.Background()))

	src.set("gpu_util", gpuSample(11, "UUID", "GPU-1", "Hostname", "node-a"))
	require.NoError(t, v.Refresh(context.Background()))

	snap, _ := hub.Latest(ViewGPUs)
	require.Len(t, snap.GPUs, 1)
	assert.Equal(t, "GPU-1", snap.GPUs[0].ID)
	assert.Equal(t, 1, v.History().Count("GPU-2", "utilization"), "history survives one miss")

	require.NoError(t, v.Refresh(context.Background()))
	assert.Equal(t, 0, v.History().Count("GPU-2", "utilization"))
}

func TestGPUView_CanceledPublishesNothing(t *testing.T) {
	src := newFakeMetrics()
	src.set("gpu_util", gpuSample(40, "UUID", "GPU-1", "Hostname", "node-a"))
	hub := NewHub()
	v := newTestGPUView(src, hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := v.Refresh(ctx)
	require.Error(t, err)

	_, ok := hub.Latest(ViewGPUs)
	assert.False(t, ok)
	assert.Equal(t, 0, v.Store().Len())
}

func TestGPUView_TopologyScope(t *testing.T) {
	src := newFakeMetrics()
	src.set("gpu_util",
		gpuSample(10, "UUID", "GPU-1", "Hostname", "gpu-01"),
		gpuSample(20, "UUID", "GPU-2", "Hostname", "edge-01"),
	)
	topo := &fakeAgents{topo: agents.Topology{Sites: []agents.Site{
		{ID: "s1", Name: "lab", Nodes: []agents.Node{{ID: "n1", Name: "gpu-01"}}},
		{ID: "s2", Name: "edge", Nodes: []agents.Node{{ID: "n3", Name: "edge-01"}}},
	}}}

	hub := NewHub()
	v := NewGPUView(GPUViewOptions{
		Source:   src,
		Queries:  testQueries,
		Specs:    testSpecs,
		Topology: agents.NewTopologyCache(topo),
		Filter:   agents.Filter{Site: "lab"},
		Hub:      hub,
		Now:      clock,
	})
	require.NoError(t, v.Refresh(context.Background()))

	snap, _ := hub.Latest(ViewGPUs)
	require.Len(t, snap.GPUs, 1)
	assert.Equal(t, "GPU-1", snap.GPUs[0].ID)
	assert.Equal(t, 2, v.Store().Len(), "the store keeps out-of-scope devices")
}

func ptr[T any](v T) *T { return &v }

func testAgents() *fakeAgents {
	return &fakeAgents{
		list: []agents.Agent{
			{ID: "a1", Name: "ada", Status: liveness.StatusActive, LastHeartbeat: ptr(testNow.Add(-time.Minute)), Bucks: 100, Followers: 3, NodeName: "gpu-01"},
			{ID: "a2", Name: "bob", Status: liveness.StatusActive, LastHeartbeat: ptr(testNow.Add(-2 * time.Hour)), Bucks: 5, NodeName: "gpu-01"},
			{ID: "a3", Name: "cy", Status: liveness.StatusPending, Bucks: 0, NodeName: "gpu-02"},
		},
		snap: pipeline.Snapshot{
			Stages: []pipeline.Stage{
				{Name: "resources", Checks: []pipeline.Check{{Name: "gpu", Status: pipeline.StatusBlocked}}},
			},
			Counters: pipeline.Counters{Running: 1, ActiveAgents: 2},
		},
	}
}

func newTestAgentView(src *fakeAgents, hub *Hub) *AgentView {
	return NewAgentView(AgentViewOptions{
		Agents:      src,
		Bottleneck:  src,
		HistorySize: 5,
		PruneAfter:  2,
		Hub:         hub,
		Logger:      logger.Noop(),
		Now:         clock,
	})
}

func TestAgentView_DerivesState(t *testing.T) {
	src := testAgents()
	hub := NewHub()
	v := newTestAgentView(src, hub)
	require.NoError(t, v.Refresh(context.Background()))

	snap, ok := hub.Latest(ViewAgents)
	require.True(t, ok)
	require.Len(t, snap.Agents, 3)

	ada := snap.Agents[0]
	assert.Equal(t, "a1", ada.Agent.ID)
	assert.True(t, ada.State.Running)
	assert.False(t, ada.State.Starving)
	assert.Equal(t, liveness.ActivityHealthy, ada.Activity)
	assert.Equal(t, []float64{0, 0, 0, 0, 100}, ada.Sparkline)
	assert.Equal(t, 3.0, ada.Signals[SignalFollowers])

	bob := snap.Agents[1]
	assert.False(t, bob.State.Running)
	assert.True(t, bob.State.Starving)
	assert.Equal(t, liveness.ActivityIdle, bob.Activity)

	cy := snap.Agents[2]
	assert.Equal(t, liveness.ActivityNone, cy.Activity)
	assert.False(t, cy.State.Starving)

	require.NotNil(t, snap.Pipeline)
	assert.True(t, snap.Pipeline.HasBottleneck)
	assert.Equal(t, 3, v.Store().Len())
}

func TestAgentView_PublishesSummary(t *testing.T) {
	src := testAgents()
	src.list = append(src.list,
		agents.Agent{ID: "a4", Name: "dee", Status: liveness.StatusActive, LastHeartbeat: ptr(testNow.Add(-4 * time.Hour)), Bucks: 50},
		agents.Agent{ID: "a5", Name: "eve", Status: liveness.StatusRetired, Bucks: 900},
	)
	hub := NewHub()
	v := NewAgentView(AgentViewOptions{
		Agents:      src,
		HistorySize: 5,
		Leaderboard: 2,
		Hub:         hub,
		Logger:      logger.Noop(),
		Now:         clock,
	})
	require.NoError(t, v.Refresh(context.Background()))

	snap, _ := hub.Latest(ViewAgents)
	require.NotNil(t, snap.Summary)
	s := snap.Summary

	assert.Equal(t, map[liveness.Activity]int{
		liveness.ActivityHealthy: 1,
		liveness.ActivityIdle:    1,
		liveness.ActivityWarning: 1,
	}, s.Activity)
	require.Len(t, s.Alerts, 1)
	assert.Equal(t, Alert{AgentID: "a4", Label: "dee", Activity: liveness.ActivityWarning}, s.Alerts[0])

	require.Len(t, s.Leaderboard, 2, "capped, retired agents excluded")
	assert.Equal(t, "a1", s.Leaderboard[0].AgentID)
	assert.Equal(t, 1, s.Leaderboard[0].Rank)
	assert.Equal(t, 3, s.Leaderboard[0].Followers)
	assert.Equal(t, "a4", s.Leaderboard[1].AgentID)
}

func TestAgentView_SetFilterDropsOldScope(t *testing.T) {
	src := testAgents()
	hub := NewHub()
	v := newTestAgentView(src, hub)
	require.NoError(t, v.Refresh(context.Background()))
	require.Equal(t, 3, v.Store().Len())
	require.Equal(t, 1, v.History().Count("a1", SignalBucks))

	v.SetFilter(agents.Filter{Site: "lab"})
	assert.Equal(t, agents.Filter{Site: "lab"}, v.Filter())
	assert.Zero(t, v.Store().Len())
	assert.Zero(t, v.History().Count("a1", SignalBucks))

	src.mu.Lock()
	src.listErr = errors.New(errors.ErrSource, "agents API down", "")
	src.mu.Unlock()
	require.Error(t, v.Refresh(context.Background()))

	snap, _ := hub.Latest(ViewAgents)
	assert.Empty(t, snap.Agents, "rows from the old scope are not carried over")
}

func TestEngine_SetFilter(t *testing.T) {
	hub := NewHub()
	src := testAgents()
	gpus := newTestGPUView(newFakeMetrics(), hub, nil)
	agentView := newTestAgentView(src, hub)
	e := NewEngine(hub, nil, logger.Noop(),
		Schedule{View: gpus, Interval: time.Hour},
		Schedule{View: agentView, Interval: time.Hour},
	)

	err := e.SetFilter(agents.Filter{Node: "gpu-01"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.True(t, e.Filter().IsZero())

	require.NoError(t, e.SetFilter(agents.Filter{Site: "lab", Node: "gpu-01"}))
	want := agents.Filter{Site: "lab", Node: "gpu-01"}
	assert.Equal(t, want, e.Filter())
	assert.Equal(t, want, gpus.Filter())
	assert.Equal(t, want, agentView.Filter())
}

func TestEngine_RefreshOnceNamedViews(t *testing.T) {
	src := newFakeMetrics()
	src.set("gpu_util", gpuSample(40, "UUID", "GPU-1", "Hostname", "node-a"))
	hub := NewHub()
	e := NewEngine(hub, nil, logger.Noop(),
		Schedule{View: newTestGPUView(src, hub, nil), Interval: time.Hour},
		Schedule{View: newTestAgentView(testAgents(), hub), Interval: time.Hour},
	)

	require.NoError(t, e.RefreshOnce(context.Background(), time.Second, ViewAgents))
	_, ok := hub.Latest(ViewAgents)
	assert.True(t, ok)
	_, ok = hub.Latest(ViewGPUs)
	assert.False(t, ok, "gpus was not asked for")

	err := e.RefreshOnce(context.Background(), time.Second, "disks")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	_, ok = hub.Latest(ViewGPUs)
	assert.False(t, ok)
}

func TestSummarize(t *testing.T) {
	rows := []AgentRow{
		{Agent: agents.Agent{ID: "b", Status: liveness.StatusActive, Bucks: 10}, Activity: liveness.ActivityStagnant},
		{Agent: agents.Agent{ID: "a", Status: liveness.StatusProbation, Bucks: 10}},
		{Agent: agents.Agent{ID: "c", Status: liveness.StatusActive}, Activity: liveness.ActivityCritical},
		{Agent: agents.Agent{ID: "d", Status: liveness.StatusActive}, Activity: liveness.ActivityUnknown},
	}

	s := Summarize(rows, 10)
	assert.Equal(t, 1, s.Activity[liveness.ActivityStagnant])
	assert.Equal(t, 1, s.Activity[liveness.ActivityUnknown])
	assert.NotContains(t, s.Activity, liveness.ActivityNone)

	var alerted []string
	for _, a := range s.Alerts {
		alerted = append(alerted, a.AgentID)
	}
	assert.Equal(t, []string{"b", "c"}, alerted)

	var ranked []string
	for _, e := range s.Leaderboard {
		ranked = append(ranked, e.AgentID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ranked, "ties break by id")

	none := Summarize(rows, 0)
	assert.Nil(t, none.Leaderboard)
	assert.NotNil(t, none.Alerts)
}

func TestAgentView_StagnantAfterFlatBucks(t *testing.T) {
	src := testAgents()
	hub := NewHub()
	v := newTestAgentView(src, hub)

	for i := 0; i < 3; i++ {
		require.NoError(t, v.Refresh(context.Background()))
	}

	snap, _ := hub.Latest(ViewAgents)
	assert.Equal(t, liveness.ActivityStagnant, snap.Agents[0].Activity)
	assert.Equal(t, []float64{0, 0, 100, 100, 100}, snap.Agents[0].Sparkline)
}

func TestAgentView_ListFailureKeepsStaleRows(t *testing.T) {
	src := testAgents()
	hub := NewHub()
	v := newTestAgentView(src, hub)
	require.NoError(t, v.Refresh(context.Background()))

	src.mu.Lock()
	src.listErr = errors.New(errors.ErrSource, "agents API down", "")
	src.snapErr = errors.New(errors.ErrTimeout, "bottleneck timed out", "")
	src.mu.Unlock()

	require.Error(t, v.Refresh(context.Background()))

	snap, _ := hub.Latest(ViewAgents)
	require.Len(t, snap.Errors, 2)
	assert.Equal(t, AgentsResult, snap.Errors[0].Name)
	assert.Equal(t, BottleneckFetch, snap.Errors[1].Name)

	require.Len(t, snap.Agents, 3)
	assert.True(t, snap.Agents[0].Stale)
	require.NotNil(t, snap.Pipeline, "last verdict kept")
	assert.True(t, snap.Pipeline.HasBottleneck)
}

func TestAgentView_RemovedAgentsLeave(t *testing.T) {
	src := testAgents()
	hub := NewHub()
	v := newTestAgentView(src, hub)
	require.NoError(t, v.Refresh(context.Background()))

	src.mu.Lock()
	src.list = src.list[:1]
	src.mu.Unlock()
	require.NoError(t, v.Refresh(context.Background()))

	snap, _ := hub.Latest(ViewAgents)
	require.Len(t, snap.Agents, 1)
	assert.Equal(t, 1, v.Store().Len())
}

func TestSystemView_Aggregates(t *testing.T) {
	src := testAgents()
	local := newFakeMetrics()
	local.set(CPUQuery.Name, gpuSample(37.5, "host", "me"))
	local.fail(MemQuery.Name, errors.New(errors.ErrSource, "no meminfo", ""))

	hub := NewHub()
	v := NewSystemView(SystemViewOptions{
		Local:      local,
		Agents:     src,
		Bottleneck: src,
		Hub:        hub,
		Logger:     logger.Noop(),
		Now:        clock,
	})
	err := v.Refresh(context.Background())
	require.Error(t, err)

	snap, ok := hub.Latest(ViewSystem)
	require.True(t, ok)
	require.NotNil(t, snap.System)
	s := snap.System

	require.NotNil(t, s.CPUPercent)
	assert.Equal(t, 37.5, *s.CPUPercent)
	assert.Nil(t, s.MemPercent)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Active)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 1, s.Running)
	assert.Equal(t, 1, s.Starving)
	assert.Equal(t, 105.0, s.TotalBucks)
	assert.Equal(t, 1, s.Counters.Running)
	assert.True(t, s.Bottleneck)
	assert.False(t, s.CanRunAgent)

	require.Len(t, snap.Errors, 1)
	assert.Equal(t, MemQuery.Name, snap.Errors[0].Name)
}

func TestHub_Subscribe(t *testing.T) {
	hub := NewHub()
	ch, unsubscribe := hub.Subscribe(1)

	hub.Publish(Snapshot{View: ViewGPUs})
	hub.Publish(Snapshot{View: ViewAgents}) // dropped, buffer full

	got := <-ch
	assert.Equal(t, ViewGPUs, got.View)

	latest, ok := hub.Latest(ViewAgents)
	require.True(t, ok)
	assert.Equal(t, ViewAgents, latest.View)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestEngine_TriggerAndRefreshOnce(t *testing.T) {
	src := newFakeMetrics()
	src.set("gpu_util", gpuSample(40, "UUID", "GPU-1", "Hostname", "node-a"))
	hub := NewHub()
	gpus := newTestGPUView(src, hub, nil)
	agentView := newTestAgentView(testAgents(), hub)

	e := NewEngine(hub, nil, logger.Noop(),
		Schedule{View: gpus, Interval: time.Hour},
		Schedule{View: agentView, Interval: time.Hour},
	)
	assert.Equal(t, []string{ViewGPUs, ViewAgents}, e.Views())

	_, err := e.Trigger("nope")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	accepted, err := e.Trigger(ViewGPUs)
	require.NoError(t, err)
	assert.False(t, accepted, "not started")

	require.NoError(t, e.RefreshOnce(context.Background(), time.Second))
	_, ok := hub.Latest(ViewGPUs)
	assert.True(t, ok)
	_, ok = hub.Latest(ViewAgents)
	assert.True(t, ok)

	h, ok := e.History(ViewGPUs)
	require.True(t, ok)
	assert.Equal(t, 1, h.Count("GPU-1", "utilization"))
	_, ok = e.History(ViewSystem)
	assert.False(t, ok)
}

func TestEngine_StartRunsFirstCycle(t *testing.T) {
	src := newFakeMetrics()
	src.set("gpu_util", gpuSample(40, "UUID", "GPU-1", "Hostname", "node-a"))
	hub := NewHub()
	reg := prometheus.NewRegistry()
	rec := observability.NewRecorder(reg)
	e := NewEngine(hub, rec, logger.Noop(), Schedule{View: newTestGPUView(src, hub, rec), Interval: time.Hour})

	ch, unsubscribe := hub.Subscribe(1)
	defer unsubscribe()

	e.Start(context.Background())
	defer e.Stop()

	select {
	case snap := <-ch:
		assert.Equal(t, ViewGPUs, snap.View)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published")
	}

	require.Eventually(t, func() bool {
		n, err := testutil.GatherAndCount(reg, "fleetdash_cycles_total")
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return e.Status()[0].Cycles == 1 }, time.Second, 10*time.Millisecond)

	st := e.Status()[0]
	assert.Equal(t, ViewGPUs, st.View)
	assert.False(t, st.LastRun.IsZero())
	assert.Empty(t, st.LastError)
}

func TestQueriesAndWindows(t *testing.T) {
	queries, specs := Queries(map[string]config.QueryConfig{
		"gpu_temp": {Expr: "T", Scale: config.ScaleRaw},
		"gpu_util": {Expr: "U", Signal: "utilization", Scale: config.ScalePercent, Presence: true, Timeout: time.Second},
	})
	require.Len(t, queries, 2)
	assert.Equal(t, "gpu_temp", queries[0].Name)
	assert.Equal(t, time.Second, queries[1].Timeout)
	assert.Equal(t, "gpu_temp", specs[0].Signal)
	assert.Equal(t, reconcile.ScalePercent, specs[1].Scale)
	assert.True(t, specs[1].Presence)

	w := Windows(config.LivenessConfig{Window: time.Minute})
	assert.Equal(t, time.Minute, w.Liveness)
	assert.Equal(t, liveness.DefaultStarvation, w.Starvation)
}
