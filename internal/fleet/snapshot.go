// Package fleet runs the dashboard's views. Each view owns its entity
// store and history windows, is refreshed by its own scheduler, and
// publishes presentation-ready snapshots to a Hub.
package fleet

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loopfactory/fleetdash/internal/agents"
	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/liveness"
	"github.com/loopfactory/fleetdash/internal/pipeline"
	"github.com/loopfactory/fleetdash/internal/reconcile"
)

// View names.
const (
	ViewGPUs   = "gpus"
	ViewAgents = "agents"
	ViewSystem = "system"
)

// ViewNames lists the views in display order.
var ViewNames = []string{ViewGPUs, ViewAgents, ViewSystem}

// GPU is one device row.
type GPU struct {
	reconcile.Entity `yaml:",inline"`
	// Sparklines holds K values per tracked signal, oldest first.
	Sparklines map[string][]float64 `json:"sparklines,omitempty" yaml:"sparklines,omitempty"`
}

// AgentRow is one agent with its derived state.
type AgentRow struct {
	Agent     agents.Agent       `json:"agent" yaml:"agent"`
	State     liveness.State     `json:"state" yaml:"state"`
	Activity  liveness.Activity  `json:"activity,omitempty" yaml:"activity,omitempty"`
	Signals   map[string]float64 `json:"signals,omitempty" yaml:"signals,omitempty"`
	Sparkline []float64          `json:"sparkline,omitempty" yaml:"sparkline,omitempty"`
	Stale     bool               `json:"stale,omitempty" yaml:"stale,omitempty"`
}

// SystemStatus is the aggregate view.
type SystemStatus struct {
	CPUPercent  *float64          `json:"cpu_percent,omitempty" yaml:"cpu_percent,omitempty"`
	MemPercent  *float64          `json:"mem_percent,omitempty" yaml:"mem_percent,omitempty"`
	Total       int               `json:"total_agents" yaml:"total_agents"`
	Active      int               `json:"active" yaml:"active"`
	Pending     int               `json:"pending" yaml:"pending"`
	Waiting     int               `json:"waiting" yaml:"waiting"`
	Running     int               `json:"running" yaml:"running"`
	Starving    int               `json:"starving" yaml:"starving"`
	TotalBucks  float64           `json:"total_bucks" yaml:"total_bucks"`
	Counters    pipeline.Counters `json:"counters" yaml:"counters"`
	Bottleneck  bool              `json:"bottleneck" yaml:"bottleneck"`
	CanRunAgent bool              `json:"can_run_agent" yaml:"can_run_agent"`
}

// Snapshot is what one cycle of a view publishes. Errors is surfaced
// alongside the data, never instead of it.
type Snapshot struct {
	View       string            `json:"view" yaml:"view"`
	CycleID    uuid.UUID         `json:"cycle_id" yaml:"cycle_id"`
	StartedAt  time.Time         `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time         `json:"finished_at" yaml:"finished_at"`
	Errors     []errors.Failure  `json:"errors" yaml:"errors"`
	GPUs       []GPU             `json:"gpus,omitempty" yaml:"gpus,omitempty"`
	Agents     []AgentRow        `json:"agents,omitempty" yaml:"agents,omitempty"`
	Pipeline   *pipeline.Verdict `json:"pipeline,omitempty" yaml:"pipeline,omitempty"`
	Summary    *AgentSummary     `json:"summary,omitempty" yaml:"summary,omitempty"`
	System     *SystemStatus     `json:"system,omitempty" yaml:"system,omitempty"`
}

// Degraded reports whether any fetch failed this cycle.
func (s Snapshot) Degraded() bool {
	return len(s.Errors) > 0
}

// cycleError summarizes a cycle's failures for the scheduler.
func cycleError(view string, failures []errors.Failure) error {
	if len(failures) == 0 {
		return nil
	}
	names := make([]string, len(failures))
	for i, f := range failures {
		names[i] = f.Name
	}
	return errors.New(errors.ErrSource,
		fmt.Sprintf("%s: %d fetch(es) failed: %s", view, len(failures), strings.Join(names, ", ")),
		"Last known values are kept for entities the failed fetches would have updated")
}

// Hub holds the latest snapshot of each view and fans new snapshots out
// to subscribers.
type Hub struct {
	mu     sync.RWMutex
	latest map[string]Snapshot
	subs   map[int]chan Snapshot
	nextID int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		latest: make(map[string]Snapshot),
		subs:   make(map[int]chan Snapshot),
	}
}

// Publish stores s as the latest snapshot of its view and offers it to
// every subscriber. Slow subscribers miss snapshots rather than block.
func (h *Hub) Publish(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest[s.View] = s
	for _, ch := range h.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Latest returns the most recent snapshot of view.
func (h *Hub) Latest(view string) (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.latest[view]
	return s, ok
}

// Subscribe returns a channel of new snapshots and a function that
// unsubscribes and closes it.
func (h *Hub) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer <= 0 {
		buffer = len(ViewNames)
	}
	ch := make(chan Snapshot, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}
