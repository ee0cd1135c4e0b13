package fleet

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/loopfactory/fleetdash/internal/agents"
	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/history"
	"github.com/loopfactory/fleetdash/internal/logger"
	"github.com/loopfactory/fleetdash/internal/observability"
	"github.com/loopfactory/fleetdash/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

// Engine owns one scheduler per view. Views never share stores, so their
// cycles run independently.
type Engine struct {
	hub    *Hub
	views  []View
	scheds map[string]*scheduler.Scheduler
	log    logger.Logger

	mu     sync.Mutex
	filter agents.Filter
}

// ViewStatus reports the scheduler bookkeeping of one view.
type ViewStatus struct {
	View      string    `json:"view" yaml:"view"`
	State     string    `json:"state" yaml:"state"`
	Cycles    uint64    `json:"cycles" yaml:"cycles"`
	LastRun   time.Time `json:"last_run,omitempty" yaml:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// DefaultInterval is used for schedules without an interval.
const DefaultInterval = 10 * time.Second

// Schedule pairs a view with its refresh interval.
type Schedule struct {
	View     View
	Interval time.Duration
}

// NewEngine creates an engine for the given views. rec may be nil.
func NewEngine(hub *Hub, rec *observability.Recorder, log logger.Logger, schedules ...Schedule) *Engine {
	log = logger.OrDefault(log).With("engine")
	e := &Engine{
		hub:    hub,
		scheds: make(map[string]*scheduler.Scheduler, len(schedules)),
		log:    log,
	}
	for _, s := range schedules {
		opts := []scheduler.Option{scheduler.WithLogger(log)}
		if rec != nil {
			opts = append(opts, scheduler.WithObserver(rec))
		}
		interval := s.Interval
		if interval <= 0 {
			interval = DefaultInterval
		}
		e.views = append(e.views, s.View)
		e.scheds[s.View.Name()] = scheduler.New(s.View.Name(), interval, s.View.Refresh, opts...)
	}
	return e
}

// Hub returns the snapshot hub.
func (e *Engine) Hub() *Hub {
	return e.hub
}

// Views returns the view names in registration order.
func (e *Engine) Views() []string {
	names := make([]string, len(e.views))
	for i, v := range e.views {
		names[i] = v.Name()
	}
	return names
}

// Start launches every scheduler.
func (e *Engine) Start(ctx context.Context) {
	for _, v := range e.views {
		e.log.Debug("starting %s view", v.Name())
		e.scheds[v.Name()].Start(ctx)
	}
}

// Stop stops every scheduler and waits for in-flight cycles to end.
func (e *Engine) Stop() {
	for _, v := range e.views {
		e.scheds[v.Name()].Stop()
	}
}

// Trigger requests an immediate refresh of view. It returns false when a
// cycle is already in flight.
func (e *Engine) Trigger(view string) (bool, error) {
	s, err := e.scheduler(view)
	if err != nil {
		return false, err
	}
	return s.Trigger(), nil
}

// Status returns the scheduler state of every view, in registration order.
func (e *Engine) Status() []ViewStatus {
	out := make([]ViewStatus, len(e.views))
	for i, v := range e.views {
		s := e.scheds[v.Name()]
		out[i] = ViewStatus{
			View:    v.Name(),
			State:   s.State().String(),
			Cycles:  s.Cycles(),
			LastRun: s.LastRun(),
		}
		if err := s.LastError(); err != nil {
			out[i].LastError = err.Error()
		}
	}
	return out
}

// Filter returns the current site/node scope.
func (e *Engine) Filter() agents.Filter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter
}

// SetFilter changes the site/node scope of every scoped view and triggers
// a refresh of each. A view with a cycle in flight picks the new scope up
// on its next cycle.
func (e *Engine) SetFilter(f agents.Filter) error {
	if f.Node != "" && f.Site == "" {
		return errors.New(errors.ErrConfig,
			"A node filter requires a site",
			"Pass the node's site along with it")
	}

	e.mu.Lock()
	e.filter = f
	e.mu.Unlock()

	for _, v := range e.views {
		if sv, ok := v.(Scoped); ok {
			sv.SetFilter(f)
		}
	}
	e.log.Info("scope changed to site=%q node=%q", f.Site, f.Node)
	// A cycle already in flight was fetched under the old scope.
	for _, v := range e.views {
		e.scheds[v.Name()].Restart()
	}
	return nil
}

// History returns the history windows of view.
func (e *Engine) History(view string) (*history.Manager, bool) {
	for _, v := range e.views {
		if v.Name() == view {
			return v.History(), true
		}
	}
	return nil, false
}

// RefreshOnce runs one cycle of the named views concurrently, outside the
// schedulers, bounded by deadline. No names means every view. Each view
// still publishes its snapshot; the returned error joins the per-view
// failures.
func (e *Engine) RefreshOnce(ctx context.Context, deadline time.Duration, only ...string) error {
	views := e.views
	if len(only) > 0 {
		views = make([]View, 0, len(only))
		for _, name := range only {
			if _, err := e.scheduler(name); err != nil {
				return err
			}
		}
		for _, v := range e.views {
			if slices.Contains(only, v.Name()) {
				views = append(views, v)
			}
		}
	}

	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	errs := make([]error, len(views))
	var g errgroup.Group
	for i, v := range views {
		g.Go(func() error {
			errs[i] = v.Refresh(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	var first error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		failed = append(failed, views[i].Name())
	}
	if first == nil {
		return nil
	}
	return errors.WrapWithCode(first, errors.CodeOf(first),
		fmt.Sprintf("%d view(s) degraded: %v", len(failed), failed),
		"Run with --verbose for per-query failures")
}

func (e *Engine) scheduler(view string) (*scheduler.Scheduler, error) {
	s, ok := e.scheds[view]
	if !ok {
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown view %q", view),
			fmt.Sprintf("Use one of %v", ViewNames))
	}
	return s, nil
}
