// Package scheduler drives the periodic refresh cycle of one view.
//
// Each Scheduler runs its cycles on a single goroutine, so two cycles of
// the same view never overlap. A cycle starts on the interval timer or on
// a manual Trigger, and is bounded by a per-cycle deadline.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/loopfactory/fleetdash/internal/logger"
	"github.com/loopfactory/fleetdash/internal/observability"
)

// State is the scheduler's position in its cycle.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CycleFunc performs one refresh. It must honor ctx: once ctx is canceled
// it returns promptly and publishes nothing.
type CycleFunc func(ctx context.Context) error

// Observer receives cycle bookkeeping.
type Observer interface {
	ObserveCycle(view string, d time.Duration, outcome string)
	TriggerRejected(view string)
}

// Scheduler runs a CycleFunc on an interval.
type Scheduler struct {
	name     string
	interval time.Duration
	deadline time.Duration
	run      CycleFunc
	observer Observer
	log      logger.Logger

	mu          sync.Mutex
	state       State
	started     bool
	cancelCycle context.CancelFunc
	stopLoop    context.CancelFunc
	cycles      uint64
	lastErr     error
	lastEnd     time.Time

	trigger chan struct{}
	done    chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDeadline bounds each cycle. Zero means only the interval applies.
func WithDeadline(d time.Duration) Option {
	return func(s *Scheduler) { s.deadline = d }
}

// WithObserver reports cycle metrics to o.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithLogger sets the scheduler's logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New creates a scheduler for the named view. When no deadline is given
// the interval is used as the per-cycle deadline.
func New(name string, interval time.Duration, run CycleFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		name:     name,
		interval: interval,
		deadline: interval,
		run:      run,
		log:      logger.Noop(),
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the view name.
func (s *Scheduler) Name() string {
	return s.name
}

// Start launches the loop and runs the first cycle immediately. The loop
// ends when ctx is done or Stop is called. Start is a no-op after the
// first call.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, s.stopLoop = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.loop(ctx)
}

// Trigger requests an immediate cycle. It returns false while a cycle is
// in flight or after the scheduler has stopped.
func (s *Scheduler) Trigger() bool {
	s.mu.Lock()
	state, started := s.state, s.started
	s.mu.Unlock()

	if !started || state != StateIdle {
		if s.observer != nil {
			s.observer.TriggerRejected(s.name)
		}
		return false
	}

	select {
	case s.trigger <- struct{}{}:
	default:
		// A trigger is already pending; coalesce.
	}
	return true
}

// Restart aborts the in-flight cycle, if any, and queues a fresh one. The
// aborted cycle publishes nothing. It returns false before Start and after
// the scheduler has stopped.
func (s *Scheduler) Restart() bool {
	s.mu.Lock()
	state, started := s.state, s.started
	if s.cancelCycle != nil {
		s.cancelCycle()
	}
	s.mu.Unlock()

	if !started || state == StateStopped {
		return false
	}
	select {
	case s.trigger <- struct{}{}:
	default:
	}
	return true
}

// Stop cancels any in-flight cycle, ends the loop, and waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, started := s.stopLoop, s.started
	s.mu.Unlock()

	if !started {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return
	}
	stop()
	<-s.done
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cycles returns the number of completed cycles.
func (s *Scheduler) Cycles() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// LastError returns the error of the most recent completed cycle.
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LastRun returns when the most recent cycle ended.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEnd
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	defer func() {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.trigger:
		}
		if ctx.Err() != nil {
			return
		}
		s.cycle(ctx)
		// Measure the interval from the end of the cycle.
		ticker.Reset(s.interval)
	}
}

func (s *Scheduler) cycle(parent context.Context) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.deadline > 0 {
		ctx, cancel = context.WithTimeout(parent, s.deadline)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	s.mu.Lock()
	s.state = StateFetching
	s.cancelCycle = cancel
	s.mu.Unlock()

	start := time.Now()
	err := s.run(ctx)
	elapsed := time.Since(start)

	outcome := observability.OutcomeOK
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		outcome = observability.OutcomeCanceled
		s.log.Debug("%s cycle canceled after %s", s.name, elapsed.Round(time.Millisecond))
	case err != nil:
		outcome = observability.OutcomePartial
		s.log.Warn("%s cycle finished with errors: %v", s.name, err)
	default:
		s.log.Debug("%s cycle finished in %s", s.name, elapsed.Round(time.Millisecond))
	}
	cancel()

	s.mu.Lock()
	s.state = StateIdle
	s.cancelCycle = nil
	s.cycles++
	s.lastErr = err
	s.lastEnd = time.Now()
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.ObserveCycle(s.name, elapsed, outcome)
	}
}
