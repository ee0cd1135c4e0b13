// Package logrelay follows the live log stream of the selected agent.
//
// A Relay holds at most one Subscription. Selecting a different agent
// releases the previous subscription before the next one is acquired, and
// lines from a released subscription are never appended.
package logrelay

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/logger"
)

// DefaultBuffer is the number of lines kept per selection.
const DefaultBuffer = 500

// State is the connection state of the current selection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
	StateClosed
)

// States lists every state, for exporting gauges.
var States = []State{StateIdle, StateConnecting, StateConnected, StateError, StateClosed}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stream yields log lines for one agent.
type Stream interface {
	// Next blocks until a line arrives. It returns io.EOF when the server
	// closed the stream.
	Next(ctx context.Context) (string, error)
	Close() error
}

// Dialer opens a Stream for an agent.
type Dialer interface {
	Dial(ctx context.Context, agentID string) (Stream, error)
}

// Observer receives relay bookkeeping.
type Observer interface {
	LogLine()
	StreamState(state string, all []string)
}

// Subscription is the handle for one selection. Release is idempotent.
type Subscription struct {
	ID      uuid.UUID
	AgentID string

	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{}
	release sync.Once
}

// Release tears the subscription down and waits for its reader to exit.
func (s *Subscription) Release() {
	if s == nil {
		return
	}
	s.release.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Relay manages the subscription of the currently selected agent.
type Relay struct {
	dialer   Dialer
	capacity int
	observer Observer
	log      logger.Logger

	// selectMu serializes Select and Close so a subscription is always
	// released before the next one is stored.
	selectMu sync.Mutex

	mu      sync.Mutex
	sub     *Subscription
	gen     uint64
	agentID string
	state   State
	err     error
	lines   []string
	start   int
	seq     uint64 // lines appended since the last Select

	updates chan struct{}
}

// Option configures a Relay.
type Option func(*Relay)

// WithBuffer sets the line capacity.
func WithBuffer(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithObserver reports line counts and state changes to o.
func WithObserver(o Observer) Option {
	return func(r *Relay) { r.observer = o }
}

// WithLogger sets the relay's logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Relay) { r.log = l }
}

// New creates an idle relay.
func New(d Dialer, opts ...Option) *Relay {
	r := &Relay{
		dialer:   d,
		capacity: DefaultBuffer,
		log:      logger.Noop(),
		updates:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Select switches the relay to agentID. The previous subscription is
// released first. An empty agentID just releases and returns nil.
func (r *Relay) Select(ctx context.Context, agentID string) *Subscription {
	r.selectMu.Lock()
	defer r.selectMu.Unlock()

	r.mu.Lock()
	prev := r.sub
	r.sub = nil
	r.gen++
	r.mu.Unlock()

	prev.Release()

	r.mu.Lock()
	r.gen++
	r.agentID = agentID
	r.err = nil
	r.lines = nil
	r.start = 0
	r.seq = 0
	if agentID == "" {
		r.setStateLocked(StateIdle)
		r.mu.Unlock()
		return nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		ID:      uuid.New(),
		AgentID: agentID,
		gen:     r.gen,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.sub = sub
	r.setStateLocked(StateConnecting)
	r.mu.Unlock()

	r.log.Debug("subscribing to logs of %s (%s)", agentID, sub.ID)
	go r.run(subCtx, sub)
	return sub
}

// Close releases the current subscription and marks the relay closed.
func (r *Relay) Close() {
	r.selectMu.Lock()
	defer r.selectMu.Unlock()

	r.mu.Lock()
	prev := r.sub
	r.sub = nil
	r.gen++
	r.mu.Unlock()

	prev.Release()

	r.mu.Lock()
	r.setStateLocked(StateClosed)
	r.mu.Unlock()
}

// State returns the connection state and, in StateError, the cause.
func (r *Relay) State() (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.err
}

// AgentID returns the current selection.
func (r *Relay) AgentID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agentID
}

// Lines returns the buffered lines, oldest first.
func (r *Relay) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.start:]...)
	out = append(out, r.lines[:r.start]...)
	return out
}

// Since returns the buffered lines appended after sequence number n and
// the current sequence number. Lines already evicted from the buffer are
// skipped. Pass 0 after a Select to read everything.
func (r *Relay) Since(n uint64) ([]string, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n >= r.seq {
		return nil, r.seq
	}
	missing := r.seq - n
	if missing > uint64(len(r.lines)) {
		missing = uint64(len(r.lines))
	}
	out := make([]string, 0, missing)
	for i := uint64(len(r.lines)) - missing; i < uint64(len(r.lines)); i++ {
		out = append(out, r.lines[(r.start+int(i))%len(r.lines)])
	}
	return out, r.seq
}

// Updates receives a value whenever lines or state change. Notifications
// coalesce; readers should re-read State and Lines.
func (r *Relay) Updates() <-chan struct{} {
	return r.updates
}

func (r *Relay) run(ctx context.Context, sub *Subscription) {
	defer close(sub.done)

	stream, err := r.dialer.Dial(ctx, sub.AgentID)
	if err != nil {
		if ctx.Err() == nil {
			r.fail(sub, errors.WrapWithCode(err, errors.ErrStream,
				fmt.Sprintf("Failed to open log stream for %s", sub.AgentID), ""))
		}
		return
	}
	defer stream.Close()

	r.transition(sub, StateConnected)

	// Close unblocks readers that do not watch ctx.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Close()
		case <-stop:
		}
	}()

	for {
		line, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err == io.EOF {
				err = errors.New(errors.ErrStream, fmt.Sprintf("Log stream for %s closed by server", sub.AgentID), "")
			} else {
				err = errors.WrapWithCode(err, errors.ErrStream,
					fmt.Sprintf("Log stream for %s disconnected", sub.AgentID), "")
			}
			r.fail(sub, err)
			return
		}
		r.appendLine(sub, line)
	}
}

func (r *Relay) transition(sub *Subscription, s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.gen != r.gen {
		return
	}
	r.setStateLocked(s)
}

func (r *Relay) fail(sub *Subscription, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.gen != r.gen {
		return
	}
	r.err = err
	r.setStateLocked(StateError)
	r.log.Warn("%s", errors.NewFailure(sub.AgentID, err).Message)
}

func (r *Relay) appendLine(sub *Subscription, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.gen != r.gen {
		return
	}

	if len(r.lines) < r.capacity {
		r.lines = append(r.lines, line)
	} else {
		r.lines[r.start] = line
		r.start = (r.start + 1) % r.capacity
	}
	r.seq++
	if r.observer != nil {
		r.observer.LogLine()
	}
	r.notifyLocked()
}

// Must be called with r.mu held.
func (r *Relay) setStateLocked(s State) {
	r.state = s
	if r.observer != nil {
		all := make([]string, len(States))
		for i, st := range States {
			all[i] = st.String()
		}
		r.observer.StreamState(s.String(), all)
	}
	r.notifyLocked()
}

func (r *Relay) notifyLocked() {
	select {
	case r.updates <- struct{}{}:
	default:
	}
}
