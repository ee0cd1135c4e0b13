// Package liveness derives running, starving, and activity state for
// agents from their declared status and heartbeat recency. Every function
// here is pure.
package liveness

import (
	"strings"
	"time"
)

// Status is the externally authoritative agent lifecycle status.
type Status string

const (
	StatusDesign    Status = "DESIGN"
	StatusPending   Status = "PENDING"
	StatusWaiting   Status = "WAITING"
	StatusActive    Status = "ACTIVE"
	StatusProbation Status = "PROBATION"
	StatusRetired   Status = "RETIRED"
)

// ParseStatus normalizes an upstream status string. Case and surrounding
// whitespace are ignored; unknown values are returned upper-cased as-is.
func ParseStatus(s string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(s)))
}

// Default windows.
const (
	DefaultWindow     = 5 * time.Minute
	DefaultStarvation = 60 * time.Minute
	DefaultIdle       = 90 * time.Minute
	DefaultWarning    = 3 * time.Hour
	DefaultCritical   = 6 * time.Hour
	DefaultMinGrowth  = 10.0
)

// Windows holds the durations used for derivation.
type Windows struct {
	// Liveness is how recent a heartbeat must be for an agent to be running.
	Liveness time.Duration
	// Starvation is how long an ACTIVE agent may go without a heartbeat.
	Starvation time.Duration
	Idle       time.Duration
	Warning    time.Duration
	Critical   time.Duration
	// MinGrowth is the bucks growth across the history window below which
	// an agent is stagnant.
	MinGrowth float64
}

// DefaultWindows returns the standard windows.
func DefaultWindows() Windows {
	return Windows{
		Liveness:   DefaultWindow,
		Starvation: DefaultStarvation,
		Idle:       DefaultIdle,
		Warning:    DefaultWarning,
		Critical:   DefaultCritical,
		MinGrowth:  DefaultMinGrowth,
	}
}

// Input is what derivation reads about one agent.
type Input struct {
	Status        Status
	LastHeartbeat *time.Time
	// RunningOverride, when set, short-circuits heartbeat inference.
	RunningOverride *bool
}

// State is the derived liveness of one agent.
type State struct {
	Running  bool `json:"running" yaml:"running"`
	Starving bool `json:"starving" yaml:"starving"`
}

// Running reports whether the agent is running at now.
func Running(in Input, now time.Time, window time.Duration) bool {
	if in.RunningOverride != nil {
		return *in.RunningOverride
	}
	if in.LastHeartbeat == nil {
		return false
	}
	return now.Sub(*in.LastHeartbeat) < window
}

// Starving reports whether an ACTIVE agent has gone without a heartbeat
// for longer than the starvation window, or has never had one.
func Starving(in Input, running bool, now time.Time, starvation time.Duration) bool {
	if in.Status != StatusActive || running {
		return false
	}
	if in.LastHeartbeat == nil {
		return true
	}
	return now.Sub(*in.LastHeartbeat) > starvation
}

// Derive computes the full liveness state.
func Derive(in Input, now time.Time, w Windows) State {
	running := Running(in, now, w.Liveness)
	return State{
		Running:  running,
		Starving: Starving(in, running, now, w.Starvation),
	}
}
