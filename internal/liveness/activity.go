package liveness

import "time"

// Activity grades how healthy an ACTIVE agent looks.
type Activity string

const (
	ActivityHealthy  Activity = "HEALTHY"
	ActivityStagnant Activity = "STAGNANT"
	ActivityIdle     Activity = "IDLE"
	ActivityWarning  Activity = "WARNING"
	ActivityCritical Activity = "CRITICAL"
	ActivityUnknown  Activity = "UNKNOWN"
	// ActivityNone is reported for agents that are not ACTIVE.
	ActivityNone Activity = ""
)

// Classify grades an agent from its heartbeat age and its bucks history
// (oldest first, real samples only). Heartbeat age is checked from the
// most severe window down; growth is only judged with two or more samples.
func Classify(in Input, bucks []float64, now time.Time, w Windows) Activity {
	if in.Status != StatusActive {
		return ActivityNone
	}
	if in.LastHeartbeat == nil {
		return ActivityUnknown
	}

	age := now.Sub(*in.LastHeartbeat)
	switch {
	case age > w.Critical:
		return ActivityCritical
	case age > w.Warning:
		return ActivityWarning
	case age > w.Idle:
		return ActivityIdle
	}

	if len(bucks) >= 2 && bucks[len(bucks)-1]-bucks[0] < w.MinGrowth {
		return ActivityStagnant
	}
	return ActivityHealthy
}

// NeedsAttention reports whether the activity should be flagged.
func (a Activity) NeedsAttention() bool {
	switch a {
	case ActivityWarning, ActivityCritical, ActivityStagnant:
		return true
	default:
		return false
	}
}
