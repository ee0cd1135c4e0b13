package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func boolPtr(b bool) *bool { return &b }

func TestRunning(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want bool
	}{
		{"heartbeat 4m ago", Input{LastHeartbeat: ago(4 * time.Minute)}, true},
		{"heartbeat 6m ago", Input{LastHeartbeat: ago(6 * time.Minute)}, false},
		{"exactly at window", Input{LastHeartbeat: ago(5 * time.Minute)}, false},
		{"no heartbeat", Input{}, false},
		{"override true wins", Input{LastHeartbeat: ago(time.Hour), RunningOverride: boolPtr(true)}, true},
		{"override false wins", Input{LastHeartbeat: ago(time.Second), RunningOverride: boolPtr(false)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Running(tt.in, now, DefaultWindow))
		})
	}
}

func TestDerive_Starving(t *testing.T) {
	w := DefaultWindows()

	tests := []struct {
		name string
		in   Input
		want State
	}{
		{"active never alive", Input{Status: StatusActive}, State{Running: false, Starving: true}},
		{"pending never alive", Input{Status: StatusPending}, State{Running: false, Starving: false}},
		{"active and running", Input{Status: StatusActive, LastHeartbeat: ago(time.Minute)}, State{Running: true}},
		{"active quiet 30m", Input{Status: StatusActive, LastHeartbeat: ago(30 * time.Minute)}, State{}},
		{"active quiet 61m", Input{Status: StatusActive, LastHeartbeat: ago(61 * time.Minute)}, State{Starving: true}},
		{"retired quiet for days", Input{Status: StatusRetired, LastHeartbeat: ago(72 * time.Hour)}, State{}},
		{"override keeps active fed", Input{Status: StatusActive, RunningOverride: boolPtr(true)}, State{Running: true}},
		{"override false never alive", Input{Status: StatusActive, RunningOverride: boolPtr(false)}, State{Starving: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.in, now, w))
		})
	}
}

func TestDerive_Idempotent(t *testing.T) {
	in := Input{Status: StatusActive, LastHeartbeat: ago(90 * time.Minute)}
	w := DefaultWindows()
	first := Derive(in, now, w)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Derive(in, now, w))
	}
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusActive, ParseStatus(" active "))
	assert.Equal(t, StatusProbation, ParseStatus("Probation"))
	assert.Equal(t, Status("ZOMBIE"), ParseStatus("zombie"))
}

func TestClassify(t *testing.T) {
	w := DefaultWindows()

	tests := []struct {
		name  string
		in    Input
		bucks []float64
		want  Activity
	}{
		{"not active", Input{Status: StatusWaiting, LastHeartbeat: ago(time.Minute)}, nil, ActivityNone},
		{"no heartbeat", Input{Status: StatusActive}, nil, ActivityUnknown},
		{"critical", Input{Status: StatusActive, LastHeartbeat: ago(7 * time.Hour)}, nil, ActivityCritical},
		{"warning", Input{Status: StatusActive, LastHeartbeat: ago(4 * time.Hour)}, nil, ActivityWarning},
		{"idle", Input{Status: StatusActive, LastHeartbeat: ago(2 * time.Hour)}, nil, ActivityIdle},
		{"stagnant", Input{Status: StatusActive, LastHeartbeat: ago(time.Minute)}, []float64{100, 102, 105}, ActivityStagnant},
		{"growing", Input{Status: StatusActive, LastHeartbeat: ago(time.Minute)}, []float64{100, 120}, ActivityHealthy},
		{"single sample", Input{Status: StatusActive, LastHeartbeat: ago(time.Minute)}, []float64{100}, ActivityHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.in, tt.bucks, now, w))
		})
	}

	assert.True(t, ActivityCritical.NeedsAttention())
	assert.True(t, ActivityStagnant.NeedsAttention())
	assert.False(t, ActivityIdle.NeedsAttention())
}
