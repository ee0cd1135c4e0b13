// Package pipeline aggregates the upstream bottleneck snapshot into
// per-check, per-stage, and overall verdicts.
//
// Thresholds and check statuses are decided upstream. The only rule owned
// here is that a blocked check makes its stage, and therefore the whole
// pipeline, a bottleneck.
package pipeline

import (
	"encoding/json"
	"strings"
)

// CheckStatus is the upstream verdict for a single check.
type CheckStatus string

const (
	StatusOK      CheckStatus = "ok"
	StatusWarning CheckStatus = "warning"
	StatusBlocked CheckStatus = "blocked"
)

// ParseStatus maps an upstream status to a CheckStatus. Unrecognized
// values are treated as warnings: they are surfaced but never block.
func ParseStatus(s string) CheckStatus {
	switch CheckStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusOK:
		return StatusOK
	case StatusBlocked:
		return StatusBlocked
	default:
		return StatusWarning
	}
}

// UnmarshalJSON parses the status leniently with ParseStatus.
func (s *CheckStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = ParseStatus(raw)
	return nil
}

func (s CheckStatus) rank() int {
	switch s {
	case StatusBlocked:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// Check is one named gate inside a stage.
type Check struct {
	Name      string      `json:"name" yaml:"name"`
	Current   float64     `json:"current" yaml:"current"`
	Threshold *float64    `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Status    CheckStatus `json:"status" yaml:"status"`
	Detail    string      `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Stage is one ordered gating stage.
type Stage struct {
	Name   string  `json:"name" yaml:"name"`
	Label  string  `json:"label,omitempty" yaml:"label,omitempty"`
	Checks []Check `json:"checks" yaml:"checks"`
}

// Counters are the scheduler counters that ride along with the snapshot.
type Counters struct {
	Running      int `json:"running" yaml:"running"`
	ActiveAgents int `json:"active_agents" yaml:"active_agents"`
	JobCount     int `json:"job_count" yaml:"job_count"`
	Inflight     int `json:"inflight" yaml:"inflight"`
}

// Snapshot is the upstream stage/check tree for one cycle.
type Snapshot struct {
	Stages   []Stage  `json:"stages" yaml:"stages"`
	Counters Counters `json:"counters" yaml:"counters"`
}

// StageVerdict is the evaluated state of one stage.
type StageVerdict struct {
	Stage `yaml:",inline"`
	// Status is the worst status among the stage's checks.
	Status        CheckStatus `json:"status" yaml:"status"`
	HasBottleneck bool        `json:"has_bottleneck" yaml:"has_bottleneck"`
	Blocked       []string    `json:"blocked,omitempty" yaml:"blocked,omitempty"`
}

// Verdict is the evaluated pipeline.
type Verdict struct {
	Stages        []StageVerdict `json:"stages" yaml:"stages"`
	Counters      Counters       `json:"counters" yaml:"counters"`
	Status        CheckStatus    `json:"status" yaml:"status"`
	HasBottleneck bool           `json:"has_bottleneck" yaml:"has_bottleneck"`
}

// Evaluate aggregates a snapshot. Stage order is preserved.
func Evaluate(s Snapshot) Verdict {
	v := Verdict{
		Stages:   make([]StageVerdict, 0, len(s.Stages)),
		Counters: s.Counters,
		Status:   StatusOK,
	}

	for _, stage := range s.Stages {
		sv := StageVerdict{Stage: stage, Status: StatusOK}
		for _, c := range stage.Checks {
			if c.Status.rank() > sv.Status.rank() {
				sv.Status = c.Status
			}
			if c.Status == StatusBlocked {
				sv.HasBottleneck = true
				sv.Blocked = append(sv.Blocked, c.Name)
			}
		}

		if sv.Status.rank() > v.Status.rank() {
			v.Status = sv.Status
		}
		v.HasBottleneck = v.HasBottleneck || sv.HasBottleneck
		v.Stages = append(v.Stages, sv)
	}

	return v
}

// FirstBlocked returns the first stage that is a bottleneck.
func (v Verdict) FirstBlocked() (StageVerdict, bool) {
	for _, s := range v.Stages {
		if s.HasBottleneck {
			return s, true
		}
	}
	return StageVerdict{}, false
}

// CanRunAgent reports whether the pipeline would admit another agent.
func (v Verdict) CanRunAgent() bool {
	return !v.HasBottleneck
}
