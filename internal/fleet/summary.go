package fleet

import (
	"sort"

	"github.com/loopfactory/fleetdash/internal/liveness"
)

// ActivityOrder is the display order of activity grades, healthiest first.
var ActivityOrder = []liveness.Activity{
	liveness.ActivityHealthy,
	liveness.ActivityStagnant,
	liveness.ActivityIdle,
	liveness.ActivityWarning,
	liveness.ActivityCritical,
	liveness.ActivityUnknown,
}

// AgentSummary rolls the agent rows of one cycle up into activity counts,
// the agents needing attention, and the bucks leaderboard.
type AgentSummary struct {
	Activity    map[liveness.Activity]int `json:"activity" yaml:"activity"`
	Alerts      []Alert                   `json:"alerts" yaml:"alerts"`
	Leaderboard []LeaderEntry             `json:"leaderboard,omitempty" yaml:"leaderboard,omitempty"`
}

// Alert is an agent whose activity needs attention.
type Alert struct {
	AgentID  string            `json:"agent_id" yaml:"agent_id"`
	Label    string            `json:"label" yaml:"label"`
	Activity liveness.Activity `json:"activity" yaml:"activity"`
}

// LeaderEntry is one rank of the bucks leaderboard.
type LeaderEntry struct {
	Rank      int             `json:"rank" yaml:"rank"`
	AgentID   string          `json:"agent_id" yaml:"agent_id"`
	Label     string          `json:"label" yaml:"label"`
	Status    liveness.Status `json:"status" yaml:"status"`
	Bucks     float64         `json:"bucks" yaml:"bucks"`
	Followers int             `json:"followers" yaml:"followers"`
}

// leaderboardStatuses are the statuses that compete on the leaderboard.
var leaderboardStatuses = map[liveness.Status]bool{
	liveness.StatusActive:    true,
	liveness.StatusPending:   true,
	liveness.StatusProbation: true,
}

// Summarize builds the summary of rows. Only ACTIVE agents carry an
// activity grade, so only they are counted and alerted on. Alerts follow
// row order; the leaderboard is ranked by bucks and capped at limit.
func Summarize(rows []AgentRow, limit int) AgentSummary {
	s := AgentSummary{
		Activity: make(map[liveness.Activity]int),
		Alerts:   []Alert{},
	}

	var ranked []AgentRow
	for _, r := range rows {
		if r.Activity != liveness.ActivityNone {
			s.Activity[r.Activity]++
		}
		if r.Activity.NeedsAttention() {
			s.Alerts = append(s.Alerts, Alert{AgentID: r.Agent.ID, Label: r.Agent.Label(), Activity: r.Activity})
		}
		if leaderboardStatuses[r.Agent.Status] {
			ranked = append(ranked, r)
		}
	}

	if limit <= 0 {
		return s
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Agent.Bucks != ranked[j].Agent.Bucks {
			return ranked[i].Agent.Bucks > ranked[j].Agent.Bucks
		}
		return ranked[i].Agent.ID < ranked[j].Agent.ID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	s.Leaderboard = make([]LeaderEntry, len(ranked))
	for i, r := range ranked {
		s.Leaderboard[i] = LeaderEntry{
			Rank:      i + 1,
			AgentID:   r.Agent.ID,
			Label:     r.Agent.Label(),
			Status:    r.Agent.Status,
			Bucks:     r.Agent.Bucks,
			Followers: r.Agent.Followers,
		}
	}
	return s
}
