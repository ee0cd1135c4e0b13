// Package agents reads the agent list, site/node topology, and bottleneck
// snapshot from the agent backend.
package agents

import (
	"context"
	"encoding/json"
	"time"

	"github.com/loopfactory/fleetdash/internal/liveness"
	"github.com/loopfactory/fleetdash/internal/pipeline"
)

// Agent is one agent as reported by the backend.
type Agent struct {
	ID            string          `json:"id" yaml:"id"`
	Name          string          `json:"name" yaml:"name"`
	DisplayName   string          `json:"display_name" yaml:"display_name"`
	Status        liveness.Status `json:"status" yaml:"status"`
	LastHeartbeat *time.Time      `json:"last_heartbeat" yaml:"last_heartbeat"`
	Bucks         float64         `json:"bucks" yaml:"bucks"`
	Followers     int             `json:"followers" yaml:"followers"`
	// IsRunning is the backend's own running flag, when it reports one.
	IsRunning   *bool  `json:"is_running,omitempty" yaml:"is_running,omitempty"`
	IsProtected bool   `json:"is_protected" yaml:"is_protected"`
	Model       string `json:"model,omitempty" yaml:"model,omitempty"`
	ProfileName string `json:"profile_name,omitempty" yaml:"profile_name,omitempty"`
	SiteID      string `json:"site_id,omitempty" yaml:"site_id,omitempty"`
	NodeID      string `json:"node_id,omitempty" yaml:"node_id,omitempty"`
	SiteName    string `json:"site_name,omitempty" yaml:"site_name,omitempty"`
	NodeName    string `json:"node_name,omitempty" yaml:"node_name,omitempty"`
}

// UnmarshalJSON accepts total_bucks as an alias for bucks and normalizes
// the status.
func (a *Agent) UnmarshalJSON(b []byte) error {
	type plain Agent
	aux := struct {
		*plain
		TotalBucks *float64 `json:"total_bucks"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if aux.TotalBucks != nil && a.Bucks == 0 {
		a.Bucks = *aux.TotalBucks
	}
	a.Status = liveness.ParseStatus(string(a.Status))
	return nil
}

// Label returns the name to show for the agent.
func (a Agent) Label() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// Node returns the best available node label.
func (a Agent) Node() string {
	if a.NodeName != "" {
		return a.NodeName
	}
	return a.NodeID
}

// LivenessInput adapts the agent for liveness derivation.
func (a Agent) LivenessInput() liveness.Input {
	return liveness.Input{
		Status:          a.Status,
		LastHeartbeat:   a.LastHeartbeat,
		RunningOverride: a.IsRunning,
	}
}

// Node is one machine in a site.
type Node struct {
	ID     string `json:"id" yaml:"id"`
	SiteID string `json:"site_id" yaml:"site_id"`
	Name   string `json:"name" yaml:"name"`
}

// Site groups nodes.
type Site struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Nodes []Node `json:"nodes" yaml:"nodes"`
}

// Topology is the site to node tree.
type Topology struct {
	Sites []Site `json:"sites" yaml:"sites"`
}

// Filter scopes reads to a site and optionally a node. Empty fields
// match everything.
type Filter struct {
	Site string `json:"site,omitempty" yaml:"site,omitempty"`
	Node string `json:"node,omitempty" yaml:"node,omitempty"`
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.Site == "" && f.Node == ""
}

// Source reads agents and topology.
type Source interface {
	Agents(ctx context.Context, f Filter) ([]Agent, error)
	Topology(ctx context.Context) (Topology, error)
}

// BottleneckSource reads the pipeline snapshot.
type BottleneckSource interface {
	Bottleneck(ctx context.Context) (pipeline.Snapshot, error)
}
