package agents

import (
	"context"
	"strings"
	"sync"
)

// Scope is the set of nodes a filter selects. The zero Scope matches
// everything.
type Scope struct {
	nodes map[string]bool
}

// All reports whether the scope matches everything.
func (s Scope) All() bool {
	return s.nodes == nil
}

// AllowsGroup reports whether an entity grouped under group (a node name
// or id) is in scope.
func (s Scope) AllowsGroup(group string) bool {
	if s.nodes == nil {
		return true
	}
	return s.nodes[strings.ToLower(group)]
}

// AllowsAgent reports whether the agent runs on an in-scope node.
func (s Scope) AllowsAgent(a Agent) bool {
	if s.nodes == nil {
		return true
	}
	return s.AllowsGroup(a.NodeID) || s.AllowsGroup(a.NodeName)
}

// ScopeFor computes the scope of f over topo. Filters naming unknown
// sites or nodes yield an empty, non-nil scope.
func ScopeFor(topo Topology, f Filter) Scope {
	if f.IsZero() {
		return Scope{}
	}

	nodes := make(map[string]bool)
	add := func(n Node) {
		if n.ID != "" {
			nodes[strings.ToLower(n.ID)] = true
		}
		if n.Name != "" {
			nodes[strings.ToLower(n.Name)] = true
		}
	}

	for _, site := range topo.Sites {
		if f.Site != "" && site.ID != f.Site && site.Name != f.Site {
			continue
		}
		for _, n := range site.Nodes {
			if f.Node != "" && n.ID != f.Node && n.Name != f.Node {
				continue
			}
			add(n)
		}
	}
	return Scope{nodes: nodes}
}

// TopologyCache loads the topology once per filter change.
type TopologyCache struct {
	src Source

	mu     sync.Mutex
	loaded bool
	filter Filter
	scope  Scope
}

// NewTopologyCache creates a cache over src.
func NewTopologyCache(src Source) *TopologyCache {
	return &TopologyCache{src: src}
}

// Scope returns the scope for f, reloading the topology only when f
// differs from the previous call or no load has succeeded yet. On a load
// failure the scope matches everything and the error is returned.
func (c *TopologyCache) Scope(ctx context.Context, f Filter) (Scope, error) {
	if f.IsZero() {
		return Scope{}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded && c.filter == f {
		return c.scope, nil
	}

	topo, err := c.src.Topology(ctx)
	if err != nil {
		return Scope{}, err
	}

	c.loaded = true
	c.filter = f
	c.scope = ScopeFor(topo, f)
	return c.scope, nil
}

// Invalidate forces the next Scope call to reload, even for an unchanged
// filter.
func (c *TopologyCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
}
