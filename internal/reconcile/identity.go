package reconcile

import "strings"

// Resolver is a priority-ordered list of label keys for one field.
// Upstream exporters disagree on label names, so every field is resolved
// through exactly one Resolver rather than ad-hoc lookups.
type Resolver []string

// Resolve returns the first non-blank value among the resolver's keys.
func (r Resolver) Resolve(labels map[string]string) string {
	for _, key := range r {
		if v := strings.TrimSpace(labels[key]); v != "" {
			return v
		}
	}
	return ""
}

// Label resolvers, enumerated once.
var (
	DeviceIDLabels = Resolver{"UUID", "uuid", "gpu_uuid", "device_uuid"}
	HostLabels     = Resolver{"Hostname", "hostname", "host", "node", "kubernetes_node", "instance"}
	IndexLabels    = Resolver{"gpu", "minor_number", "index", "device_index", "gpu_index"}
	ModelLabels    = Resolver{"modelName", "model_name", "model"}
	DeviceLabels   = Resolver{"device_name", "device", "name"}

	AgentIDLabels   = Resolver{"agent_id", "agent"}
	AgentNameLabels = Resolver{"display_name", "agent_name", "name"}
	AgentNodeLabels = Resolver{"node_name", "node", "node_id", "site_name", "site"}
)

// DefaultIndex fills the index portion of a synthetic device key.
const DefaultIndex = "0"

// Placeholder labels. A placeholder never overwrites a known value and is
// always replaced by the first real value that arrives.
const (
	UnknownGroup  = "Unknown node"
	DefaultDevice = "GPU"
	DefaultAgent  = "Agent"
)

// Labels are the descriptive fields carried by a sample.
type Labels struct {
	GroupKey    string
	DisplayName string
	Model       string
	Index       string
}

// Identity is the resolved identity of one sample.
type Identity struct {
	ID     string
	Labels Labels
	// Fallback is set when the key was synthesized with a defaulted index.
	Fallback bool
}

// Scheme resolves sample labels to an entity identity.
type Scheme interface {
	Kind() Kind
	// Identify returns false when the labels cannot produce any identity.
	Identify(labels map[string]string) (Identity, bool)
	// Placeholders are the labels a freshly created entity starts with.
	Placeholders() Labels
}

// DeviceScheme identifies GPU devices: explicit UUID first, then a
// synthetic "{host}-{index}" key.
type DeviceScheme struct{}

// Kind implements Scheme.
func (DeviceScheme) Kind() Kind { return KindDevice }

// Placeholders implements Scheme.
func (DeviceScheme) Placeholders() Labels {
	return Labels{GroupKey: UnknownGroup, DisplayName: DefaultDevice}
}

// Identify implements Scheme.
func (DeviceScheme) Identify(labels map[string]string) (Identity, bool) {
	host := HostLabels.Resolve(labels)
	index := IndexLabels.Resolve(labels)
	desc := Labels{
		GroupKey:    host,
		DisplayName: DeviceLabels.Resolve(labels),
		Model:       ModelLabels.Resolve(labels),
		Index:       index,
	}

	if id := DeviceIDLabels.Resolve(labels); id != "" {
		return Identity{ID: id, Labels: desc}, true
	}

	if host == "" {
		return Identity{}, false
	}

	fallback := index == ""
	if fallback {
		index = DefaultIndex
	}
	return Identity{ID: host + "-" + index, Labels: desc, Fallback: fallback}, true
}

// AgentScheme identifies agents by their agent id label.
type AgentScheme struct{}

// Kind implements Scheme.
func (AgentScheme) Kind() Kind { return KindAgent }

// Placeholders implements Scheme.
func (AgentScheme) Placeholders() Labels {
	return Labels{GroupKey: UnknownGroup, DisplayName: DefaultAgent}
}

// Identify implements Scheme.
func (AgentScheme) Identify(labels map[string]string) (Identity, bool) {
	id := AgentIDLabels.Resolve(labels)
	if id == "" {
		return Identity{}, false
	}
	return Identity{
		ID: id,
		Labels: Labels{
			GroupKey:    AgentNodeLabels.Resolve(labels),
			DisplayName: AgentNameLabels.Resolve(labels),
			Model:       ModelLabels.Resolve(labels),
		},
	}, true
}

// backfill applies the label policy: the first real value sets the field,
// later values only replace an unset or placeholder value, and a blank or
// placeholder incoming value never changes anything.
func backfill(cur *string, incoming, placeholder string) {
	if incoming == "" || incoming == placeholder {
		return
	}
	if *cur == "" || *cur == placeholder {
		*cur = incoming
	}
}
