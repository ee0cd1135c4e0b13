package reconcile

import (
	"sort"
	"strconv"
)

// Kind distinguishes the entity families a Store can hold.
type Kind string

const (
	KindDevice Kind = "gpu"
	KindAgent  Kind = "agent"
)

// Signal is the latest normalized value of one named signal.
type Signal struct {
	Value       float64 `json:"value" yaml:"value"`
	TimestampMs int64   `json:"timestamp_ms" yaml:"timestamp_ms"`
	// Derived is set when the value was computed from other signals.
	Derived bool `json:"derived,omitempty" yaml:"derived,omitempty"`
}

// Entity is one canonical device or agent.
type Entity struct {
	ID          string            `json:"id" yaml:"id"`
	Kind        Kind              `json:"kind" yaml:"kind"`
	GroupKey    string            `json:"group" yaml:"group"`
	DisplayName string            `json:"display_name" yaml:"display_name"`
	Model       string            `json:"model,omitempty" yaml:"model,omitempty"`
	Index       string            `json:"index,omitempty" yaml:"index,omitempty"`
	Signals     map[string]Signal `json:"signals" yaml:"signals"`
	LastUpdated int64             `json:"last_updated_ms" yaml:"last_updated_ms"`
	// Stale is set when the latest cycle produced no samples for the entity.
	Stale bool `json:"stale,omitempty" yaml:"stale,omitempty"`
}

// Value returns the named signal value and whether it is present.
func (e Entity) Value(signal string) (float64, bool) {
	s, ok := e.Signals[signal]
	return s.Value, ok
}

func (e *Entity) clone() Entity {
	c := *e
	c.Signals = make(map[string]Signal, len(e.Signals))
	for k, v := range e.Signals {
		c.Signals[k] = v
	}
	return c
}

// Less orders entities by group key, then numeric index ascending with
// missing or non-numeric indices last, then id.
func Less(a, b Entity) bool {
	if a.GroupKey != b.GroupKey {
		return a.GroupKey < b.GroupKey
	}

	ai, aErr := strconv.Atoi(a.Index)
	bi, bErr := strconv.Atoi(b.Index)
	aNum, bNum := aErr == nil, bErr == nil
	switch {
	case aNum && bNum && ai != bi:
		return ai < bi
	case aNum != bNum:
		return aNum
	}

	return a.ID < b.ID
}

// Sort orders entities in place with Less.
func Sort(entities []Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		return Less(entities[i], entities[j])
	})
}
