package reconcile

import "math"

// Scale says how a query's raw values map onto a signal.
type Scale int

const (
	// ScaleRaw passes values through in their source units.
	ScaleRaw Scale = iota
	// ScalePercent accepts either a 0-1 ratio or a 0-100 percentage.
	ScalePercent
)

// ParseScale maps a config scale name to a Scale. Unknown names are raw.
func ParseScale(s string) Scale {
	if s == "percent" {
		return ScalePercent
	}
	return ScaleRaw
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// NormalizePercent treats v <= 1 as a ratio and anything larger as an
// existing percentage, then clamps to [0, 100].
func NormalizePercent(v float64) float64 {
	if v <= 1 {
		v *= 100
	}
	return Clamp(v, 0, 100)
}

// Intensity clamps a raw value to [0, 100] for driving a visual scale.
// The reported value is never clamped this way.
func Intensity(v float64) float64 {
	return Clamp(v, 0, 100)
}

// Normalize applies scale to a raw value.
func (s Scale) Normalize(v float64) float64 {
	if s == ScalePercent {
		return NormalizePercent(v)
	}
	return v
}

// DerivedPercent computes a percentage signal from used and total signals
// when no direct percentage is present.
type DerivedPercent struct {
	Signal string
	Used   string
	Total  string
}

// DefaultDerived derives memory_percent from memory_used and memory_total.
var DefaultDerived = []DerivedPercent{
	{Signal: "memory_percent", Used: "memory_used", Total: "memory_total"},
}

// apply sets d.Signal on e from used/total. A direct (non-derived) value
// always wins, and a non-positive total derives nothing.
func (d DerivedPercent) apply(e *Entity) {
	if cur, ok := e.Signals[d.Signal]; ok && !cur.Derived {
		return
	}
	used, okUsed := e.Signals[d.Used]
	total, okTotal := e.Signals[d.Total]
	if !okUsed || !okTotal || total.Value <= 0 {
		return
	}
	ts := used.TimestampMs
	if total.TimestampMs > ts {
		ts = total.TimestampMs
	}
	e.Signals[d.Signal] = Signal{
		Value:       Clamp(used.Value/total.Value*100, 0, 100),
		TimestampMs: ts,
		Derived:     true,
	}
}
