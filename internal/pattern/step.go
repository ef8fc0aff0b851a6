// Package pattern implements the stateless pattern/step/column data model
// and the pattern chain progression primitive (spec §3, §4.2, §4.3).
//
// Patterns are pure data — PatternRuntime (internal/runtime) owns the
// mutable playback state layered on top, mirroring the Strudel/TidalCycles
// split the original engine (b0yaux/videoTracker) documents in
// PatternRuntime.h: "patterns are stateless data, runtime manages state
// separately."
package pattern

import "github.com/b0yaux/enginecore/internal/enginerr"

// ReservedParameterKeys names are authoritative on Step's fixed fields and
// must never appear in Step.Parameters (spec §3 invariant).
var ReservedParameterKeys = map[string]bool{
	"note":   true,
	"chance": true,
	"ratio":  true,
	"index":  true,
	"length": true,
}

// Step is one row of a Pattern. Index < 0 means "rest" (no trigger).
type Step struct {
	Index  int32 `json:"index"`  // -1 = rest
	Length int32 `json:"length"` // 1..16
	Note   int32 `json:"note"`   // -1 = unset
	Chance int32 `json:"chance"` // 0..100
	RatioA int32 `json:"ratioA"` // 1..16
	RatioB int32 `json:"ratioB"` // 1..16

	// Parameters holds module-addressed, free-form per-step values keyed
	// by parameter name. Never contains a ReservedParameterKeys key.
	Parameters map[string]float32 `json:"parameters,omitempty"`
}

// DefaultStep returns a rest step with the spec's default field values.
func DefaultStep() Step {
	return Step{
		Index:  -1,
		Length: 1,
		Note:   -1,
		Chance: 100,
		RatioA: 1,
		RatioB: 1,
	}
}

// Clone returns a deep copy (Parameters map is copied, not shared).
func (s Step) Clone() Step {
	out := s
	if s.Parameters != nil {
		out.Parameters = make(map[string]float32, len(s.Parameters))
		for k, v := range s.Parameters {
			out.Parameters[k] = v
		}
	}
	return out
}

// HasTrigger reports whether this step fires a trigger at all (index >= 0),
// independent of the ratio/chance gates evaluated at runtime.
func (s Step) HasTrigger() bool { return s.Index >= 0 }

// SetParameter sets a free-form step parameter. Returns InvalidArgument if
// name collides with a reserved fixed-field name (spec §3 invariant).
func (s *Step) SetParameter(name string, value float32) error {
	if ReservedParameterKeys[name] {
		return enginerr.New(enginerr.InvalidArgument, "Step.SetParameter",
			"parameter name \""+name+"\" is reserved for a fixed step field")
	}
	if s.Parameters == nil {
		s.Parameters = make(map[string]float32)
	}
	s.Parameters[name] = value
	return nil
}

// SetLength sets the step length, clamped to the spec's 1..16 range.
func (s *Step) SetLength(n int32) { s.Length = clampLength(n) }

// SetRatio sets ratioA/ratioB, each clamped to the spec's 1..16 range.
func (s *Step) SetRatio(a, b int32) {
	s.RatioA = clampRatio(a)
	s.RatioB = clampRatio(b)
}

// SetChance sets the trigger chance, clamped to the spec's 0..100 range.
func (s *Step) SetChance(n int32) { s.Chance = clampChance(n) }

// clampLength clamps a step length to the spec's 1..16 range.
func clampLength(n int32) int32 {
	if n < 1 {
		return 1
	}
	if n > 16 {
		return 16
	}
	return n
}

// clampRatio clamps a ratioA/ratioB value to the spec's 1..16 range.
func clampRatio(n int32) int32 {
	if n < 1 {
		return 1
	}
	if n > 16 {
		return 16
	}
	return n
}

// clampChance clamps a chance value to the spec's 0..100 range.
func clampChance(n int32) int32 {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
