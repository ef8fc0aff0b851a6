// Package module implements ModuleRegistry and ModuleFactory (spec §4.6):
// UUID identity, a human-name alias, a static type registry, and the
// uniform module contract every concrete module type satisfies.
package module

import (
	"encoding/json"

	"github.com/hypebeast/go-osc/osc"

	"github.com/b0yaux/enginecore/internal/runtime"
)

// ParameterType enumerates the kinds a module parameter Descriptor can
// take (spec §4.10).
type ParameterType string

const (
	Float  ParameterType = "FLOAT"
	Int    ParameterType = "INT"
	Bool   ParameterType = "BOOL"
	Enum   ParameterType = "ENUM"
	String ParameterType = "STRING"
)

// Descriptor describes one module-exposed parameter.
type Descriptor struct {
	Name        string        `json:"name"`
	Type        ParameterType `json:"type"`
	Min         float32       `json:"min,omitempty"`
	Max         float32       `json:"max,omitempty"`
	Default     float32       `json:"default"`
	EnumOptions []string      `json:"enumOptions,omitempty"`
}

// Dependencies bundles the collaborators Module.Initialize receives, so
// adding a new one doesn't ripple through every module type's signature.
type Dependencies struct {
	Clock       ClockReader
	Registry    *Registry
	Connections ConnectionHook
	Router      ParameterResolver
	Runtime     TriggerSource
	Patterns    PatternController
	OSC         *osc.Client // dispatch to the external audio/video rendering process; nil if unconfigured
	IsRestored  bool
}

// ClockReader is the slice of Clock a module needs: current BPM and
// transport state, nothing that would let a module drive transport itself.
type ClockReader interface {
	BPM() float32
	IsPlaying() bool
}

// ConnectionHook lets a module restore connection-specific parameters
// (mixer volume, opacity) once the topology is back in place (spec §4.7).
type ConnectionHook interface {
	RestoreConnectionParameters(moduleID string)
}

// ParameterResolver resolves a ParameterPath to a live value elsewhere in
// the module graph (spec's ParameterPath grammar, internal/router).
type ParameterResolver interface {
	Resolve(path string) (float32, error)
}

// TriggerSource lets a trigger-consuming module subscribe to
// PatternRuntime's TriggerEvent stream (spec §4.10), keyed by the
// sequencer module name bound to the pattern it cares about.
type TriggerSource interface {
	Subscribe(sequencerName string, fn func(runtime.TriggerEvent)) (unsubscribe func())
}

// PatternController is the slice of PatternRuntime a sequencer-driving
// module needs to own its own binding: bind/unbind itself (by module
// name, acting as the sequencer name) to a pattern and chain, and drive
// that pattern's transport.
type PatternController interface {
	BindSequencer(sequencerName, patternName, chainName string, chainEnabled bool) error
	UnbindSequencer(sequencerName string)
	GetBinding(sequencerName string) (runtime.Binding, error)
	SetPlaying(patternName string, playing bool) error
}

// Module is the uniform contract every concrete module type satisfies
// (spec §4.10): a parameter bag, a descriptor list, JSON persistence, and
// a lifecycle hook run once dependencies are wired.
type Module interface {
	ID() string
	Name() string
	TypeName() string

	Enabled() bool
	SetEnabled(bool)

	GetParameter(name string) (float32, error)
	SetParameter(name string, value float32, broadcast bool) error
	GetParameters() []Descriptor

	ToJSON() (json.RawMessage, error)
	FromJSON(data json.RawMessage) error

	Initialize(deps Dependencies) error
}

// Creator builds a fresh Module instance of one type, with the given
// instance id and name. Registered with a Factory via Factory.Register.
type Creator func(id, name string) Module
