// Package modules implements the concrete module types the engine ships
// with: Sampler, Sequencer, Mixer, and the system Output sinks (spec
// §4.10). Each satisfies module.Module; Sampler and Mixer dispatch to the
// external audio/video rendering process over OSC ("/sampler", "/mixer"
// messages), while Sequencer and Output send nothing themselves — this
// package never decodes or renders media itself.
package modules

import (
	"encoding/json"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/b0yaux/enginecore/internal/enginerr"
	"github.com/b0yaux/enginecore/internal/module"
)

var jsonc = jsoniter.ConfigCompatibleWithStandardLibrary

// base implements the parameter-bag half of module.Module: identity,
// enabled flag, and a descriptor-clamped value map. Concrete types embed
// it and add their own fields, Initialize, ToJSON/FromJSON.
type base struct {
	mu          sync.RWMutex
	id          string
	name        string
	typeName    string
	enabled     bool
	descriptors []module.Descriptor
	values      map[string]float32
}

func newBase(id, name, typeName string, descriptors []module.Descriptor) base {
	values := make(map[string]float32, len(descriptors))
	for _, d := range descriptors {
		values[d.Name] = d.Default
	}
	return base{id: id, name: name, typeName: typeName, enabled: true, descriptors: descriptors, values: values}
}

func (b *base) ID() string       { return b.id }
func (b *base) Name() string     { return b.name }
func (b *base) TypeName() string { return b.typeName }

func (b *base) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled
}

func (b *base) SetEnabled(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = v
}

func (b *base) GetParameters() []module.Descriptor {
	out := make([]module.Descriptor, len(b.descriptors))
	copy(out, b.descriptors)
	return out
}

func (b *base) descriptor(name string) (module.Descriptor, bool) {
	for _, d := range b.descriptors {
		if d.Name == name {
			return d, true
		}
	}
	return module.Descriptor{}, false
}

func (b *base) GetParameter(name string) (float32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[name]
	if !ok {
		return 0, enginerr.New(enginerr.NotFound, "Module.GetParameter", "unknown parameter: "+name)
	}
	return v, nil
}

// setParameterLocked clamps value to the descriptor's [Min,Max] range
// (when set) and stores it. broadcast is accepted for interface
// conformance; concrete types that need to dispatch an OSC message on
// broadcast do so in their own SetParameter override after calling this.
func (b *base) setParameterLocked(name string, value float32) error {
	d, ok := b.descriptor(name)
	if !ok {
		return enginerr.New(enginerr.NotFound, "Module.SetParameter", "unknown parameter: "+name)
	}
	if d.Min != 0 || d.Max != 0 {
		if value < d.Min {
			value = d.Min
		}
		if value > d.Max {
			value = d.Max
		}
	}
	b.values[name] = value
	return nil
}

func (b *base) SetParameter(name string, value float32, broadcast bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setParameterLocked(name, value)
}

func (b *base) snapshotValues() map[string]float32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]float32, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}

func (b *base) loadValues(values map[string]float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range values {
		if _, ok := b.descriptor(k); ok {
			b.values[k] = v
		}
	}
}

// marshalEnvelope is the common ToJSON shape: parameter values plus a
// free-form "data" object each concrete type supplies.
type marshalEnvelope struct {
	Parameters map[string]float32 `json:"parameters"`
	Data       json.RawMessage    `json:"data,omitempty"`
}
