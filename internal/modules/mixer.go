package modules

import (
	"encoding/json"
	"sync"

	"github.com/hypebeast/go-osc/osc"

	"github.com/b0yaux/enginecore/internal/module"
)

// MixerTypeName is the factory type name Mixer registers under.
const MixerTypeName = "mixer"

// Mixer's parameter range follows the teacher's decibel conventions
// (PregainDB/PostgainDB/BiasDB/SaturationDB/InputLevelDB/ReverbSendPercent
// in model.go), generalized to one channel strip per Mixer instance.
var mixerDescriptors = []module.Descriptor{
	{Name: "levelDB", Type: module.Float, Min: -96, Max: 32, Default: 0},
	{Name: "pan", Type: module.Float, Min: -1, Max: 1, Default: 0},
	{Name: "reverbSendPercent", Type: module.Float, Min: 0, Max: 100, Default: 0},
	{Name: "muted", Type: module.Bool, Min: 0, Max: 1, Default: 0},
}

// Mixer is a parameter-routing sink: changing levelDB/pan/reverbSendPercent
// with broadcast=true dispatches an OSC "/mixer" message, following the
// teacher's SendOSCTrackSetLevelMessage/sendOSCMessage pattern.
type Mixer struct {
	base
	mu  sync.Mutex
	osc *osc.Client
}

// NewMixer is registered in module.Factory under MixerTypeName.
func NewMixer(id, name string) module.Module {
	return &Mixer{base: newBase(id, name, MixerTypeName, mixerDescriptors)}
}

func (m *Mixer) SetParameter(name string, value float32, broadcast bool) error {
	m.base.mu.Lock()
	err := m.base.setParameterLocked(name, value)
	m.base.mu.Unlock()
	if err != nil {
		return err
	}
	if broadcast {
		m.sendLevelMessage()
	}
	return nil
}

func (m *Mixer) sendLevelMessage() {
	m.mu.Lock()
	client := m.osc
	m.mu.Unlock()
	if client == nil {
		return
	}
	level, _ := m.GetParameter("levelDB")
	pan, _ := m.GetParameter("pan")
	reverb, _ := m.GetParameter("reverbSendPercent")

	msg := osc.NewMessage("/mixer")
	msg.Append(m.Name())
	msg.Append("levelDB")
	msg.Append(level)
	msg.Append("pan")
	msg.Append(pan)
	msg.Append("reverbSendPercent")
	msg.Append(reverb)
	_ = client.Send(msg)
}

func (m *Mixer) Initialize(deps module.Dependencies) error {
	m.mu.Lock()
	m.osc = deps.OSC
	m.mu.Unlock()
	if deps.Connections != nil {
		deps.Connections.RestoreConnectionParameters(m.Name())
	}
	return nil
}

func (m *Mixer) ApplyOperation(op string, args map[string]float32) error { return nil }

func (m *Mixer) ToJSON() (json.RawMessage, error) {
	return jsonc.Marshal(marshalEnvelope{Parameters: m.snapshotValues()})
}

func (m *Mixer) FromJSON(raw json.RawMessage) error {
	var env marshalEnvelope
	if err := jsonc.Unmarshal(raw, &env); err != nil {
		return err
	}
	m.loadValues(env.Parameters)
	return nil
}
