package modules

import (
	"encoding/json"

	"github.com/b0yaux/enginecore/internal/module"
)

// AudioOutputTypeName and VideoOutputTypeName are the system-module
// types module.EnsureSystemModules creates under the well-known
// masterAudioOut/masterVideoOut names.
const (
	AudioOutputTypeName = "audioOutput"
	VideoOutputTypeName = "videoOutput"
)

var outputDescriptors = []module.Descriptor{
	{Name: "masterLevel", Type: module.Float, Min: 0, Max: 2, Default: 1},
}

// Output is the terminal sink every AUDIO or VIDEO connection ultimately
// routes to — a thin parameter holder with no rendering logic of its
// own, since actual mixing/compositing happens in the external
// rendering process this module just configures.
type Output struct {
	base
}

// NewAudioOutput is registered under AudioOutputTypeName.
func NewAudioOutput(id, name string) module.Module {
	return &Output{base: newBase(id, name, AudioOutputTypeName, outputDescriptors)}
}

// NewVideoOutput is registered under VideoOutputTypeName.
func NewVideoOutput(id, name string) module.Module {
	return &Output{base: newBase(id, name, VideoOutputTypeName, outputDescriptors)}
}

func (o *Output) ApplyOperation(op string, args map[string]float32) error { return nil }

func (o *Output) Initialize(deps module.Dependencies) error {
	if deps.Connections != nil {
		deps.Connections.RestoreConnectionParameters(o.Name())
	}
	return nil
}

func (o *Output) ToJSON() (json.RawMessage, error) {
	return jsonc.Marshal(marshalEnvelope{Parameters: o.snapshotValues()})
}

func (o *Output) FromJSON(raw json.RawMessage) error {
	var env marshalEnvelope
	if err := jsonc.Unmarshal(raw, &env); err != nil {
		return err
	}
	o.loadValues(env.Parameters)
	return nil
}
