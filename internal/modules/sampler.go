package modules

import (
	"encoding/json"
	"sync"

	"github.com/hypebeast/go-osc/osc"

	"github.com/b0yaux/enginecore/internal/module"
	"github.com/b0yaux/enginecore/internal/runtime"
)

// SamplerTypeName is the factory type name Sampler registers under.
const SamplerTypeName = "sampler"

var samplerDescriptors = []module.Descriptor{
	{Name: "gain", Type: module.Float, Min: 0, Max: 2, Default: 1},
	{Name: "pitch", Type: module.Float, Min: 0.25, Max: 4, Default: 1},
	{Name: "pan", Type: module.Float, Min: -1, Max: 1, Default: 0},
}

// Sampler is a trigger-consuming module: it subscribes to a sequencer's
// TriggerEvent stream and dispatches an OSC "/sampler" message per
// trigger, following the teacher's SendOSCSamplerMessage shape. Sample
// decoding and playback happen entirely in the external rendering
// process; this type only tracks which file is selected and forwards
// note/duration/gain data to it.
type Sampler struct {
	base

	mu              sync.Mutex
	filePath        string
	loaded          bool
	boundSequencer  string
	osc             *osc.Client
	unsubscribeFunc func()
}

// NewSampler is registered in module.Factory under SamplerTypeName.
func NewSampler(id, name string) module.Module {
	return &Sampler{base: newBase(id, name, SamplerTypeName, samplerDescriptors)}
}

// LoadSample records the sample file path lazily — no decoding happens
// here, matching spec §5's "modules that hold media buffers load them
// lazily" (the buffer itself lives in the external rendering process).
func (s *Sampler) LoadSample(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filePath = path
	s.loaded = path != ""
}

// Unload clears the selected file without affecting parameters.
func (s *Sampler) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filePath = ""
	s.loaded = false
}

// BindSequencer sets which sequencer's TriggerEvent stream this sampler
// listens to; takes effect on the next Initialize (session load re-binds
// automatically since Initialize runs again with isRestored=true).
func (s *Sampler) BindSequencer(sequencerName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boundSequencer = sequencerName
}

func (s *Sampler) ApplyOperation(op string, args map[string]float32) error {
	switch op {
	case "unload":
		s.Unload()
		return nil
	default:
		return nil
	}
}

func (s *Sampler) Initialize(deps module.Dependencies) error {
	s.mu.Lock()
	s.osc = deps.OSC
	seq := s.boundSequencer
	if s.unsubscribeFunc != nil {
		s.unsubscribeFunc()
		s.unsubscribeFunc = nil
	}
	s.mu.Unlock()

	if seq != "" && deps.Runtime != nil {
		unsub := deps.Runtime.Subscribe(seq, s.onTrigger)
		s.mu.Lock()
		s.unsubscribeFunc = unsub
		s.mu.Unlock()
	}
	if deps.Connections != nil {
		deps.Connections.RestoreConnectionParameters(s.Name())
	}
	return nil
}

// onTrigger is the TriggerEvent handler registered with PatternRuntime;
// it sends one OSC "/sampler" message per trigger, following the
// teacher's SendOSCSamplerMessage/sendOSCMessage pattern.
func (s *Sampler) onTrigger(ev runtime.TriggerEvent) {
	s.mu.Lock()
	client := s.osc
	path := s.filePath
	loaded := s.loaded
	s.mu.Unlock()
	if client == nil || !loaded {
		return
	}

	gain, _ := s.GetParameter("gain")
	pitch, _ := s.GetParameter("pitch")
	pan, _ := s.GetParameter("pan")

	msg := osc.NewMessage("/sampler")
	msg.Append(path)
	msg.Append(s.Name())
	msg.Append("note")
	msg.Append(ev.Parameters["note"])
	msg.Append("duration")
	msg.Append(ev.Duration)
	msg.Append("gain")
	msg.Append(gain)
	msg.Append("pitch")
	msg.Append(pitch)
	msg.Append("pan")
	msg.Append(pan)
	_ = client.Send(msg)
}

func (s *Sampler) ToJSON() (json.RawMessage, error) {
	s.mu.Lock()
	data, err := jsonc.Marshal(struct {
		FilePath       string `json:"filePath"`
		BoundSequencer string `json:"boundSequencer,omitempty"`
	}{FilePath: s.filePath, BoundSequencer: s.boundSequencer})
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return jsonc.Marshal(marshalEnvelope{Parameters: s.snapshotValues(), Data: data})
}

func (s *Sampler) FromJSON(raw json.RawMessage) error {
	var env marshalEnvelope
	if err := jsonc.Unmarshal(raw, &env); err != nil {
		return err
	}
	s.loadValues(env.Parameters)
	if len(env.Data) > 0 {
		var d struct {
			FilePath       string `json:"filePath"`
			BoundSequencer string `json:"boundSequencer"`
		}
		if err := jsonc.Unmarshal(env.Data, &d); err != nil {
			return err
		}
		s.mu.Lock()
		s.filePath = d.FilePath
		s.loaded = d.FilePath != ""
		s.boundSequencer = d.BoundSequencer
		s.mu.Unlock()
	}
	return nil
}
