package modules

import (
	"encoding/json"
	"sync"

	"github.com/b0yaux/enginecore/internal/module"
)

// SequencerTypeName is the factory type name Sequencer registers under.
const SequencerTypeName = "sequencer"

var sequencerDescriptors = []module.Descriptor{
	{Name: "swing", Type: module.Float, Min: 0, Max: 1, Default: 0},
}

// Sequencer is a trigger producer: its module Name() is the
// sequencerName PatternRuntime's binding table is keyed by (spec §4.10
// "the chain-binding contract"). It owns no pattern data itself — it
// just tells PatternRuntime which pattern/chain to play and exposes that
// assignment to the rest of the graph.
type Sequencer struct {
	base

	mu        sync.Mutex
	pattern   module.PatternController
	boundName string // pattern name currently bound, kept for play/stop
}

// NewSequencer is registered in module.Factory under SequencerTypeName.
func NewSequencer(id, name string) module.Module {
	return &Sequencer{base: newBase(id, name, SequencerTypeName, sequencerDescriptors)}
}

// BindPattern assigns this sequencer's pattern/chain binding in
// PatternRuntime, keyed by this module's own Name().
func (s *Sequencer) BindPattern(patternName, chainName string, chainEnabled bool) error {
	s.mu.Lock()
	pc := s.pattern
	s.mu.Unlock()
	if pc == nil {
		return nil
	}
	if err := pc.BindSequencer(s.Name(), patternName, chainName, chainEnabled); err != nil {
		return err
	}
	s.mu.Lock()
	s.boundName = patternName
	s.mu.Unlock()
	return nil
}

// Play/Stop toggle the bound pattern's playback state.
func (s *Sequencer) Play() error {
	s.mu.Lock()
	pc, name := s.pattern, s.boundName
	s.mu.Unlock()
	if pc == nil || name == "" {
		return nil
	}
	return pc.SetPlaying(name, true)
}

func (s *Sequencer) Stop() error {
	s.mu.Lock()
	pc, name := s.pattern, s.boundName
	s.mu.Unlock()
	if pc == nil || name == "" {
		return nil
	}
	return pc.SetPlaying(name, false)
}

func (s *Sequencer) ApplyOperation(op string, args map[string]float32) error {
	switch op {
	case "play":
		return s.Play()
	case "stop":
		return s.Stop()
	default:
		return nil
	}
}

func (s *Sequencer) Initialize(deps module.Dependencies) error {
	s.mu.Lock()
	s.pattern = deps.Patterns
	s.mu.Unlock()

	if deps.IsRestored && deps.Patterns != nil {
		if b, err := deps.Patterns.GetBinding(s.Name()); err == nil {
			s.mu.Lock()
			s.boundName = b.PatternName
			s.mu.Unlock()
		}
	}
	return nil
}

func (s *Sequencer) ToJSON() (json.RawMessage, error) {
	s.mu.Lock()
	bound := s.boundName
	s.mu.Unlock()
	data, err := jsonc.Marshal(struct {
		BoundPattern string `json:"boundPattern,omitempty"`
	}{BoundPattern: bound})
	if err != nil {
		return nil, err
	}
	return jsonc.Marshal(marshalEnvelope{Parameters: s.snapshotValues(), Data: data})
}

func (s *Sequencer) FromJSON(raw json.RawMessage) error {
	var env marshalEnvelope
	if err := jsonc.Unmarshal(raw, &env); err != nil {
		return err
	}
	s.loadValues(env.Parameters)
	if len(env.Data) > 0 {
		var d struct {
			BoundPattern string `json:"boundPattern"`
		}
		if err := jsonc.Unmarshal(env.Data, &d); err != nil {
			return err
		}
		s.mu.Lock()
		s.boundName = d.BoundPattern
		s.mu.Unlock()
	}
	return nil
}
