package runtime

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/b0yaux/enginecore/internal/pattern"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// bindingJSON is Binding's serializable projection.
type bindingJSON struct {
	PatternName  string `json:"patternName"`
	ChainName    string `json:"chainName"`
	ChainEnabled bool   `json:"chainEnabled"`
}

// runtimeJSON is the exported shape: patterns, chains,
// sequencerBindings (spec §4.4.3).
type runtimeJSON struct {
	Patterns          map[string]*pattern.Pattern `json:"patterns"`
	Chains            map[string]*pattern.Chain   `json:"chains"`
	SequencerBindings map[string]bindingJSON      `json:"sequencerBindings"`
}

// ToJSON serializes patterns, chains, and sequencerBindings. Playback
// state is transient and never serialized (spec §4.4.3).
func (r *Runtime) ToJSON() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bindings := make(map[string]bindingJSON, len(r.sequencerBindings))
	for name, b := range r.sequencerBindings {
		bindings[name] = bindingJSON{PatternName: b.PatternName, ChainName: b.ChainName, ChainEnabled: b.ChainEnabled}
	}
	return json.Marshal(runtimeJSON{
		Patterns:          r.patterns,
		Chains:            r.chains,
		SequencerBindings: bindings,
	})
}

// FromJSON clears all maps under the exclusive lock, then loads patterns,
// then chains, then bindings (spec §4.4.3). Bindings referencing an
// unknown pattern/chain are loaded as-is — validating binding
// consistency is the session loader's job, not Runtime's (spec §4.4.3
// "No validation of binding consistency here; the loader completes
// that.").
func (r *Runtime) FromJSON(data []byte) error {
	var rj runtimeJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.patterns = make(map[string]*pattern.Pattern)
	r.playbackStates = make(map[string]*PlaybackState)
	r.chains = make(map[string]*pattern.Chain)
	r.sequencerBindings = make(map[string]*Binding)

	for name, p := range rj.Patterns {
		r.patterns[name] = p
		r.playbackStates[name] = newPlaybackState()
	}
	for name, c := range rj.Chains {
		r.chains[name] = c
	}
	for name, b := range rj.SequencerBindings {
		r.sequencerBindings[name] = &Binding{PatternName: b.PatternName, ChainName: b.ChainName, ChainEnabled: b.ChainEnabled}
	}
	return nil
}

// AvailablePatternNames returns the current set of pattern names. The
// session manager reads it after FromJSON to drop sequencer bindings that
// name a pattern which no longer exists (spec §4.4.3).
func (r *Runtime) AvailablePatternNames() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.patterns))
	for name := range r.patterns {
		out[name] = true
	}
	return out
}
