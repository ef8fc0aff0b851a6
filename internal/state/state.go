// Package state defines EngineState, the immutable snapshot root Engine
// publishes after every command drain (spec §3 "EngineState", §4.5), and
// StateDelta, the change-summary payload observers can diff against
// instead of re-reading the whole snapshot (spec §6 "State delta payload").
package state

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/b0yaux/enginecore/internal/connection"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Transport mirrors Clock's externally visible fields at snapshot time.
type Transport struct {
	IsPlaying   bool    `json:"isPlaying"`
	BPM         float32 `json:"bpm"`
	CurrentBeat int64   `json:"currentBeat"`
}

// ModuleState is one module's externally visible record inside a
// snapshot (spec §3 "Module (abstract)").
type ModuleState struct {
	UUID             string             `json:"uuid"`
	InstanceName     string             `json:"name"`
	TypeName         string             `json:"type"`
	Enabled          bool               `json:"enabled"`
	Parameters       map[string]float32 `json:"parameters"`
	TypeSpecificData json.RawMessage    `json:"data,omitempty"`
}

// EngineState is the snapshot root (spec §3): version, transport,
// modules by name, and the flat connection list. Treat values of this
// type as immutable once published — Engine publishes a fresh copy on
// every drain rather than mutating a shared one (spec §4.5 "lock-free
// publishable snapshot (immutable, reference-counted)").
type EngineState struct {
	Version     uint64                 `json:"version"`
	Transport   Transport              `json:"transport"`
	Modules     map[string]ModuleState `json:"modules"`
	Connections []connection.Info      `json:"connections"`
}

// New returns an empty, version-0 EngineState.
func New() EngineState {
	return EngineState{Modules: make(map[string]ModuleState)}
}

// ToJSON serializes the snapshot.
func (s EngineState) ToJSON() ([]byte, error) { return json.Marshal(s) }

// FromJSON parses a previously serialized snapshot.
func FromJSON(data []byte) (EngineState, error) {
	var s EngineState
	if err := json.Unmarshal(data, &s); err != nil {
		return EngineState{}, err
	}
	if s.Modules == nil {
		s.Modules = make(map[string]ModuleState)
	}
	return s, nil
}

// ParameterChange is one (name, value) pair inside a ModuleDelta.
type ParameterChange struct {
	ParameterName string  `json:"parameterName"`
	Value         float32 `json:"value"`
}

// ModuleDelta summarises what changed for one module between two
// snapshots (spec §6 "moduleChanges").
type ModuleDelta struct {
	EnabledChanged   bool              `json:"enabledChanged"`
	Enabled          bool              `json:"enabled"`
	ParameterChanges []ParameterChange `json:"parameterChanges,omitempty"`
}

// TransportDelta summarises what changed in Transport (spec §6 "transport").
type TransportDelta struct {
	IsPlayingChanged   bool    `json:"isPlayingChanged"`
	IsPlaying          bool    `json:"isPlaying"`
	BPMChanged         bool    `json:"bpmChanged"`
	BPM                float32 `json:"bpm"`
	CurrentBeatChanged bool    `json:"currentBeatChanged"`
	CurrentBeat        int64   `json:"currentBeat"`
}

// Delta is the change-summary payload (spec §6 "State delta payload").
// connectionsChanged=true means "the full connection list must be
// re-read from the snapshot" — Delta never itself carries a connection
// diff.
type Delta struct {
	Transport          TransportDelta         `json:"transport"`
	ModuleChanges      map[string]ModuleDelta `json:"moduleChanges,omitempty"`
	ConnectionsChanged bool                   `json:"connectionsChanged"`
}

// Diff computes the Delta from prev to next. Parameter changes are
// reported for every key present in next whose value differs from prev
// (or that's new); a module present in prev but absent from next is
// reported as a single EnabledChanged=true/Enabled=false entry with no
// parameter detail, since the snapshot itself is the source of truth for
// removal.
func Diff(prev, next EngineState) Delta {
	d := Delta{
		Transport: TransportDelta{
			IsPlayingChanged:   prev.Transport.IsPlaying != next.Transport.IsPlaying,
			IsPlaying:          next.Transport.IsPlaying,
			BPMChanged:         prev.Transport.BPM != next.Transport.BPM,
			BPM:                next.Transport.BPM,
			CurrentBeatChanged: prev.Transport.CurrentBeat != next.Transport.CurrentBeat,
			CurrentBeat:        next.Transport.CurrentBeat,
		},
		ConnectionsChanged: !connectionsEqual(prev.Connections, next.Connections),
	}

	changes := make(map[string]ModuleDelta)
	for name, nm := range next.Modules {
		pm, existed := prev.Modules[name]
		md := ModuleDelta{Enabled: nm.Enabled}
		if !existed {
			md.EnabledChanged = true
			for k, v := range nm.Parameters {
				md.ParameterChanges = append(md.ParameterChanges, ParameterChange{ParameterName: k, Value: v})
			}
			changes[name] = md
			continue
		}
		md.EnabledChanged = pm.Enabled != nm.Enabled
		for k, v := range nm.Parameters {
			if pv, ok := pm.Parameters[k]; !ok || pv != v {
				md.ParameterChanges = append(md.ParameterChanges, ParameterChange{ParameterName: k, Value: v})
			}
		}
		if md.EnabledChanged || len(md.ParameterChanges) > 0 {
			changes[name] = md
		}
	}
	for name := range prev.Modules {
		if _, ok := next.Modules[name]; !ok {
			changes[name] = ModuleDelta{EnabledChanged: true, Enabled: false}
		}
	}
	if len(changes) > 0 {
		d.ModuleChanges = changes
	}
	return d
}

func connectionsEqual(a, b []connection.Info) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
