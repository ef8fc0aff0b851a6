package state

import (
	"testing"

	"github.com/b0yaux/enginecore/internal/connection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRoundTrip(t *testing.T) {
	s := New()
	s.Version = 7
	s.Transport = Transport{IsPlaying: true, BPM: 128, CurrentBeat: 16}
	s.Modules["sampler1"] = ModuleState{
		UUID: "u1", InstanceName: "sampler1", TypeName: "sampler", Enabled: true,
		Parameters: map[string]float32{"volume": 0.8},
	}
	s.Connections = []connection.Info{{Source: "seq1", Target: "sampler1", Type: connection.Audio, Active: true}}

	data, err := s.ToJSON()
	require.NoError(t, err)

	s2, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, s, s2)
}

func TestDiffDetectsTransportChanges(t *testing.T) {
	prev := New()
	prev.Transport = Transport{IsPlaying: false, BPM: 120, CurrentBeat: 0}
	next := prev
	next.Transport = Transport{IsPlaying: true, BPM: 140, CurrentBeat: 4}

	d := Diff(prev, next)
	assert.True(t, d.Transport.IsPlayingChanged)
	assert.True(t, d.Transport.IsPlaying)
	assert.True(t, d.Transport.BPMChanged)
	assert.Equal(t, float32(140), d.Transport.BPM)
	assert.True(t, d.Transport.CurrentBeatChanged)
}

func TestDiffDetectsModuleParameterAndEnabledChanges(t *testing.T) {
	prev := New()
	prev.Modules["sampler1"] = ModuleState{Enabled: true, Parameters: map[string]float32{"volume": 0.5}}
	next := New()
	next.Modules["sampler1"] = ModuleState{Enabled: false, Parameters: map[string]float32{"volume": 0.9}}

	d := Diff(prev, next)
	require.Contains(t, d.ModuleChanges, "sampler1")
	mc := d.ModuleChanges["sampler1"]
	assert.True(t, mc.EnabledChanged)
	assert.False(t, mc.Enabled)
	require.Len(t, mc.ParameterChanges, 1)
	assert.Equal(t, "volume", mc.ParameterChanges[0].ParameterName)
}

func TestDiffReportsRemovedModule(t *testing.T) {
	prev := New()
	prev.Modules["sampler1"] = ModuleState{Enabled: true}
	next := New()

	d := Diff(prev, next)
	require.Contains(t, d.ModuleChanges, "sampler1")
	assert.False(t, d.ModuleChanges["sampler1"].Enabled)
}

func TestDiffNoOpWhenNothingChanged(t *testing.T) {
	s := New()
	s.Modules["sampler1"] = ModuleState{Enabled: true, Parameters: map[string]float32{"volume": 0.5}}
	d := Diff(s, s)
	assert.False(t, d.Transport.IsPlayingChanged)
	assert.False(t, d.Transport.BPMChanged)
	assert.False(t, d.ConnectionsChanged)
	assert.Empty(t, d.ModuleChanges)
}

func TestDiffDetectsConnectionsChanged(t *testing.T) {
	prev := New()
	next := New()
	next.Connections = []connection.Info{{Source: "a", Target: "b", Type: connection.Audio}}
	d := Diff(prev, next)
	assert.True(t, d.ConnectionsChanged)
}
