package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b0yaux/enginecore/internal/module"
	"github.com/b0yaux/enginecore/internal/runtime"
)

type fakePatternController struct {
	bound   map[string]runtime.Binding
	playing map[string]bool
}

func newFakePatternController() *fakePatternController {
	return &fakePatternController{bound: make(map[string]runtime.Binding), playing: make(map[string]bool)}
}

func (f *fakePatternController) BindSequencer(sequencerName, patternName, chainName string, chainEnabled bool) error {
	f.bound[sequencerName] = runtime.Binding{PatternName: patternName, ChainName: chainName, ChainEnabled: chainEnabled}
	return nil
}

func (f *fakePatternController) UnbindSequencer(sequencerName string) { delete(f.bound, sequencerName) }

func (f *fakePatternController) GetBinding(sequencerName string) (runtime.Binding, error) {
	return f.bound[sequencerName], nil
}

func (f *fakePatternController) SetPlaying(patternName string, playing bool) error {
	f.playing[patternName] = playing
	return nil
}

func TestSequencerBindPatternDelegatesToController(t *testing.T) {
	s := NewSequencer("id1", "seq1").(*Sequencer)
	pc := newFakePatternController()
	require.NoError(t, s.Initialize(module.Dependencies{Patterns: pc}))

	require.NoError(t, s.BindPattern("P0", "chain1", true))
	assert.Equal(t, runtime.Binding{PatternName: "P0", ChainName: "chain1", ChainEnabled: true}, pc.bound["seq1"])
}

func TestSequencerPlayStopTogglesBoundPattern(t *testing.T) {
	s := NewSequencer("id1", "seq1").(*Sequencer)
	pc := newFakePatternController()
	require.NoError(t, s.Initialize(module.Dependencies{Patterns: pc}))
	require.NoError(t, s.BindPattern("P0", "", false))

	require.NoError(t, s.Play())
	assert.True(t, pc.playing["P0"])
	require.NoError(t, s.Stop())
	assert.False(t, pc.playing["P0"])
}

func TestSequencerRestoresBoundNameFromExistingBindingOnRestore(t *testing.T) {
	pc := newFakePatternController()
	pc.bound["seq1"] = runtime.Binding{PatternName: "P0"}
	s := NewSequencer("id1", "seq1").(*Sequencer)
	require.NoError(t, s.Initialize(module.Dependencies{Patterns: pc, IsRestored: true}))

	require.NoError(t, s.Play())
	assert.True(t, pc.playing["P0"])
}

func TestSequencerJSONRoundTrip(t *testing.T) {
	s := NewSequencer("id1", "seq1").(*Sequencer)
	pc := newFakePatternController()
	require.NoError(t, s.Initialize(module.Dependencies{Patterns: pc}))
	require.NoError(t, s.BindPattern("P0", "", false))
	require.NoError(t, s.SetParameter("swing", 0.3, false))

	data, err := s.ToJSON()
	require.NoError(t, err)

	s2 := NewSequencer("id2", "seq2").(*Sequencer)
	require.NoError(t, s2.FromJSON(data))
	assert.Equal(t, "P0", s2.boundName)
	v, err := s2.GetParameter("swing")
	require.NoError(t, err)
	assert.Equal(t, float32(0.3), v)
}
