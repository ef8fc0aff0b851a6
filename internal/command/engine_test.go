package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clockpkg "github.com/b0yaux/enginecore/internal/clock"
	"github.com/b0yaux/enginecore/internal/connection"
	"github.com/b0yaux/enginecore/internal/module"
	"github.com/b0yaux/enginecore/internal/router"
	"github.com/b0yaux/enginecore/internal/runtime"
	"github.com/b0yaux/enginecore/internal/state"
)

const fakeType = "fakeModule"

type fakeModule struct {
	id, name string
	enabled  bool
	params   map[string]float32
	ops      []string
}

func newFakeModule(id, name string) module.Module {
	return &fakeModule{id: id, name: name, enabled: true, params: map[string]float32{"gain": 1}}
}

func (m *fakeModule) ID() string        { return m.id }
func (m *fakeModule) Name() string      { return m.name }
func (m *fakeModule) TypeName() string  { return fakeType }
func (m *fakeModule) Enabled() bool     { return m.enabled }
func (m *fakeModule) SetEnabled(v bool) { m.enabled = v }

func (m *fakeModule) GetParameter(name string) (float32, error) { return m.params[name], nil }
func (m *fakeModule) SetParameter(name string, value float32, broadcast bool) error {
	m.params[name] = value
	return nil
}
func (m *fakeModule) GetParameters() []module.Descriptor {
	return []module.Descriptor{{Name: "gain", Type: module.Float, Min: 0, Max: 2, Default: 1}}
}
func (m *fakeModule) ToJSON() (json.RawMessage, error) { return json.Marshal(m.params) }
func (m *fakeModule) FromJSON(data json.RawMessage) error {
	return json.Unmarshal(data, &m.params)
}
func (m *fakeModule) Initialize(deps module.Dependencies) error { return nil }
func (m *fakeModule) ApplyOperation(op string, args map[string]float32) error {
	m.ops = append(m.ops, op)
	return nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	clk := clockpkg.New(48000, 120)
	reg := module.NewRegistry()
	fac := module.NewFactory()
	fac.Register(fakeType, func(id, name string) module.Module { return newFakeModule(id, name) })
	conns := connection.NewManager()
	rtr := router.NewRouter(func(name string) (router.ParameterGetter, error) { return reg.ByName(name) })
	rt := runtime.New(clk)
	return NewEngine(clk, rt, reg, fac, conns, rtr, nil, 16)
}

func TestEngineSetBPMAppliesOnDrainAndPublishesSnapshot(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Enqueue(SetBPM(140)))
	e.Drain(0)

	snap := e.GetStateSnapshot()
	assert.Equal(t, float32(140), snap.Transport.BPM)
	assert.Equal(t, uint64(1), snap.Version)
}

func TestEngineAddModuleRegistersAndInitializes(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Enqueue(AddModule(fakeType, "fake1")))
	e.Drain(0)

	m, err := e.Registry.ByName("fake1")
	require.NoError(t, err)
	assert.Equal(t, fakeType, m.TypeName())

	snap := e.GetStateSnapshot()
	ms, ok := snap.Modules["fake1"]
	require.True(t, ok)
	assert.Equal(t, float32(1), ms.Parameters["gain"])
}

func TestEngineSetParameterAppliesToRegisteredModule(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Enqueue(AddModule(fakeType, "fake1")))
	e.Drain(0)
	require.NoError(t, e.Enqueue(SetParameter("fake1", "gain", 0.5, true)))
	e.Drain(0)

	snap := e.GetStateSnapshot()
	assert.Equal(t, float32(0.5), snap.Modules["fake1"].Parameters["gain"])
}

func TestEngineRemoveModuleDropsConnections(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Enqueue(AddModule(fakeType, "a")))
	require.NoError(t, e.Enqueue(AddModule(fakeType, "b")))
	e.Drain(0)
	require.NoError(t, e.Enqueue(Connect("a", "b", string(connection.Parameter), "", "", "")))
	e.Drain(0)
	require.Len(t, e.Connections.Query(connection.Parameter), 1)

	require.NoError(t, e.Enqueue(RemoveModule("a")))
	e.Drain(0)

	assert.Empty(t, e.Connections.Query(connection.Parameter))
	_, err := e.Registry.ByName("a")
	require.Error(t, err)
}

func TestEngineFailedCommandDoesNotAdvanceVersion(t *testing.T) {
	e := newTestEngine(t)
	before := e.StateVersion()
	require.NoError(t, e.Enqueue(SetParameter("nonexistent", "gain", 1, false)))
	e.Drain(0)
	assert.Equal(t, before, e.StateVersion())
}

func TestEngineModuleOperationForwardsOpaqueCommand(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Enqueue(AddModule(fakeType, "fake1")))
	e.Drain(0)
	require.NoError(t, e.Enqueue(ModuleOperation("fake1", "reset", nil)))
	e.Drain(0)

	m, err := e.Registry.ByName("fake1")
	require.NoError(t, err)
	assert.Equal(t, []string{"reset"}, m.(*fakeModule).ops)
}

func TestEngineSubscribeReceivesSnapshotAndDelta(t *testing.T) {
	e := newTestEngine(t)
	var gotVersion uint64
	var gotBPMChanged bool
	_, err := e.Subscribe(func(snap state.EngineState, delta state.Delta) {
		gotVersion = snap.Version
		gotBPMChanged = delta.Transport.BPMChanged
	})
	require.NoError(t, err)

	require.NoError(t, e.Enqueue(SetBPM(160)))
	e.Drain(0)

	assert.Equal(t, uint64(1), gotVersion)
	assert.True(t, gotBPMChanged)
}

func TestEngineSubscribeRejectsBeyondCapacity(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < maxObservers; i++ {
		_, err := e.Subscribe(func(state.EngineState, state.Delta) {})
		require.NoError(t, err)
	}
	_, err := e.Subscribe(func(state.EngineState, state.Delta) {})
	require.Error(t, err)
}

func TestEngineDoneChannelSignalsCompletion(t *testing.T) {
	e := newTestEngine(t)
	cmd := SetBPM(150)
	cmd.Done = make(chan struct{})
	require.NoError(t, e.Enqueue(cmd))
	e.Drain(0)
	<-cmd.Done
	require.NoError(t, cmd.Err)
}

func TestEngineCommandsBeingProcessedFalseBetweenDrains(t *testing.T) {
	e := newTestEngine(t)
	assert.False(t, e.CommandsBeingProcessed())
	assert.False(t, e.IsBuildingSnapshot())
}

func TestEngineDrainWithEmptyQueueDoesNotPublish(t *testing.T) {
	e := newTestEngine(t)
	calls := 0
	_, err := e.Subscribe(func(state.EngineState, state.Delta) { calls++ })
	require.NoError(t, err)

	before := e.StateVersion()
	e.Drain(0)

	assert.Equal(t, before, e.StateVersion())
	assert.Equal(t, 0, calls)
}
