package script

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/b0yaux/enginecore/internal/clock"
	"github.com/b0yaux/enginecore/internal/command"
	"github.com/b0yaux/enginecore/internal/connection"
	"github.com/b0yaux/enginecore/internal/module"
	"github.com/b0yaux/enginecore/internal/modules"
	"github.com/b0yaux/enginecore/internal/pattern"
	"github.com/b0yaux/enginecore/internal/router"
	"github.com/b0yaux/enginecore/internal/runtime"
	"github.com/b0yaux/enginecore/internal/state"
)

func newTestEngine(t *testing.T) *command.Engine {
	t.Helper()
	clk := clock.New(48000, 120)
	reg := module.NewRegistry()
	fac := module.NewFactory()
	modules.RegisterAll(fac)
	conns := connection.NewManager()
	rtr := router.NewRouter(func(name string) (router.ParameterGetter, error) { return reg.ByName(name) })
	rt := runtime.New(clk)
	e := command.NewEngine(clk, rt, reg, fac, conns, rtr, nil, 16)
	require.NoError(t, module.EnsureSystemModules(reg, fac, modules.AudioOutputTypeName, modules.VideoOutputTypeName))
	return e
}

func TestGenerateScriptFromStateIncludesTransportModulesConnectionsPatterns(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Enqueue(command.SetBPM(128)))
	require.NoError(t, e.Enqueue(command.StartTransport()))
	require.NoError(t, e.Enqueue(command.AddModule("sampler", "kick")))
	e.Drain(0)

	p, err := pattern.New(16, 4)
	require.NoError(t, err)
	require.NoError(t, e.Runtime.AddPattern("P0", p))

	require.NoError(t, e.Enqueue(command.Connect("kick", "masterAudioOut", string(connection.Audio), "", "", "")))
	e.Drain(0)

	mgr := New(e, nil)
	out, err := mgr.GenerateScriptFromState(e.GetStateSnapshot())
	require.NoError(t, err)

	assert.Contains(t, out, "clock:setBPM(128)")
	assert.Contains(t, out, "clock:start()")
	assert.Contains(t, out, `sampler("kick"`)
	assert.Contains(t, out, `connect("kick", "masterAudioOut", "audio")`)
	assert.Contains(t, out, `pattern("P0", 16)`)
}

func TestGenerateScriptFromStateOrdersModulesByNameDeterministically(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Enqueue(command.AddModule("sampler", "zzz")))
	require.NoError(t, e.Enqueue(command.AddModule("sampler", "aaa")))
	e.Drain(0)

	mgr := New(e, nil)
	out, err := mgr.GenerateScriptFromState(e.GetStateSnapshot())
	require.NoError(t, err)

	assert.Less(t, strings.Index(out, `"aaa"`), strings.Index(out, `"zzz"`))
}

func TestGenerateScriptFromStateUsesSystemHelperForOutputs(t *testing.T) {
	e := newTestEngine(t)
	// SetBPM always succeeds, forcing a publish so the snapshot reflects
	// the system modules EnsureSystemModules already created directly on
	// the registry.
	require.NoError(t, e.Enqueue(command.SetBPM(120)))
	e.Drain(0)

	mgr := New(e, nil)
	out, err := mgr.GenerateScriptFromState(e.GetStateSnapshot())
	require.NoError(t, err)

	assert.Contains(t, out, `audioOut("masterAudioOut"`)
	assert.Contains(t, out, `videoOut("masterVideoOut"`)
}

func TestIncrementalScriptAgreesWithFromScratchWhenPreviousIsEmpty(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Enqueue(command.SetBPM(140)))
	require.NoError(t, e.Enqueue(command.StartTransport()))
	require.NoError(t, e.Enqueue(command.AddModule("sampler", "kick")))
	e.Drain(0)
	require.NoError(t, e.Enqueue(command.Connect("kick", "masterAudioOut", string(connection.Audio), "", "", "")))
	e.Drain(0)

	mgr := New(e, nil)
	curr := e.GetStateSnapshot()

	full, err := mgr.GenerateScriptFromState(curr)
	require.NoError(t, err)

	var prev state.EngineState
	incremental, err := mgr.GenerateIncrementalScript(prev, curr)
	require.NoError(t, err)

	// Every module/connection/transport line present in the from-scratch
	// script must also appear in the incremental one, since the "previous"
	// snapshot here has nothing to diff against.
	for _, line := range []string{"clock:setBPM(140)", "clock:start()", `sampler("kick"`, `connect("kick", "masterAudioOut", "audio")`} {
		assert.Contains(t, full, line)
		assert.Contains(t, incremental, line)
	}
}

func TestUpdateScriptFromStateSkipsRedundantVersion(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := newTestEngine(t)
	mgr := New(e, nil)
	require.NoError(t, mgr.Setup())
	defer mgr.Close()

	// Suppress the observer's own auto-regeneration so only the two
	// manual calls below drive lastRegeneratedVersion bookkeeping.
	mgr.SetAutoUpdate(false)
	require.NoError(t, e.Enqueue(command.AddModule("sampler", "kick")))
	e.Drain(0)
	snapshot := e.GetStateSnapshot()

	var calls int
	mgr.SetUpdateCallback(func(string) { calls++ })

	mgr.updateScriptFromState(snapshot)
	mgr.updateScriptFromState(snapshot)

	assert.Equal(t, 1, calls)
}

func TestUpdateScriptFromStateDefersWhileExecuting(t *testing.T) {
	e := newTestEngine(t)
	mgr := New(e, nil)

	mgr.SetExecuting(true)
	var called bool
	mgr.SetUpdateCallback(func(string) { called = true })
	mgr.updateScriptFromState(e.GetStateSnapshot())

	assert.False(t, called)
	assert.False(t, mgr.HasCachedScript())
}

func TestSetAutoUpdateFalseSuppressesObserverRegeneration(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := newTestEngine(t)
	mgr := New(e, nil)
	require.NoError(t, mgr.Setup())
	defer mgr.Close()

	mgr.SetAutoUpdate(false)
	var calls int
	mgr.SetUpdateCallback(func(string) { calls++ })

	require.NoError(t, e.Enqueue(command.AddModule("sampler", "kick")))
	e.Drain(0)

	assert.Equal(t, 0, calls)
}
