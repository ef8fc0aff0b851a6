package telemetry

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b0yaux/enginecore/internal/clock"
	"github.com/b0yaux/enginecore/internal/command"
	"github.com/b0yaux/enginecore/internal/connection"
	"github.com/b0yaux/enginecore/internal/module"
	"github.com/b0yaux/enginecore/internal/modules"
	"github.com/b0yaux/enginecore/internal/pattern"
	"github.com/b0yaux/enginecore/internal/router"
	"github.com/b0yaux/enginecore/internal/runtime"
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

func TestObserveEngineUpdatesStateVersionGauge(t *testing.T) {
	e := newTestEngine(t)
	m := New("enginecore_test_version")

	unsub, err := m.ObserveEngine(e)
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, e.Enqueue(command.AddModule("sampler", "kick")))
	e.Drain(0)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "enginecore_test_version_state_version 1")
}

func TestObserveTriggersIncrementsCounterOnTriggerEvent(t *testing.T) {
	e := newTestEngine(t)
	m := New("enginecore_test_triggers")

	require.NoError(t, e.Enqueue(command.AddModule("sequencer", "seq1")))
	e.Drain(0)

	p, err := pattern.New(4, 4)
	require.NoError(t, err)
	s0, _ := p.GetStep(0)
	s0.Index = 1
	s0.Note = 60
	s0.Chance = 100
	require.NoError(t, p.SetStep(0, s0))
	require.NoError(t, e.Runtime.AddPattern("P0", p))
	require.NoError(t, e.Runtime.BindSequencer("seq1", "P0", "", false))
	require.NoError(t, e.Runtime.SetPlaying("P0", true))
	e.Clock.Start()

	unsub := m.ObserveTriggers(e.Runtime, "seq1")
	defer unsub()

	e.Runtime.Evaluate(48000)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "enginecore_test_triggers_pattern_triggers_total")
}

func TestRecorderMethodsIncrementExpectedSeries(t *testing.T) {
	m := New("enginecore_test_recorder")
	m.RecordOperation("save", "ok")
	m.RecordDuration("save", 0.25)
	m.RecordError("save", "io")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	body := rec.Body.String()
	assert.Contains(t, body, `enginecore_test_recorder_operations_total{operation="save",status="ok"} 1`)
	assert.Contains(t, body, `enginecore_test_recorder_errors_total{error_type="io",operation="save"} 1`)
}
