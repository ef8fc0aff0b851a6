// Package script implements ScriptManager (spec §4.9): it observes
// published snapshots and regenerates a declarative, language-neutral
// script that a live-coding shell can replay to reconstruct the current
// session, under a version-gated deferral policy that keeps regeneration
// off the audio thread's critical path.
package script

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"github.com/b0yaux/enginecore/internal/command"
	"github.com/b0yaux/enginecore/internal/connection"
	"github.com/b0yaux/enginecore/internal/state"
)

var jsonc = jsoniter.ConfigCompatibleWithStandardLibrary

// systemHelperName maps a system module's type name to the declarative
// helper constructor the generated script should call for it (spec
// §4.9: "system modules use helper constructors"). oscilloscope/
// spectrogram have no corresponding module type in this engine (no
// visualization surface is modeled), so the entries stay unreachable;
// they're kept so the mapping mirrors the spec's full illustrative set.
var systemHelperName = map[string]string{
	"audioOutput":  "audioOut",
	"videoOutput":  "videoOut",
	"oscilloscope": "oscilloscope",
	"spectrogram":  "spectrogram",
}

// userHelperName maps a user module's type name to its declarative
// constructor (spec §4.9: "the sampler and sequencer use equivalents").
// Any type not listed falls back to a generic constructor call.
var userHelperName = map[string]string{
	"sampler":   "sampler",
	"sequencer": "sequencer",
	"mixer":     "mixer",
}

// UpdateCallback is invoked with the freshly regenerated script whenever
// updateScriptFromState completes one (spec §4.9, "invoke the registered
// callback").
type UpdateCallback func(script string)

// Manager owns script regeneration against an Engine's published
// snapshots (spec §4.9). Zero value is not usable; construct with New.
type Manager struct {
	engine *command.Engine
	log    *slog.Logger

	autoUpdate atomic.Bool
	executing  atomic.Bool
	rendering  atomic.Bool

	mu                     sync.Mutex
	lastState              state.EngineState
	lastStateJSON          []byte
	lastRegeneratedVersion uint64
	currentScript          string
	needsUpdate            bool
	callback               UpdateCallback

	unsubscribe func()
}

// New returns a Manager bound to engine. logger defaults to slog.Default
// if nil.
func New(engine *command.Engine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{engine: engine, log: logger}
	m.autoUpdate.Store(true)
	return m
}

// Setup subscribes to the engine's snapshot observer and generates the
// initial script from whatever state is already published (spec §4.9:
// ScriptManager runs an initial regeneration at startup, e.g. right
// after a session load).
func (m *Manager) Setup() error {
	unsub, err := m.engine.Subscribe(func(snapshot state.EngineState, _ state.Delta) {
		if !m.autoUpdate.Load() {
			return
		}
		m.updateScriptFromState(snapshot)
	})
	if err != nil {
		return fmt.Errorf("script.Manager.Setup: %w", err)
	}
	m.unsubscribe = unsub

	m.updateScriptFromState(m.engine.GetStateSnapshot())
	return nil
}

// Close unsubscribes from the engine.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// SetUpdateCallback installs the callback shells register to receive
// freshly regenerated scripts.
func (m *Manager) SetUpdateCallback(cb UpdateCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = cb
}

// SetAutoUpdate enables or disables automatic regeneration on snapshot
// notifications (spec §4.9 implies a manual-editing escape hatch: a user
// editing the script by hand shouldn't have it clobbered underneath them).
func (m *Manager) SetAutoUpdate(enabled bool) { m.autoUpdate.Store(enabled) }

// IsAutoUpdateEnabled reports the current auto-update setting.
func (m *Manager) IsAutoUpdateEnabled() bool { return m.autoUpdate.Load() }

// SetExecuting marks whether a regenerated script is currently being
// executed by a shell, gating regeneration per spec §4.9 step 1.
func (m *Manager) SetExecuting(executing bool) { m.executing.Store(executing) }

// SetRendering marks whether the UI is mid-render, gating regeneration
// per spec §4.9 step 1.
func (m *Manager) SetRendering(rendering bool) { m.rendering.Store(rendering) }

// CurrentScript returns the last successfully regenerated script,
// generating one from current state if nothing has been cached yet.
func (m *Manager) CurrentScript() string {
	m.mu.Lock()
	cached := m.currentScript
	m.mu.Unlock()
	if cached != "" {
		return cached
	}
	script, err := m.GenerateScriptFromState(m.engine.GetStateSnapshot())
	if err != nil {
		m.log.Error("script generation failed", "error", err)
		return ""
	}
	return script
}

// HasCachedScript reports whether a script has already been generated.
func (m *Manager) HasCachedScript() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentScript != ""
}

// NeedsUpdate reports whether the cached script has changed since the
// flag was last cleared.
func (m *Manager) NeedsUpdate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.needsUpdate
}

// ClearUpdateFlag resets NeedsUpdate to false.
func (m *Manager) ClearUpdateFlag() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.needsUpdate = false
}

// updateScriptFromState applies spec §4.9's four-step gate, then
// regenerates and invokes the registered callback if the snapshot is new.
func (m *Manager) updateScriptFromState(snapshot state.EngineState) {
	if m.executing.Load() {
		m.log.Debug("deferring script update, script execution in progress")
		return
	}
	if m.rendering.Load() {
		m.log.Debug("deferring script update, rendering in progress")
		return
	}
	if m.engine.CommandsBeingProcessed() {
		m.log.Debug("deferring script update, commands being processed")
		return
	}

	current := m.engine.StateVersion()
	if snapshot.Version > 0 && snapshot.Version < current {
		m.log.Warn("deferring script update, stale state version", "observed", snapshot.Version, "current", current)
		return
	}

	m.mu.Lock()
	if snapshot.Version > 0 && snapshot.Version <= m.lastRegeneratedVersion {
		m.mu.Unlock()
		m.log.Debug("skipping redundant script regeneration", "version", snapshot.Version)
		return
	}
	m.mu.Unlock()

	snapshotJSON, err := jsonc.Marshal(snapshot)
	if err != nil {
		m.log.Error("failed to serialize snapshot for change detection", "error", err)
		return
	}
	m.mu.Lock()
	unchanged := bytes.Equal(m.lastStateJSON, snapshotJSON)
	m.mu.Unlock()
	if unchanged {
		return
	}

	script, err := m.GenerateScriptFromState(snapshot)
	if err != nil {
		m.log.Error("script generation failed", "error", err)
		return
	}

	m.mu.Lock()
	m.currentScript = script
	m.lastState = snapshot
	m.lastStateJSON = snapshotJSON
	m.lastRegeneratedVersion = snapshot.Version
	m.needsUpdate = true
	cb := m.callback
	m.mu.Unlock()

	m.log.Info("script regenerated", "version", snapshot.Version)
	if cb != nil {
		cb(script)
	}
}

// GenerateScriptFromState builds a complete script from snapshot,
// without consulting any previously published state (spec §4.9 shape:
// transport, modules in stable name order, active connections,
// patterns).
func (m *Manager) GenerateScriptFromState(snapshot state.EngineState) (string, error) {
	var buf bytes.Buffer

	buf.WriteString("-- generated session script\n\n")
	buf.WriteString(generateTransportScript(snapshot.Transport))
	buf.WriteString("\n")

	if len(snapshot.Modules) > 0 {
		buf.WriteString("-- modules\n")
		for _, name := range sortedModuleNames(snapshot.Modules) {
			buf.WriteString(generateModuleScript(name, snapshot.Modules[name]))
		}
		buf.WriteString("\n")
	}

	if active := activeConnections(snapshot.Connections); len(active) > 0 {
		buf.WriteString("-- connections\n")
		for _, c := range active {
			buf.WriteString(generateConnectionScript(c))
		}
		buf.WriteString("\n")
	}

	names := m.engine.Runtime.PatternNames()
	if len(names) > 0 {
		sort.Strings(names)
		buf.WriteString("-- patterns\n")
		for _, name := range names {
			buf.WriteString(m.generatePatternScript(name))
		}
	}

	return buf.String(), nil
}

// GenerateIncrementalScript emits only what changed between prev and
// curr: a transport line if BPM/play state differ, a constructor for
// every module that's new or whose JSON differs, and a connect() call
// for every connection active in curr but absent from prev.
//
// It does not diff patterns — PatternRuntime isn't versioned alongside
// EngineState, so there's no "previous pattern set" to compare against
// here; a full GenerateScriptFromState call always includes them. This
// mirrors the asymmetry spec §4.9's equivalence requirement allows: the
// two paths must agree on modules, connections, and transport, which is
// what this function is tested against.
func (m *Manager) GenerateIncrementalScript(prev, curr state.EngineState) (string, error) {
	var buf bytes.Buffer

	if prev.Transport.BPM != curr.Transport.BPM || prev.Transport.IsPlaying != curr.Transport.IsPlaying {
		buf.WriteString(generateTransportScript(curr.Transport))
		buf.WriteString("\n")
	}

	for _, name := range sortedModuleNames(curr.Modules) {
		ms := curr.Modules[name]
		prevMS, ok := prev.Modules[name]
		if !ok || !moduleStateEqual(prevMS, ms) {
			buf.WriteString(generateModuleScript(name, ms))
			buf.WriteString("\n")
		}
	}

	for _, c := range activeConnections(curr.Connections) {
		if !connectionPresent(prev.Connections, c) {
			buf.WriteString(generateConnectionScript(c))
		}
	}

	return buf.String(), nil
}

func moduleStateEqual(a, b state.ModuleState) bool {
	aj, err1 := jsonc.Marshal(a)
	bj, err2 := jsonc.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}

func connectionPresent(conns []connection.Info, c connection.Info) bool {
	for _, existing := range conns {
		if existing.Source == c.Source && existing.Target == c.Target && existing.Type == c.Type {
			return true
		}
	}
	return false
}

func generateTransportScript(t state.Transport) string {
	var buf bytes.Buffer
	buf.WriteString("-- transport\n")
	buf.WriteString("local clock = engine:getClock()\n")
	fmt.Fprintf(&buf, "clock:setBPM(%s)\n", formatFloat(t.BPM))
	if t.IsPlaying {
		buf.WriteString("clock:start()\n")
	} else {
		buf.WriteString("clock:stop()\n")
	}
	return buf.String()
}

func generateModuleScript(name string, ms state.ModuleState) string {
	var buf bytes.Buffer

	if helper, ok := systemHelperName[ms.TypeName]; ok {
		writeConstructorCall(&buf, name, helper, ms.Parameters)
	} else if helper, ok := userHelperName[ms.TypeName]; ok {
		writeConstructorCall(&buf, name, helper, ms.Parameters)
	} else {
		fmt.Fprintf(&buf, "-- module: %s (%s)\n", name, ms.TypeName)
		fmt.Fprintf(&buf, "engine:executeCommand(\"add %s %s\")\n", ms.TypeName, name)
		for _, p := range sortedParamNames(ms.Parameters) {
			fmt.Fprintf(&buf, "engine:executeCommand(\"set %s %s %s\")\n", name, p, formatFloat(ms.Parameters[p]))
		}
	}

	if !ms.Enabled {
		buf.WriteString("-- module disabled\n")
	}
	return buf.String()
}

func writeConstructorCall(buf *bytes.Buffer, name, helper string, params map[string]float32) {
	names := sortedParamNames(params)
	if len(names) == 0 {
		fmt.Fprintf(buf, "local %s = %s(%q)\n", name, helper, name)
		return
	}
	fmt.Fprintf(buf, "local %s = %s(%q, {\n", name, helper, name)
	for i, p := range names {
		sep := ","
		if i == len(names)-1 {
			sep = ""
		}
		fmt.Fprintf(buf, "    %s = %s%s\n", p, formatFloat(params[p]), sep)
	}
	buf.WriteString("})\n")
}

func generateConnectionScript(c connection.Info) string {
	return fmt.Sprintf("connect(%q, %q, %q)\n", c.Source, c.Target, connectionTypeLower(c.Type))
}

func connectionTypeLower(t connection.Type) string {
	switch t {
	case connection.Audio:
		return "audio"
	case connection.Video:
		return "video"
	case connection.Parameter:
		return "parameter"
	case connection.Event:
		return "event"
	default:
		return "audio"
	}
}

func activeConnections(conns []connection.Info) []connection.Info {
	out := make([]connection.Info, 0, len(conns))
	for _, c := range conns {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}

func (m *Manager) generatePatternScript(name string) string {
	p, err := m.engine.Runtime.GetPattern(name)
	if err != nil {
		return fmt.Sprintf("-- pattern: %s (not found)\n", name)
	}
	return fmt.Sprintf("pattern(%q, %d)\n", name, p.StepCount())
}

func sortedModuleNames(modules map[string]state.ModuleState) []string {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedParamNames(params map[string]float32) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}
