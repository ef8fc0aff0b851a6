// Package session implements SessionManager (spec §4.8): synchronous
// load with legacy migration, and async save through a bounded MPSC
// queue with a background writer, following the teacher's AutoSave/
// DoSave/LoadState shape in storage.go generalized from one hardcoded
// model to the engine's collaborator set.
package session

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/singleflight"

	"github.com/b0yaux/enginecore/internal/command"
	"github.com/b0yaux/enginecore/internal/connection"
	"github.com/b0yaux/enginecore/internal/enginerr"
	"github.com/b0yaux/enginecore/internal/module"
	"github.com/b0yaux/enginecore/internal/state"
)

var jsonc = jsoniter.ConfigCompatibleWithStandardLibrary

// CurrentVersion is stamped into every document this package writes.
// loadSession treats a missing version string as a legacy file and
// routes it through migration instead (spec §4.8).
const CurrentVersion = "1.0"

// Document is the on-disk session shape: transport plus every
// collaborator's exported JSON, consolidated into one file (spec §4.8
// "consolidate several legacy loose files into the session JSON").
type Document struct {
	Version     string                       `json:"version"`
	SavedAt     time.Time                    `json:"savedAt"`
	Transport   state.Transport              `json:"transport"`
	Modules     map[string]state.ModuleState `json:"modules"`
	Connections []connection.Info            `json:"connections"`
	Router      json.RawMessage              `json:"router,omitempty"`
	Pattern     json.RawMessage              `json:"pattern,omitempty"`
}

// PostLoadFunc runs after loadSession completes successfully — the
// spot for collaborators like an audio stream restart or a viewport
// rebuild to hook in (spec §4.8 "post-load callback for collaborators").
type PostLoadFunc func()

type saveRequest struct {
	path      string
	snapshot  state.EngineState
	version   uint64
	timestamp time.Time
}

// Manager owns the background serialization writer and mediates all
// session persistence for one Engine (spec §4.8). Safe for concurrent
// use: SaveSessionAsync may be called from any number of goroutines;
// LoadSession should only ever be called from the caller's own thread
// (it is synchronous and mutates collaborator state directly, matching
// "runs synchronously on the caller").
type Manager struct {
	engine       *command.Engine
	audioOutType string
	videoOutType string
	log          *slog.Logger

	postLoadMu sync.Mutex
	postLoad   PostLoadFunc

	queue chan saveRequest
	group singleflight.Group

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	autosaveMu sync.Mutex
	autosaveT  *time.Timer
}

// New starts the background writer goroutine and returns a ready
// Manager. audioOutType/videoOutType are the factory type names
// EnsureSystemModules re-creates after a load clears the registry.
func New(engine *command.Engine, audioOutType, videoOutType string, logger *slog.Logger, queueCapacity int) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if queueCapacity < 1 {
		queueCapacity = 1
	}
	m := &Manager{
		engine:       engine,
		audioOutType: audioOutType,
		videoOutType: videoOutType,
		log:          logger,
		queue:        make(chan saveRequest, queueCapacity),
		stopCh:       make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// SetPostLoadCallback installs the callback LoadSession invokes after a
// successful load.
func (m *Manager) SetPostLoadCallback(f PostLoadFunc) {
	m.postLoadMu.Lock()
	defer m.postLoadMu.Unlock()
	m.postLoad = f
}

// SaveSessionAsync enqueues a save request carrying the engine's latest
// snapshot and version; the background writer refreshes to whatever is
// current at dequeue time if a newer snapshot has since been published
// (spec §4.8: "If the snapshot's version is older than the current
// engine version at dequeue time, it refreshes to the latest snapshot").
// Non-blocking: returns enginerr.QueueFull if the writer has fallen
// behind, mirroring internal/command.Queue.Enqueue.
func (m *Manager) SaveSessionAsync(path string) error {
	req := saveRequest{
		path:      path,
		snapshot:  m.engine.GetStateSnapshot(),
		version:   m.engine.StateVersion(),
		timestamp: time.Now(),
	}
	select {
	case m.queue <- req:
		return nil
	default:
		return enginerr.New(enginerr.QueueFull, "session.SaveSessionAsync", "save queue is full: "+path)
	}
}

// SaveSessionSync performs a save on the caller's goroutine, bypassing
// the queue — used for the best-effort save on exit (spec §4.8 "a
// best-effort synchronous save on exit").
func (m *Manager) SaveSessionSync(path string) error {
	return m.writeDocument(path, m.engine.GetStateSnapshot())
}

// StartAutoSave arms a periodic SaveSessionAsync(path) every interval
// (spec §4.8 "optional periodic saveSessionAsync every intervalSeconds").
// Calling it again replaces any previously armed schedule.
func (m *Manager) StartAutoSave(path string, interval time.Duration) {
	m.autosaveMu.Lock()
	defer m.autosaveMu.Unlock()
	if m.autosaveT != nil {
		m.autosaveT.Stop()
	}
	var tick func()
	tick = func() {
		if err := m.SaveSessionAsync(path); err != nil {
			m.log.Warn("autosave enqueue failed", "path", path, "error", err)
		}
		m.autosaveMu.Lock()
		if m.autosaveT != nil {
			m.autosaveT = time.AfterFunc(interval, tick)
		}
		m.autosaveMu.Unlock()
	}
	m.autosaveT = time.AfterFunc(interval, tick)
}

// StopAutoSave disarms the periodic schedule, if any.
func (m *Manager) StopAutoSave() {
	m.autosaveMu.Lock()
	defer m.autosaveMu.Unlock()
	if m.autosaveT != nil {
		m.autosaveT.Stop()
		m.autosaveT = nil
	}
}

// Close stops the background writer, draining nothing further — callers
// that want outstanding saves flushed should call SaveSessionSync first.
func (m *Manager) Close() {
	m.StopAutoSave()
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case req := <-m.queue:
			m.process(req)
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) process(req saveRequest) {
	snap := req.snapshot
	if v := m.engine.StateVersion(); v > req.version {
		snap = m.engine.GetStateSnapshot()
	}
	// singleflight collapses concurrent saves targeting the same path
	// into one in-flight write (spec §4.8 combined with the domain-stack
	// note on golang.org/x/sync): a burst of SaveSessionAsync calls for
	// the same file only pays for one disk write.
	_, err, _ := m.group.Do(req.path, func() (interface{}, error) {
		return nil, m.writeDocument(req.path, snap)
	})
	if err != nil {
		m.log.Warn("session save failed", "path", req.path, "error", err)
	}
}

func (m *Manager) writeDocument(path string, snap state.EngineState) error {
	routerJSON, err := m.engine.Router.ToJSON()
	if err != nil {
		return enginerr.Wrap(enginerr.SerializationFailed, "session.writeDocument", "router export failed", err)
	}
	patternJSON, err := m.engine.Runtime.ToJSON()
	if err != nil {
		return enginerr.Wrap(enginerr.SerializationFailed, "session.writeDocument", "pattern runtime export failed", err)
	}

	doc := Document{
		Version:     CurrentVersion,
		SavedAt:     time.Now(),
		Transport:   snap.Transport,
		Modules:     snap.Modules,
		Connections: snap.Connections,
		Router:      routerJSON,
		Pattern:     patternJSON,
	}
	data, err := jsonc.MarshalIndent(doc, "", "  ")
	if err != nil {
		return enginerr.Wrap(enginerr.SerializationFailed, "session.writeDocument", "document marshal failed", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil && !os.IsExist(err) {
		return enginerr.Wrap(enginerr.SerializationFailed, "session.writeDocument", "creating session directory failed", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".backup"); err != nil {
			m.log.Warn("session backup failed", "path", path, "error", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return enginerr.Wrap(enginerr.SerializationFailed, "session.writeDocument", "writing session file failed", err)
	}
	return nil
}

// LoadSession parses path synchronously, migrating a legacy (version-
// less) file first if needed, then replaces every collaborator's state
// in the order spec.md §4.8 prescribes: clear registry, load modules,
// router, connections, pattern runtime; initialize every module with
// isRestored=true; restore connection parameters; validate sequencer
// bindings; finally invoke the post-load callback.
func (m *Manager) LoadSession(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return enginerr.Wrap(enginerr.SerializationFailed, "session.LoadSession", "reading session file failed", err)
	}

	var probe struct {
		Version string `json:"version"`
	}
	if err := jsonc.Unmarshal(raw, &probe); err != nil {
		return enginerr.Wrap(enginerr.SerializationFailed, "session.LoadSession", "parsing session file failed", err)
	}

	var doc Document
	if probe.Version == "" {
		m.log.Info("legacy session format detected, migrating", "path", path)
		migrated, err := migrateLegacy(path, raw)
		if err != nil {
			return enginerr.Wrap(enginerr.MigrationFailed, "session.LoadSession", "legacy migration failed", err)
		}
		doc = migrated
	} else {
		if err := jsonc.Unmarshal(raw, &doc); err != nil {
			return enginerr.Wrap(enginerr.SerializationFailed, "session.LoadSession", "parsing session document failed", err)
		}
	}

	m.engine.Registry.Clear()
	m.engine.Connections.Clear()

	m.engine.Clock.SetBPM(doc.Transport.BPM)
	if doc.Transport.IsPlaying {
		m.engine.Clock.Start()
	} else {
		m.engine.Clock.Stop()
	}

	if err := m.loadModules(doc.Modules); err != nil {
		return err
	}
	if err := module.EnsureSystemModules(m.engine.Registry, m.engine.Factory, m.audioOutType, m.videoOutType); err != nil {
		return enginerr.Wrap(enginerr.SerializationFailed, "session.LoadSession", "ensuring system modules failed", err)
	}

	if len(doc.Router) > 0 {
		if err := m.engine.Router.FromJSON(doc.Router); err != nil {
			m.log.Warn("router import failed, continuing with empty route table", "error", err)
		}
	}

	for _, c := range doc.Connections {
		if err := m.engine.Connections.Connect(c); err != nil {
			m.log.Warn("dropping connection that failed to import", "source", c.Source, "target", c.Target, "error", err)
		}
	}

	if len(doc.Pattern) > 0 {
		if err := m.engine.Runtime.FromJSON(doc.Pattern); err != nil {
			return enginerr.Wrap(enginerr.SerializationFailed, "session.LoadSession", "pattern runtime import failed", err)
		}
	}

	m.engine.Registry.ForEachModule(func(mod module.Module) {
		if err := mod.Initialize(module.Dependencies{
			Clock:       m.engine.Clock,
			Registry:    m.engine.Registry,
			Connections: m.engine.Connections,
			Router:      m.engine.Router,
			Runtime:     m.engine.Runtime,
			Patterns:    m.engine.Runtime,
			OSC:         m.engine.OSC,
			IsRestored:  true,
		}); err != nil {
			m.log.Warn("module initialize failed on load", "module", mod.Name(), "error", err)
		}
	})

	m.engine.Registry.ForEachModule(func(mod module.Module) {
		m.engine.Connections.RestoreConnectionParameters(mod.Name())
	})

	m.validateSequencerBindings()

	m.postLoadMu.Lock()
	cb := m.postLoad
	m.postLoadMu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (m *Manager) loadModules(modules map[string]state.ModuleState) error {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ms := modules[name]
		created, err := m.engine.Factory.Create(ms.TypeName, ms.InstanceName, m.engine.Registry.ExistingNames())
		if err != nil {
			m.log.Warn("dropping module of unregistered type", "module", name, "type", ms.TypeName, "error", err)
			continue
		}
		// ModuleState.TypeSpecificData is already m.ToJSON()'s full output
		// (parameters + opaque data together); ModuleState.Parameters is a
		// flattened duplicate kept only for state.Diff, so it's not needed
		// here.
		if len(ms.TypeSpecificData) > 0 {
			if err := created.FromJSON(ms.TypeSpecificData); err != nil {
				m.log.Warn("module state import failed, using defaults", "module", name, "error", err)
			}
		}
		created.SetEnabled(ms.Enabled)
		if err := m.engine.Registry.Add(created); err != nil {
			return enginerr.Wrap(enginerr.SerializationFailed, "session.loadModules", "registering loaded module failed", err)
		}
	}
	return nil
}

// validateSequencerBindings drops any sequencer binding whose pattern no
// longer exists after Runtime.FromJSON (spec §4.8 "validate sequencer
// bindings"; internal/runtime's FromJSON explicitly defers this to the
// loader).
func (m *Manager) validateSequencerBindings() {
	available := m.engine.Runtime.AvailablePatternNames()
	m.engine.Registry.ForEachModule(func(mod module.Module) {
		binding, err := m.engine.Runtime.GetBinding(mod.Name())
		if err != nil || binding.PatternName == "" {
			return
		}
		if !available[binding.PatternName] {
			m.log.Warn("dropping sequencer binding to missing pattern", "sequencer", mod.Name(), "pattern", binding.PatternName)
			m.engine.Runtime.UnbindSequencer(mod.Name())
		}
	})
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
