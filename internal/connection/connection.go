// Package connection implements ConnectionManager (spec §4.7): typed
// connection records between modules, partitioned by connection type,
// idempotent connect/disconnect, and bulk JSON import/export.
package connection

import (
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/b0yaux/enginecore/internal/enginerr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Type enumerates the connection kinds a Manager tracks (spec §4.1 data
// model, "ConnectionInfo").
type Type string

const (
	Audio     Type = "AUDIO"
	Video     Type = "VIDEO"
	Parameter Type = "PARAMETER"
	Event     Type = "EVENT"
)

// Info is one connection record. Unique by (Source, Target, Type,
// SourcePath, TargetPath), per spec §4.1.
type Info struct {
	Source     string `json:"sourceModule"`
	Target     string `json:"targetModule"`
	Type       Type   `json:"connectionType"`
	SourcePath string `json:"sourcePath,omitempty"`
	TargetPath string `json:"targetPath,omitempty"`
	EventName  string `json:"eventName,omitempty"`
	Active     bool   `json:"active"`
}

func (i Info) key() Info {
	// the identity used for uniqueness/idempotency excludes Active/EventName
	return Info{Source: i.Source, Target: i.Target, Type: i.Type, SourcePath: i.SourcePath, TargetPath: i.TargetPath}
}

// RestoreHook lets a module restore connection-specific parameters
// (mixer volumes, opacities) once the topology is back in place (spec
// §4.7, §4.8 loadSession step "restore mixer-connection parameters").
type RestoreHook func(moduleID string, connections []Info)

// Manager stores connection records behind a single RW lock (spec §5:
// "ConnectionManager: one RW lock").
type Manager struct {
	mu      sync.RWMutex
	byType  map[Type][]Info
	restore RestoreHook
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{byType: make(map[Type][]Info)}
}

// SetRestoreHook installs the callback invoked by RestoreConnectionParameters.
func (m *Manager) SetRestoreHook(hook RestoreHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restore = hook
}

// Connect records a connection. Re-issuing an identical connection
// (same key) is a no-op, satisfying the idempotency invariant (spec §4.7,
// §9 "Repeated connect with identical arguments yields one connection
// record").
func (m *Manager) Connect(info Info) error {
	if info.Source == "" || info.Target == "" {
		return enginerr.New(enginerr.InvalidArgument, "Manager.Connect", "source and target module names are required")
	}
	switch info.Type {
	case Audio, Video, Parameter, Event:
	default:
		return enginerr.New(enginerr.InvalidArgument, "Manager.Connect", "unknown connection type")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := info.key()
	for _, existing := range m.byType[info.Type] {
		if existing.key() == k {
			return nil
		}
	}
	info.Active = true
	m.byType[info.Type] = append(m.byType[info.Type], info)
	return nil
}

// Disconnect removes the connection matching info's key, if present.
// Disconnecting a connection that doesn't exist is not an error.
func (m *Manager) Disconnect(info Info) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := info.key()
	list := m.byType[info.Type]
	for i, existing := range list {
		if existing.key() == k {
			m.byType[info.Type] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

// Query returns a copy of every connection of the given type.
func (m *Manager) Query(t Type) []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.byType[t]
	out := make([]Info, len(src))
	copy(out, src)
	return out
}

// All returns a copy of every connection across all types.
func (m *Manager) All() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Info
	for _, t := range []Type{Audio, Video, Parameter, Event} {
		out = append(out, m.byType[t]...)
	}
	return out
}

// DropModule removes every connection referencing moduleName as source or
// target (spec §7: "a missing module referenced by a connection causes
// the connection to be dropped with a warning" — the warning itself is
// the caller's responsibility, since only it knows the module is missing).
func (m *Manager) DropModule(moduleName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for t, list := range m.byType {
		kept := list[:0:0]
		for _, c := range list {
			if c.Source != moduleName && c.Target != moduleName {
				kept = append(kept, c)
			}
		}
		m.byType[t] = kept
	}
}

// Clear removes every connection record, keeping the restore hook intact
// (spec §4.8 loadSession: the topology is rebuilt from scratch before the
// session's connection list is replayed through Connect).
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byType = make(map[Type][]Info)
}

// RestoreConnectionParameters invokes the restore hook, if any, with the
// connections touching moduleID (spec §4.7, §4.8).
func (m *Manager) RestoreConnectionParameters(moduleID string) {
	m.mu.RLock()
	hook := m.restore
	var touching []Info
	for _, list := range m.byType {
		for _, c := range list {
			if c.Source == moduleID || c.Target == moduleID {
				touching = append(touching, c)
			}
		}
	}
	m.mu.RUnlock()

	if hook != nil {
		hook(moduleID, touching)
	}
}
