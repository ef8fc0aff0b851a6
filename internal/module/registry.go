package module

import (
	"sort"
	"sync"

	"github.com/b0yaux/enginecore/internal/enginerr"
)

// MasterAudioOutputName and MasterVideoOutputName are the well-known
// system module names ensureSystemModules guarantees exist (spec §4.6:
// "this is the only place the core knows those names").
const (
	MasterAudioOutputName = "masterAudioOut"
	MasterVideoOutputName = "masterVideoOut"
)

type insertion struct {
	id    string
	order int
}

// Registry holds the live module set behind a single RW lock guarding
// both of its internal maps (spec §4.6, §5 "ModuleRegistry: one RW lock
// protecting both internal maps").
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Module
	byNam map[string]string // name -> id
	order map[string]int    // id -> insertion sequence, for stable iteration
	seq   int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[string]Module),
		byNam: make(map[string]string),
		order: make(map[string]int),
	}
}

// Add inserts m under its own ID()/Name(). Rejects a duplicate id or a
// name already bound to a different id.
func (r *Registry) Add(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[m.ID()]; exists {
		return enginerr.New(enginerr.AlreadyExists, "Registry.Add", "module id already registered: "+m.ID())
	}
	if existingID, exists := r.byNam[m.Name()]; exists && existingID != m.ID() {
		return enginerr.New(enginerr.AlreadyExists, "Registry.Add", "module name already in use: "+m.Name())
	}
	r.byID[m.ID()] = m
	r.byNam[m.Name()] = m.ID()
	r.order[m.ID()] = r.seq
	r.seq++
	return nil
}

// Remove deletes the module with the given id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return enginerr.New(enginerr.NotFound, "Registry.Remove", "no module with id: "+id)
	}
	delete(r.byID, id)
	delete(r.byNam, m.Name())
	delete(r.order, id)
	return nil
}

// ByID returns the module with the given id.
func (r *Registry) ByID(id string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, enginerr.New(enginerr.NotFound, "Registry.ByID", "no module with id: "+id)
	}
	return m, nil
}

// ByName resolves a human name to its module.
func (r *Registry) ByName(name string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNam[name]
	if !ok {
		return nil, enginerr.New(enginerr.NotFound, "Registry.ByName", "no module named: "+name)
	}
	return r.byID[id], nil
}

// Rename changes the human name bound to id, leaving the id stable.
func (r *Registry) Rename(id, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return enginerr.New(enginerr.NotFound, "Registry.Rename", "no module with id: "+id)
	}
	if existingID, exists := r.byNam[newName]; exists && existingID != id {
		return enginerr.New(enginerr.AlreadyExists, "Registry.Rename", "module name already in use: "+newName)
	}
	delete(r.byNam, m.Name())
	r.byNam[newName] = id
	return nil
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Clear empties both internal maps (spec §4.6 clear()).
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]Module)
	r.byNam = make(map[string]string)
	r.order = make(map[string]int)
	r.seq = 0
}

// ExistingNames copies the current name set under lock, for Factory.Create.
func (r *Registry) ExistingNames() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.byNam))
	for name := range r.byNam {
		out[name] = true
	}
	return out
}

// ForEachModule iterates modules in stable insertion order (spec §4.6:
// "forEachModule(f) provides a stable iteration order"). The key set is
// copied under lock; f is invoked without the lock held, so f may itself
// call back into the registry.
func (r *Registry) ForEachModule(f func(Module)) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return r.order[ids[i]] < r.order[ids[j]] })
	modules := make([]Module, 0, len(ids))
	for _, id := range ids {
		modules = append(modules, r.byID[id])
	}
	r.mu.RUnlock()

	for _, m := range modules {
		f(m)
	}
}

// EnsureSystemModules creates the master audio/video outputs via
// factory if they don't already exist by name (spec §4.6).
func EnsureSystemModules(r *Registry, f *Factory, audioOutType, videoOutType string) error {
	if _, err := r.ByName(MasterAudioOutputName); err != nil {
		m, err := f.Create(audioOutType, MasterAudioOutputName, r.ExistingNames())
		if err != nil {
			return err
		}
		if err := r.Add(m); err != nil {
			return err
		}
	}
	if _, err := r.ByName(MasterVideoOutputName); err != nil {
		m, err := f.Create(videoOutType, MasterVideoOutputName, r.ExistingNames())
		if err != nil {
			return err
		}
		if err := r.Add(m); err != nil {
			return err
		}
	}
	return nil
}
