package router

import (
	"sync"

	"github.com/b0yaux/enginecore/internal/enginerr"
)

// ParameterGetter is the slice of Registry/Module a Router needs to
// resolve a path: look a module up by name, then read one of its
// parameters. internal/module.Registry and internal/module.Module both
// satisfy the shapes a caller passes in via NewRouter's lookup func,
// keeping this package free of a direct dependency on internal/module.
type ParameterGetter interface {
	GetParameter(name string) (float32, error)
}

type ModuleLookup func(instanceName string) (ParameterGetter, error)

// Router resolves ParameterPath strings against the live module graph
// (the spec's ParameterRouter, §4.1 "parameter routing for cross-module
// automation"). It also maintains a registered-route table so
// connections of type PARAMETER can be re-resolved after a session load
// without re-parsing every path.
type Router struct {
	mu     sync.RWMutex
	lookup ModuleLookup
	routes map[string]Path // path string -> parsed Path, for export/import
}

// NewRouter returns a Router that resolves module names via lookup.
func NewRouter(lookup ModuleLookup) *Router {
	return &Router{lookup: lookup, routes: make(map[string]Path)}
}

// SetLookup rebinds the module-resolution function (used after a fresh
// registry replaces the old one on session load).
func (r *Router) SetLookup(lookup ModuleLookup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookup = lookup
}

// Register records path (parsing it first) in the route table, for
// later export. Returns the parsed Path.
func (r *Router) Register(path string) (Path, error) {
	p, err := Parse(path)
	if err != nil {
		return Path{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[path] = p
	return p, nil
}

// Unregister removes path from the route table.
func (r *Router) Unregister(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, path)
}

// Routes returns every currently registered path string.
func (r *Router) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.routes))
	for p := range r.routes {
		out = append(out, p)
	}
	return out
}

// Resolve parses path, looks up its instance, and reads the named
// parameter's current value.
func (r *Router) Resolve(path string) (float32, error) {
	p, err := Parse(path)
	if err != nil {
		return 0, err
	}
	r.mu.RLock()
	lookup := r.lookup
	r.mu.RUnlock()
	if lookup == nil {
		return 0, enginerr.New(enginerr.PreconditionFailed, "Router.Resolve", "no module lookup configured")
	}
	target, err := lookup(p.InstanceName)
	if err != nil {
		return 0, err
	}
	return target.GetParameter(p.ParameterName)
}

// routesJSON is the export shape (spec §6: "modules.routing (parameter-router export)").
type routesJSON struct {
	Routes []string `json:"routes"`
}

// ToJSON exports the registered route set.
func (r *Router) ToJSON() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.routes))
	for p := range r.routes {
		out = append(out, p)
	}
	return json.Marshal(routesJSON{Routes: out})
}

// FromJSON replaces the route table with the paths in data, dropping
// (without error) any path that fails to re-parse — matching the
// session-load "best-effort mode with warnings" policy (spec §7); the
// caller is responsible for logging which paths were dropped.
func (r *Router) FromJSON(data []byte) error {
	var rj routesJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return err
	}
	fresh := make(map[string]Path, len(rj.Routes))
	for _, path := range rj.Routes {
		if p, err := Parse(path); err == nil {
			fresh[path] = p
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = fresh
	return nil
}
