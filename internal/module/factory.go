package module

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/b0yaux/enginecore/internal/enginerr"
)

// Factory is a type-name -> Creator table populated by static
// registration (spec §4.6: "so new module types link in without
// modifying the factory"). Safe for concurrent use.
type Factory struct {
	mu       sync.RWMutex
	creators map[string]Creator
}

// NewFactory returns an empty factory.
func NewFactory() *Factory {
	return &Factory{creators: make(map[string]Creator)}
}

// Register adds a creator for typeName, overwriting any prior
// registration of the same name — internal/modules.RegisterAll calls this
// once per concrete module type during engine construction.
func (f *Factory) Register(typeName string, creator Creator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[typeName] = creator
}

// Types returns the registered type names, sorted.
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.creators))
	for t := range f.creators {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Create builds a new module of typeName. A fresh RFC-4122 UUID is
// generated for its id; if name is "", a collision-free name of the
// shape "<typeName>N" is generated against existingNames (spec §4.6).
func (f *Factory) Create(typeName, name string, existingNames map[string]bool) (Module, error) {
	f.mu.RLock()
	creator, ok := f.creators[typeName]
	f.mu.RUnlock()
	if !ok {
		return nil, enginerr.New(enginerr.NotFound, "Factory.Create", "no module type registered: "+typeName)
	}

	id := uuid.New().String()
	if name == "" {
		name = generateName(typeName, existingNames)
	} else if existingNames[name] {
		return nil, enginerr.New(enginerr.AlreadyExists, "Factory.Create", "module name already in use: "+name)
	}
	return creator(id, name), nil
}

// generateName returns "<typeName>N" for the smallest N >= 1 not already
// present in existingNames.
func generateName(typeName string, existingNames map[string]bool) string {
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s%d", typeName, n)
		if !existingNames[candidate] {
			return candidate
		}
	}
}

// ValidateUUID checks that s parses as an RFC-style UUID (spec §4.6:
// "validated on load").
func ValidateUUID(s string) error {
	if _, err := uuid.Parse(s); err != nil {
		return enginerr.Wrap(enginerr.InvalidArgument, "ValidateUUID", "not a valid UUID: "+s, err)
	}
	return nil
}
