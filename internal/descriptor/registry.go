package descriptor

import (
	"fmt"
	"sync"
)

// #region registry
// Registry interns descriptors by name. The first registration of a name wins;
// later Intern calls with the same name return the existing ID unchanged.
type Registry struct {
	mu     sync.RWMutex
	arena  []Descriptor
	byName map[string]ID
}

// Default is the process-wide registry used when callers do not bring their own.
var Default = NewRegistry()

// NewRegistry returns a registry holding only the Missing descriptor. Missing
// sits in the arena but not in the name index, so a user label "unknown"
// interns as an ordinary descriptor.
func NewRegistry() *Registry {
	r := &Registry{
		// slot 0 is None and stays empty
		arena:  make([]Descriptor, 1, 64),
		byName: make(map[string]ID),
	}
	r.arena = append(r.arena, New("unknown", RoleAny))
	return r
}

// Intern returns the ID registered for d.Name, registering d if it is new.
func (r *Registry) Intern(d Descriptor) ID {
	r.mu.RLock()
	id, ok := r.byName[d.Name]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byName[d.Name]; ok {
		return id
	}
	id = ID(len(r.arena))
	r.arena = append(r.arena, d)
	r.byName[d.Name] = id
	return id
}

// Get returns the descriptor behind id. Unknown IDs resolve to Missing.
func (r *Registry) Get(id ID) Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == None || int(id) >= len(r.arena) {
		return r.arena[Missing]
	}
	return r.arena[id]
}

// Lookup finds a registered descriptor by name.
func (r *Registry) Lookup(name string) (ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// MustLookup is Lookup for names the caller registered itself.
func (r *Registry) MustLookup(name string) ID {
	id, ok := r.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("descriptor: %q is not registered", name))
	}
	return id
}

// Prototype resolves the generic descriptor id specializes, or id itself.
func (r *Registry) Prototype(id ID) ID {
	p := r.Get(id).Prototype
	if p == None {
		return id
	}
	return p
}

// Len counts registered descriptors, Missing included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.arena) - 1
}
// #endregion registry
