package scripting

import "sync"

// PendingCVarChange is one pending cvar mutation awaiting dispatch to its
// script handler, per §4.E.4 step 1.
type PendingCVarChange struct {
	Handler  string
	Name     string
	OldValue string
	NewValue string
}

type cvarEntry struct {
	value   string
	handler string
}

// CVarRegistry holds named console-variable values and, optionally, the
// name of a script handler to invoke when a variable changes. It is scoped
// to whichever owner constructs it (a Runtime), never a package global, per
// §9's "global mutable state" restriction.
type CVarRegistry struct {
	mu      sync.Mutex
	vars    map[string]*cvarEntry
	pending []PendingCVarChange
}

// NewCVarRegistry creates an empty registry.
func NewCVarRegistry() *CVarRegistry {
	return &CVarRegistry{vars: make(map[string]*cvarEntry)}
}

// Register installs name with an initial value and, optionally, the script
// handler invoked on change. Re-registering an existing name replaces its
// handler but leaves its current value untouched.
func (r *CVarRegistry) Register(name, initial, handler string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.vars[name]; ok {
		e.handler = handler
		return
	}
	r.vars[name] = &cvarEntry{value: initial, handler: handler}
}

// Get returns name's current value and whether it is registered.
func (r *CVarRegistry) Get(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.vars[name]
	if !ok {
		return "", false
	}
	return e.value, true
}

// Set updates name's value. If the value actually changed and a handler is
// registered, a CVarChange is queued for the next DrainPending. Setting an
// unregistered name is a no-op (mirrors the "absent" failure model, §7).
func (r *CVarRegistry) Set(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.vars[name]
	if !ok || e.value == value {
		return
	}
	old := e.value
	e.value = value
	if e.handler != "" {
		r.pending = append(r.pending, PendingCVarChange{
			Handler:  e.handler,
			Name:     name,
			OldValue: old,
			NewValue: value,
		})
	}
}

// DrainPending returns and clears every cvar change queued since the last
// call, for the dispatcher's per-frame tick (§4.E.4 step 1).
func (r *CVarRegistry) DrainPending() []PendingCVarChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	changes := r.pending
	r.pending = nil
	return changes
}
