package core

// ModuleID uniquely identifies a module using namespace dot notation,
// e.g. "backend.openai" or "repository.sqlite". The namespace groups
// modules by the contract they fulfil.
type ModuleID string

// Namespace returns the portion of the ID before the first dot, or the
// whole ID when it has no namespace.
func (id ModuleID) Namespace() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// ModuleInfo describes a registered module: its unique ID and a
// constructor returning a fresh, unconfigured instance.
type ModuleInfo struct {
	// ID is the module's unique identifier.
	ID ModuleID

	// New returns a new, unprovisioned instance of the module. It must
	// never return nil and must not share state between instances.
	New func() Module
}

// Module is the minimal interface every module implements. Lifecycle
// behavior is added by implementing the optional interfaces in
// lifecycle.go (Configurable, Provisioner, Validator, Starter, Stopper,
// Reloader).
type Module interface {
	ModuleInfo() ModuleInfo
}
