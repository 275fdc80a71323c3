package backend

import (
	"fmt"
	"sync"
)

// Registry holds the backend clients discovered at wiring time, keyed by
// name. The first registered client becomes the default unless SetDefault
// is called.
type Registry struct {
	mu         sync.RWMutex
	clients    map[string]Client
	defaultKey string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds a client under its Name. Duplicate names are an error.
func (r *Registry) Register(c Client) error {
	name := c.Name()
	if name == "" {
		return fmt.Errorf("%w: empty client name", ErrNoClient)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[name]; exists {
		return fmt.Errorf("backend client %q already registered", name)
	}
	r.clients[name] = c
	if r.defaultKey == "" {
		r.defaultKey = name
	}
	return nil
}

// SetDefault selects which client Get("") resolves to.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[name]; !exists {
		return fmt.Errorf("%w: %q", ErrNoClient, name)
	}
	r.defaultKey = name
	return nil
}

// Get returns the client registered under name. An empty name returns the
// default client.
func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultKey
	}
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoClient, name)
	}
	return c, nil
}

// Names returns the registered client names in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
