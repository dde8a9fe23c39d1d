package connector

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a new, unconnected Connector.
type Factory func() Connector

// Registry maps driver names to factories and keeps the connected backends
// of a process, keyed by backend name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	active    map[string]Connector
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		active:    make(map[string]Connector),
	}
}

// RegisterDriver registers the factory for a driver name.
func (r *Registry) RegisterDriver(driver string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[driver] = factory
}

// Drivers returns the registered driver names in sorted order.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.factories)
}

// Connect opens a connector for cfg.Driver and stores it under name,
// replacing (and closing) any backend already registered with that name.
func (r *Registry) Connect(name string, cfg ConnectionConfig) (Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	factory, ok := r.factories[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s (available: %v)", cfg.Driver, sortedKeys(r.factories))
	}

	conn := factory()
	cfg.DSN = SanitizeDSN(cfg.Driver, cfg.DSN)
	if err := conn.Connect(cfg); err != nil {
		return nil, fmt.Errorf("failed to connect backend %q: %w", name, err)
	}

	if existing, ok := r.active[name]; ok {
		existing.Disconnect()
	}

	r.active[name] = conn
	return conn, nil
}

// Get returns the connector registered under name.
func (r *Registry) Get(name string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.active[name]
	if !ok {
		return nil, fmt.Errorf("backend %q not found (available: %v)", name, sortedKeys(r.active))
	}
	return conn, nil
}

// Disconnect closes and removes the backend registered under name.
func (r *Registry) Disconnect(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.active[name]
	if !ok {
		return fmt.Errorf("backend %q not found", name)
	}

	err := conn.Disconnect()
	delete(r.active, name)
	return err
}

// CloseAll disconnects every backend.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, conn := range r.active {
		conn.Disconnect()
		delete(r.active, name)
	}
}

// ListBackends returns the connected backend names in sorted order.
func (r *Registry) ListBackends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.active)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
