package gdao

import "sync"

// =====================================
// Backend Factory Registry
// =====================================

// BackendFactory creates backend instances for a named adapter.
// Adapter packages register a factory from init(), so importing an
// adapter package is enough to make its backends openable by name.
type BackendFactory interface {
	Create(config Config) (Backend, error)
	SupportedDrivers() []string
}

// BackendRegistry manages registered backend factories
type BackendRegistry interface {
	Register(name string, factory BackendFactory) error
	Get(name string) (BackendFactory, error)
	List() []string
	Unregister(name string) error
}

// DefaultBackends is the default backend factory registry
var DefaultBackends BackendRegistry = NewBackendRegistry()

// NewBackendRegistry creates a new backend factory registry
func NewBackendRegistry() BackendRegistry {
	return &backendRegistry{
		factories: make(map[string]BackendFactory),
	}
}

type backendRegistry struct {
	mutex     sync.RWMutex
	factories map[string]BackendFactory
}

func (r *backendRegistry) Register(name string, factory BackendFactory) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.factories[name] = factory
	return nil
}

func (r *backendRegistry) Get(name string) (BackendFactory, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	factory, exists := r.factories[name]
	if !exists {
		return nil, NewError(ErrorTypeConfiguration, "backend not registered: "+name)
	}
	return factory, nil
}

func (r *backendRegistry) List() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

func (r *backendRegistry) Unregister(name string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.factories, name)
	return nil
}

// OpenBackend creates a backend through a registered factory.
// Usage: backend, err := gdao.OpenBackend("bun", config)
func OpenBackend(name string, config Config) (Backend, error) {
	factory, err := DefaultBackends.Get(name)
	if err != nil {
		return nil, err
	}
	return factory.Create(config)
}

// RegisterBackend registers a backend factory under a name
func RegisterBackend(name string, factory BackendFactory) error {
	return DefaultBackends.Register(name, factory)
}

// ListBackends returns all registered backend names
func ListBackends() []string {
	return DefaultBackends.List()
}
